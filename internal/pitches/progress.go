package pitches

import (
	"fmt"
	"math"
	"time"
)

func validateProgress(report ProgressReport) error {
	if report.ViewerID == "" {
		return fmt.Errorf("%w: viewer id is required", ErrInvalidArgument)
	}
	if math.IsNaN(report.CurrentTime) || math.IsInf(report.CurrentTime, 0) || report.CurrentTime < 0 {
		return fmt.Errorf("%w: current time must be a non-negative number", ErrInvalidArgument)
	}
	return nil
}

// applyProgress folds one progress report into the viewer's sub-record and returns
// the viewer's watch time afterwards. Watch time is the farthest position reached,
// so duplicated, reordered or rewound reports never lower it.
func applyProgress(doc *Document, report ProgressReport, now time.Time) float64 {
	viewer := doc.viewer(report.ViewerID, now)
	viewer.TotalWatchTime = math.Max(viewer.TotalWatchTime, report.CurrentTime)
	viewer.LastView = now

	if duration, ok := usableDuration(report.Duration); ok && report.CurrentTime >= completionThreshold*duration {
		viewer.CompletedVideo = true
	}

	doc.refreshCompletionRate()
	return viewer.TotalWatchTime
}

func usableDuration(duration *float64) (float64, bool) {
	if duration == nil {
		return 0, false
	}
	value := *duration
	if math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
		return 0, false
	}
	return value, true
}
