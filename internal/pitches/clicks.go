package pitches

import "time"

// applyClick records a one-shot action for the viewer. The per-viewer flag and the
// pitch counter move together: both change only on the viewer's first click, so the
// counter always equals the number of viewers that performed the action.
// It reports whether this click was the viewer's first and the counter value afterwards.
func applyClick(doc *Document, viewerID ViewerID, action ActionType, now time.Time) (bool, int64) {
	viewer := doc.viewer(viewerID, now)
	viewer.LastView = now

	counter := doc.Pitch.counter(action)
	first := !viewer.flag(action)
	if first {
		viewer.setFlag(action)
		*counter++
	}

	doc.refreshCompletionRate()
	return first, *counter
}
