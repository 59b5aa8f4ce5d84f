package pitches

import "time"

// ViewerStats is the drill-down view of a single viewer's engagement.
type ViewerStats struct {
	ViewerID         string    `json:"viewerId"`
	FirstView        time.Time `json:"firstView"`
	LastView         time.Time `json:"lastView"`
	TotalWatchTime   float64   `json:"totalWatchTime"`
	CompletedVideo   bool      `json:"completedVideo"`
	ResumeDownloaded bool      `json:"resumeDownloaded"`
	PortfolioClicked bool      `json:"portfolioClicked"`
	LinkedinClicked  bool      `json:"linkedinClicked"`
}

// Report is the engagement summary for one pitch, computed from current state.
type Report struct {
	PitchID              string        `json:"id"`
	ShareID              string        `json:"shareId"`
	Title                string        `json:"title"`
	CreatedAt            time.Time     `json:"createdAt"`
	ViewCount            int64         `json:"viewCount"`
	UniqueViewers        int64         `json:"uniqueViewers"`
	FirstViewed          *time.Time    `json:"firstViewed,omitempty"`
	LastViewed           *time.Time    `json:"lastViewed,omitempty"`
	CompletionRate       float64       `json:"completionRate"`
	AvgWatchTime         float64       `json:"avgWatchTime"`
	TotalResumeDownloads int64         `json:"totalResumeDownloads"`
	TotalPortfolioClicks int64         `json:"totalPortfolioClicks"`
	TotalLinkedinClicks  int64         `json:"totalLinkedinClicks"`
	ResumeDownloadRate   float64       `json:"resumeDownloadRate"`
	PortfolioClickRate   float64       `json:"portfolioClickRate"`
	LinkedinClickRate    float64       `json:"linkedinClickRate"`
	Viewers              []ViewerStats `json:"viewers,omitempty"`
}

// buildReport derives statistics from the document. Viewer drill-down is included
// only when includeViewers is set.
func buildReport(doc *Document, includeViewers bool) Report {
	uniqueViewers := int64(len(doc.Pitch.UniqueViewers))
	report := Report{
		PitchID:              doc.Pitch.ID,
		ShareID:              doc.Pitch.ShareID,
		Title:                doc.Pitch.Title,
		CreatedAt:            doc.Pitch.CreatedAt,
		ViewCount:            doc.Pitch.ViewCount,
		UniqueViewers:        uniqueViewers,
		FirstViewed:          doc.Pitch.FirstViewed,
		LastViewed:           doc.Pitch.LastViewed,
		CompletionRate:       completionRate(doc.Viewers),
		AvgWatchTime:         averageWatchTime(doc.Viewers),
		TotalResumeDownloads: doc.Pitch.ResumeDownloads,
		TotalPortfolioClicks: doc.Pitch.PortfolioClicks,
		TotalLinkedinClicks:  doc.Pitch.LinkedinClicks,
		ResumeDownloadRate:   actionRate(doc, ActionResume),
		PortfolioClickRate:   actionRate(doc, ActionPortfolio),
		LinkedinClickRate:    actionRate(doc, ActionLinkedin),
	}
	if includeViewers {
		report.Viewers = make([]ViewerStats, 0, len(doc.Viewers))
		for _, viewer := range doc.Viewers {
			report.Viewers = append(report.Viewers, ViewerStats{
				ViewerID:         viewer.ViewerID,
				FirstView:        viewer.FirstView,
				LastView:         viewer.LastView,
				TotalWatchTime:   viewer.TotalWatchTime,
				CompletedVideo:   viewer.CompletedVideo,
				ResumeDownloaded: viewer.ResumeDownloaded,
				PortfolioClicked: viewer.PortfolioClicked,
				LinkedinClicked:  viewer.LinkedinClicked,
			})
		}
	}
	return report
}

// completionRate is 100 * completed / total over the sub-records, 0 when empty.
func completionRate(viewers []ViewerEngagement) float64 {
	if len(viewers) == 0 {
		return 0
	}
	completed := 0
	for _, viewer := range viewers {
		if viewer.CompletedVideo {
			completed++
		}
	}
	return float64(completed) / float64(len(viewers)) * 100
}

func averageWatchTime(viewers []ViewerEngagement) float64 {
	if len(viewers) == 0 {
		return 0
	}
	total := 0.0
	for _, viewer := range viewers {
		total += viewer.TotalWatchTime
	}
	return total / float64(len(viewers))
}

// actionRate is the share of unique viewers that performed the action, in percent.
// Sub-records of viewers without an admitted open are outside the denominator, so they
// are left out of the numerator as well.
func actionRate(doc *Document, action ActionType) float64 {
	uniqueViewers := len(doc.Pitch.UniqueViewers)
	if uniqueViewers == 0 {
		return 0
	}
	flagged := 0
	for index := range doc.Viewers {
		viewer := &doc.Viewers[index]
		if viewer.flag(action) && doc.hasUniqueViewer(ViewerID(viewer.ViewerID)) {
			flagged++
		}
	}
	return float64(flagged) / float64(uniqueViewers) * 100
}
