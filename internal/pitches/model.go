package pitches

import (
	"fmt"
	"strings"
	"time"
)

const (
	maxIdentifierLength = 190
	maxTitleLength      = 200

	// anonymousSessionKey stands in for viewers that did not send an identity.
	anonymousSessionKey = "anonymous"

	// completionThreshold is the fraction of the reported duration a viewer must reach.
	completionThreshold = 0.9
)

// ActionType enumerates the one-shot engagement actions a viewer can take.
type ActionType string

const (
	// ActionResume records a résumé download.
	ActionResume ActionType = "resume"
	// ActionPortfolio records a portfolio link click.
	ActionPortfolio ActionType = "portfolio"
	// ActionLinkedin records a LinkedIn profile click.
	ActionLinkedin ActionType = "linkedin"
)

// ParseActionType validates raw input and returns the matching ActionType.
func ParseActionType(rawInput string) (ActionType, error) {
	switch ActionType(strings.ToLower(strings.TrimSpace(rawInput))) {
	case ActionResume:
		return ActionResume, nil
	case ActionPortfolio:
		return ActionPortfolio, nil
	case ActionLinkedin:
		return ActionLinkedin, nil
	case "":
		return "", fmt.Errorf("%w: action type is required", ErrInvalidArgument)
	default:
		return "", fmt.Errorf("%w: unknown action type %q", ErrInvalidArgument, rawInput)
	}
}

// ViewerID is an opaque client generated identity. The empty value means anonymous.
type ViewerID string

// NewViewerID trims raw input and enforces storage bounds. Empty input is allowed.
func NewViewerID(rawInput string) (ViewerID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: viewer id exceeds %d characters", ErrInvalidArgument, maxIdentifierLength)
	}
	return ViewerID(trimmed), nil
}

// RequireViewerID is NewViewerID for operations where an identity is mandatory.
func RequireViewerID(rawInput string) (ViewerID, error) {
	viewerID, err := NewViewerID(rawInput)
	if err != nil {
		return "", err
	}
	if viewerID == "" {
		return "", fmt.Errorf("%w: viewer id is required", ErrInvalidArgument)
	}
	return viewerID, nil
}

// String returns the underlying identifier.
func (id ViewerID) String() string {
	return string(id)
}

// Pitch is the persisted elevator pitch together with its aggregate engagement counters.
type Pitch struct {
	ID                string               `gorm:"column:id;primaryKey;size:64;not null" json:"id"`
	ShareID           string               `gorm:"column:share_id;size:190;not null;uniqueIndex" json:"shareId"`
	Title             string               `gorm:"column:title;size:200;not null" json:"title"`
	VideoURL          string               `gorm:"column:video_url;size:1024;not null" json:"videoUrl"`
	VideoAssetKey     string               `gorm:"column:video_asset_key;size:512;not null;default:''" json:"-"`
	ViewCount         int64                `gorm:"column:view_count;not null;default:0" json:"viewCount"`
	UniqueViewerCount int64                `gorm:"column:unique_viewer_count;not null;default:0" json:"uniqueViewerCount"`
	ResumeDownloads   int64                `gorm:"column:resume_downloads;not null;default:0" json:"resumeDownloads"`
	PortfolioClicks   int64                `gorm:"column:portfolio_clicks;not null;default:0" json:"portfolioClicks"`
	LinkedinClicks    int64                `gorm:"column:linkedin_clicks;not null;default:0" json:"linkedinClicks"`
	CompletionRate    float64              `gorm:"column:completion_rate;not null;default:0" json:"completionRate"`
	FirstViewed       *time.Time           `gorm:"column:first_viewed" json:"firstViewed,omitempty"`
	LastViewed        *time.Time           `gorm:"column:last_viewed" json:"lastViewed,omitempty"`
	UniqueViewers     []string             `gorm:"column:unique_viewers;type:text;serializer:json" json:"-"`
	ViewerSessions    map[string]time.Time `gorm:"column:viewer_sessions;type:text;serializer:json" json:"-"`
	Version           int64                `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt         time.Time            `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time            `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Pitch) TableName() string {
	return "pitches"
}

// ViewerEngagement is the per-(pitch, viewer) engagement sub-record.
type ViewerEngagement struct {
	ID               string    `gorm:"column:id;primaryKey;size:64;not null"`
	PitchID          string    `gorm:"column:pitch_id;size:64;not null;uniqueIndex:idx_pitch_viewer,priority:1"`
	ViewerID         string    `gorm:"column:viewer_id;size:190;not null;uniqueIndex:idx_pitch_viewer,priority:2"`
	Position         int       `gorm:"column:position;not null"`
	FirstView        time.Time `gorm:"column:first_view;not null"`
	LastView         time.Time `gorm:"column:last_view;not null"`
	TotalWatchTime   float64   `gorm:"column:total_watch_time;not null"`
	CompletedVideo   bool      `gorm:"column:completed_video;not null"`
	ResumeDownloaded bool      `gorm:"column:resume_downloaded;not null"`
	PortfolioClicked bool      `gorm:"column:portfolio_clicked;not null"`
	LinkedinClicked  bool      `gorm:"column:linkedin_clicked;not null"`
}

// TableName provides the explicit table binding for GORM.
func (ViewerEngagement) TableName() string {
	return "pitch_viewers"
}

// flag reports whether the viewer has performed the given action.
func (v *ViewerEngagement) flag(action ActionType) bool {
	switch action {
	case ActionResume:
		return v.ResumeDownloaded
	case ActionPortfolio:
		return v.PortfolioClicked
	case ActionLinkedin:
		return v.LinkedinClicked
	}
	return false
}

func (v *ViewerEngagement) setFlag(action ActionType) {
	switch action {
	case ActionResume:
		v.ResumeDownloaded = true
	case ActionPortfolio:
		v.PortfolioClicked = true
	case ActionLinkedin:
		v.LinkedinClicked = true
	}
}

// counter returns the pitch-level counter backing the given action.
func (p *Pitch) counter(action ActionType) *int64 {
	switch action {
	case ActionResume:
		return &p.ResumeDownloads
	case ActionPortfolio:
		return &p.PortfolioClicks
	case ActionLinkedin:
		return &p.LinkedinClicks
	}
	return nil
}

// ProgressReport is a single watch-progress tick from a viewer.
type ProgressReport struct {
	ViewerID    ViewerID
	CurrentTime float64
	// Duration is optional; nil or non-positive values disable completion detection.
	Duration *float64
}

// NewPitch describes a pitch being published.
type NewPitch struct {
	Title         string
	VideoURL      string
	VideoAssetKey string
}
