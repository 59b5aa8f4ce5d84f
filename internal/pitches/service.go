package pitches

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opServiceNew      = "pitches.service.new"
	opRecordOpen      = "pitches.record_open"
	opRecordProgress  = "pitches.record_progress"
	opRecordClick     = "pitches.record_click"
	opPitchReport     = "pitches.pitch_report"
	opAllReports      = "pitches.all_reports"
	opCreatePitch     = "pitches.create_pitch"
	opRenamePitch     = "pitches.rename_pitch"
	opDeletePitch     = "pitches.delete_pitch"
	opListPitches     = "pitches.list_pitches"
	opGetPitch        = "pitches.get_pitch"
	opGetPublicPitch  = "pitches.get_public_pitch"
	fieldShareID      = "share_id"
	fieldViewerID     = "viewer_id"
	defaultViewWindow = 30 * time.Second

	maxMutationAttempts = 3
)

var noOpLogger = zap.NewNop()

// AssetRemover deletes a stored binary asset by key.
type AssetRemover interface {
	Delete(ctx context.Context, key string) error
}

// EngagementPublisher receives an event for every applied tracking mutation.
type EngagementPublisher interface {
	PublishEngagement(event EngagementEvent)
}

// EngagementKind names the tracking event that changed a pitch.
type EngagementKind string

const (
	EngagementOpen     EngagementKind = "open"
	EngagementProgress EngagementKind = "progress"
	EngagementClick    EngagementKind = "click"
)

// EngagementEvent describes one applied tracking mutation.
type EngagementEvent struct {
	PitchID    string
	ShareID    string
	Kind       EngagementKind
	ViewerID   string
	ActionType ActionType
	Timestamp  time.Time
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	// ViewWindow is the minimum gap between two admitted opens from the same viewer.
	ViewWindow time.Duration
	Assets     AssetRemover
	Publisher  EngagementPublisher
	Metrics    *Metrics
	Logger     *zap.Logger
}

// Service implements view admission, progress and click tracking, publishing and analytics.
type Service struct {
	db          *gorm.DB
	clock       func() time.Time
	store       *Store
	viewWindow  time.Duration
	assets      AssetRemover
	publisher   EngagementPublisher
	metrics     *Metrics
	locks       *keyedMutex
	shareSuffix func() (string, error)
	logger      *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	viewWindow := cfg.ViewWindow
	if viewWindow <= 0 {
		viewWindow = defaultViewWindow
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:          cfg.Database,
		clock:       clock,
		store:       NewStore(cfg.IDProvider),
		viewWindow:  viewWindow,
		assets:      cfg.Assets,
		publisher:   cfg.Publisher,
		metrics:     cfg.Metrics,
		locks:       newKeyedMutex(),
		shareSuffix: randomShareSuffix,
		logger:      logger,
	}, nil
}

// OpenResult reports the admission decision and the pitch's aggregate numbers.
type OpenResult struct {
	Pitch    Pitch
	Admitted bool
}

// RecordOpen runs view admission for an open event. Suppressed views succeed without
// changing any counter.
func (s *Service) RecordOpen(ctx context.Context, shareID string, rawViewerID string) (OpenResult, error) {
	viewerID, err := NewViewerID(rawViewerID)
	if err != nil {
		// Opens never fail on the viewer id; an unusable one is admitted as anonymous.
		s.loggerOrDefault().Debug("viewer id ignored",
			zap.String(fieldShareID, shareID),
			zap.Error(err))
		viewerID = ""
	}

	admitted := false
	doc, err := s.mutate(ctx, opRecordOpen, shareID, s.loadByShareID(shareID), func(doc *Document, now time.Time) (bool, error) {
		admitted = admitView(doc, viewerID, now, s.viewWindow)
		return admitted, nil
	})
	if err != nil {
		return OpenResult{}, err
	}

	s.metrics.observeView(admitted)
	if admitted {
		s.publish(doc, EngagementOpen, viewerID, "")
	} else {
		s.loggerOrDefault().Debug("view suppressed",
			zap.String(fieldShareID, shareID),
			zap.String(fieldViewerID, viewerID.String()))
	}
	return OpenResult{Pitch: doc.Pitch, Admitted: admitted}, nil
}

// ProgressResult reports the viewer's watch time after a progress report.
type ProgressResult struct {
	WatchTime      float64
	CompletedVideo bool
	CompletionRate float64
}

// RecordProgress folds a progress report into the viewer's sub-record.
func (s *Service) RecordProgress(ctx context.Context, shareID string, report ProgressReport) (ProgressResult, error) {
	if err := validateProgress(report); err != nil {
		return ProgressResult{}, newServiceError(opRecordProgress, reasonFor(err), err)
	}

	var result ProgressResult
	doc, err := s.mutate(ctx, opRecordProgress, shareID, s.loadByShareID(shareID), func(doc *Document, now time.Time) (bool, error) {
		result.WatchTime = applyProgress(doc, report, now)
		return true, nil
	})
	if err != nil {
		return ProgressResult{}, err
	}

	viewer, _ := doc.lookupViewer(report.ViewerID)
	result.CompletedVideo = viewer.CompletedVideo
	result.CompletionRate = doc.Pitch.CompletionRate

	s.metrics.observeProgress()
	s.publish(doc, EngagementProgress, report.ViewerID, "")
	return result, nil
}

// ClickResult reports the pitch-wide total for the clicked action.
type ClickResult struct {
	ActionType     ActionType
	TotalForAction int64
	FirstClick     bool
}

// RecordClick records a one-shot engagement action for a viewer.
func (s *Service) RecordClick(ctx context.Context, shareID string, rawViewerID string, rawAction string) (ClickResult, error) {
	viewerID, err := RequireViewerID(rawViewerID)
	if err != nil {
		return ClickResult{}, newServiceError(opRecordClick, reasonFor(err), err)
	}
	action, err := ParseActionType(rawAction)
	if err != nil {
		return ClickResult{}, newServiceError(opRecordClick, reasonFor(err), err)
	}

	result := ClickResult{ActionType: action}
	doc, err := s.mutate(ctx, opRecordClick, shareID, s.loadByShareID(shareID), func(doc *Document, now time.Time) (bool, error) {
		result.FirstClick, result.TotalForAction = applyClick(doc, viewerID, action, now)
		return true, nil
	})
	if err != nil {
		return ClickResult{}, err
	}

	s.metrics.observeAction(action, result.FirstClick)
	s.publish(doc, EngagementClick, viewerID, action)
	return result, nil
}

// PitchReport computes the full report, including viewer drill-down, for one pitch.
func (s *Service) PitchReport(ctx context.Context, pitchID string) (Report, error) {
	if s.db == nil {
		return Report{}, s.fail(opPitchReport, storageError(errMissingDatabase))
	}
	doc, err := s.store.LoadByID(s.db.WithContext(ctx), pitchID)
	if err != nil {
		return Report{}, s.fail(opPitchReport, err, zap.String("pitch_id", pitchID))
	}
	return buildReport(doc, true), nil
}

// AllReports computes a summary report for every pitch, without viewer drill-down.
func (s *Service) AllReports(ctx context.Context) ([]Report, error) {
	if s.db == nil {
		return nil, s.fail(opAllReports, storageError(errMissingDatabase))
	}
	documents, err := s.store.LoadAll(s.db.WithContext(ctx))
	if err != nil {
		return nil, s.fail(opAllReports, err)
	}
	reports := make([]Report, 0, len(documents))
	for _, doc := range documents {
		reports = append(reports, buildReport(doc, false))
	}
	return reports, nil
}

// CreatePitch publishes a new pitch and mints its share id.
func (s *Service) CreatePitch(ctx context.Context, input NewPitch) (Pitch, error) {
	title, err := normalizeTitle(input.Title)
	if err != nil {
		return Pitch{}, newServiceError(opCreatePitch, reasonFor(err), err)
	}
	videoURL := strings.TrimSpace(input.VideoURL)
	if videoURL == "" {
		err := fmt.Errorf("%w: video url is required", ErrInvalidArgument)
		return Pitch{}, newServiceError(opCreatePitch, reasonFor(err), err)
	}

	if s.db == nil {
		return Pitch{}, s.fail(opCreatePitch, storageError(errMissingDatabase))
	}

	shareID, err := mintShareID(title, s.shareSuffix)
	if err != nil {
		return Pitch{}, s.fail(opCreatePitch, storageError(err))
	}

	pitch := Pitch{
		ShareID:       shareID,
		Title:         title,
		VideoURL:      videoURL,
		VideoAssetKey: strings.TrimSpace(input.VideoAssetKey),
	}
	if err := s.store.Create(s.db.WithContext(ctx), &pitch); err != nil {
		return Pitch{}, s.fail(opCreatePitch, err, zap.String(fieldShareID, shareID))
	}
	s.loggerOrDefault().Info("pitch created", zap.String("pitch_id", pitch.ID), zap.String(fieldShareID, shareID))
	return pitch, nil
}

// RenamePitch changes the title and re-mints the share id when the title changed.
func (s *Service) RenamePitch(ctx context.Context, pitchID string, rawTitle string) (Pitch, error) {
	title, err := normalizeTitle(rawTitle)
	if err != nil {
		return Pitch{}, newServiceError(opRenamePitch, reasonFor(err), err)
	}

	doc, err := s.mutate(ctx, opRenamePitch, pitchID, s.loadByID(pitchID), func(doc *Document, _ time.Time) (bool, error) {
		if doc.Pitch.Title == title {
			return false, nil
		}
		shareID, err := mintShareID(title, s.shareSuffix)
		if err != nil {
			return false, storageError(err)
		}
		doc.Pitch.Title = title
		doc.Pitch.ShareID = shareID
		return true, nil
	})
	if err != nil {
		return Pitch{}, err
	}
	return doc.Pitch, nil
}

// DeletePitch removes the pitch and, best effort, its video asset.
func (s *Service) DeletePitch(ctx context.Context, pitchID string) (Pitch, error) {
	if s.db == nil {
		return Pitch{}, s.fail(opDeletePitch, storageError(errMissingDatabase))
	}
	var deleted Pitch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc, err := s.store.LoadByID(tx, pitchID)
		if err != nil {
			return err
		}
		deleted = doc.Pitch
		return s.store.Delete(tx, pitchID)
	})
	if err != nil {
		return Pitch{}, s.fail(opDeletePitch, err, zap.String("pitch_id", pitchID))
	}

	if s.assets != nil && deleted.VideoAssetKey != "" {
		if err := s.assets.Delete(ctx, deleted.VideoAssetKey); err != nil {
			s.loggerOrDefault().Warn("video asset cleanup failed",
				zap.String("pitch_id", pitchID),
				zap.String("asset_key", deleted.VideoAssetKey),
				zap.Error(err))
		}
	}
	s.loggerOrDefault().Info("pitch deleted", zap.String("pitch_id", pitchID))
	return deleted, nil
}

// ListPitches returns every pitch, newest first.
func (s *Service) ListPitches(ctx context.Context) ([]Pitch, error) {
	if s.db == nil {
		return nil, s.fail(opListPitches, storageError(errMissingDatabase))
	}
	pitches, err := s.store.List(s.db.WithContext(ctx))
	if err != nil {
		return nil, s.fail(opListPitches, err)
	}
	return pitches, nil
}

// GetPitch returns a pitch by internal id.
func (s *Service) GetPitch(ctx context.Context, pitchID string) (Pitch, error) {
	if s.db == nil {
		return Pitch{}, s.fail(opGetPitch, storageError(errMissingDatabase))
	}
	doc, err := s.store.LoadByID(s.db.WithContext(ctx), pitchID)
	if err != nil {
		return Pitch{}, s.fail(opGetPitch, err, zap.String("pitch_id", pitchID))
	}
	return doc.Pitch, nil
}

// GetPublicPitch resolves a share id without counting a view.
func (s *Service) GetPublicPitch(ctx context.Context, shareID string) (Pitch, error) {
	if s.db == nil {
		return Pitch{}, s.fail(opGetPublicPitch, storageError(errMissingDatabase))
	}
	doc, err := s.store.LoadByShareID(s.db.WithContext(ctx), shareID)
	if err != nil {
		return Pitch{}, s.fail(opGetPublicPitch, err, zap.String(fieldShareID, shareID))
	}
	return doc.Pitch, nil
}

type documentLoader func(tx *gorm.DB) (*Document, error)

// mutation applies a change to a loaded document and reports whether anything changed.
type mutation func(doc *Document, now time.Time) (bool, error)

func (s *Service) loadByShareID(shareID string) documentLoader {
	return func(tx *gorm.DB) (*Document, error) {
		return s.store.LoadByShareID(tx, shareID)
	}
}

func (s *Service) loadByID(pitchID string) documentLoader {
	return func(tx *gorm.DB) (*Document, error) {
		return s.store.LoadByID(tx, pitchID)
	}
}

// mutate runs one read-modify-write cycle. Writers for the same key are serialized in
// process; writers in other processes are caught by the version check and replayed.
func (s *Service) mutate(ctx context.Context, operation, lockKey string, load documentLoader, apply mutation) (*Document, error) {
	if s.db == nil {
		return nil, s.fail(operation, storageError(errMissingDatabase))
	}

	unlock := s.locks.Lock(lockKey)
	defer unlock()

	started := time.Now()
	defer func() {
		s.metrics.observeMutation(operation, time.Since(started).Seconds())
	}()

	for attempt := 1; ; attempt++ {
		var doc *Document
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			loaded, err := load(tx)
			if err != nil {
				return err
			}
			changed, err := apply(loaded, s.clock().UTC())
			if err != nil {
				return err
			}
			if changed {
				if err := s.store.Save(tx, loaded); err != nil {
					return err
				}
			}
			doc = loaded
			return nil
		})
		if err == nil {
			return doc, nil
		}
		if errors.Is(err, ErrVersionConflict) {
			s.metrics.observeConflict()
			if attempt < maxMutationAttempts {
				continue
			}
		}
		return nil, s.fail(operation, err, zap.String("key", lockKey), zap.Int("attempt", attempt))
	}
}

func (s *Service) publish(doc *Document, kind EngagementKind, viewerID ViewerID, action ActionType) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishEngagement(EngagementEvent{
		PitchID:    doc.Pitch.ID,
		ShareID:    doc.Pitch.ShareID,
		Kind:       kind,
		ViewerID:   viewerID.String(),
		ActionType: action,
		Timestamp:  s.clock().UTC(),
	})
}

// fail wraps err in a ServiceError. Only storage-side failures are logged as errors;
// not-found and invalid input are the caller's problem.
func (s *Service) fail(operation string, err error, fields ...zap.Field) error {
	reason := reasonFor(err)
	if reason == "storage_failed" || reason == "version_conflict" {
		s.logError(operation, reason, err, fields...)
	}
	return newServiceError(operation, reason, err)
}

func normalizeTitle(rawTitle string) (string, error) {
	title := strings.TrimSpace(rawTitle)
	if title == "" {
		return "", fmt.Errorf("%w: title is required", ErrInvalidArgument)
	}
	if len(title) > maxTitleLength {
		return "", fmt.Errorf("%w: title exceeds %d characters", ErrInvalidArgument, maxTitleLength)
	}
	return title, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("pitches service error", attrs...)
}
