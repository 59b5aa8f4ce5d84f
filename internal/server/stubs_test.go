package server

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/bashirbobboi/elevator-pitch/internal/assets"
	"github.com/bashirbobboi/elevator-pitch/internal/auth"
	"github.com/bashirbobboi/elevator-pitch/internal/pitches"
	"github.com/bashirbobboi/elevator-pitch/internal/profiles"
)

type stubTokenManager struct {
	validateErr error
}

func (stubTokenManager) IssueOwnerToken() (auth.IssuedToken, error) {
	return auth.IssuedToken{Token: "issued-token", ExpiresIn: 3600}, nil
}

func (s stubTokenManager) ValidateRequest(r *http.Request) (string, error) {
	if auth.TokenFromRequest(r, auth.DefaultCookieName) == "" {
		return "", auth.ErrMissingToken
	}
	if s.validateErr != nil {
		return "", s.validateErr
	}
	return auth.OwnerSubject, nil
}

func (stubTokenManager) CookieName() string {
	return auth.DefaultCookieName
}

type stubPasswordChecker struct {
	password string
}

func (s stubPasswordChecker) Check(password string) error {
	if password != s.password {
		return auth.ErrInvalidCredentials
	}
	return nil
}

// stubPitchService records calls and returns canned results. Unset funcs return zero values.
type stubPitchService struct {
	mu    sync.Mutex
	calls []string

	recordOpen     func(shareID, viewerID string) (pitches.OpenResult, error)
	recordProgress func(shareID string, report pitches.ProgressReport) (pitches.ProgressResult, error)
	recordClick    func(shareID, viewerID, action string) (pitches.ClickResult, error)
	pitchReport    func(pitchID string) (pitches.Report, error)
	createPitch    func(input pitches.NewPitch) (pitches.Pitch, error)
	getPitch       func(pitchID string) (pitches.Pitch, error)
	getPublicPitch func(shareID string) (pitches.Pitch, error)
}

func (s *stubPitchService) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *stubPitchService) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *stubPitchService) RecordOpen(_ context.Context, shareID string, viewerID string) (pitches.OpenResult, error) {
	s.record("RecordOpen:" + shareID + ":" + viewerID)
	if s.recordOpen == nil {
		return pitches.OpenResult{}, nil
	}
	return s.recordOpen(shareID, viewerID)
}

func (s *stubPitchService) RecordProgress(_ context.Context, shareID string, report pitches.ProgressReport) (pitches.ProgressResult, error) {
	s.record("RecordProgress:" + shareID)
	if s.recordProgress == nil {
		return pitches.ProgressResult{}, nil
	}
	return s.recordProgress(shareID, report)
}

func (s *stubPitchService) RecordClick(_ context.Context, shareID string, viewerID string, action string) (pitches.ClickResult, error) {
	s.record("RecordClick:" + shareID)
	if s.recordClick == nil {
		return pitches.ClickResult{}, nil
	}
	return s.recordClick(shareID, viewerID, action)
}

func (s *stubPitchService) PitchReport(_ context.Context, pitchID string) (pitches.Report, error) {
	s.record("PitchReport:" + pitchID)
	if s.pitchReport == nil {
		return pitches.Report{PitchID: pitchID}, nil
	}
	return s.pitchReport(pitchID)
}

func (s *stubPitchService) AllReports(context.Context) ([]pitches.Report, error) {
	s.record("AllReports")
	return []pitches.Report{}, nil
}

func (s *stubPitchService) CreatePitch(_ context.Context, input pitches.NewPitch) (pitches.Pitch, error) {
	s.record("CreatePitch:" + input.Title)
	if s.createPitch == nil {
		return pitches.Pitch{ID: "pitch-1", Title: input.Title, VideoURL: input.VideoURL}, nil
	}
	return s.createPitch(input)
}

func (s *stubPitchService) RenamePitch(_ context.Context, pitchID string, title string) (pitches.Pitch, error) {
	s.record("RenamePitch:" + pitchID + ":" + title)
	return pitches.Pitch{ID: pitchID, Title: title}, nil
}

func (s *stubPitchService) DeletePitch(_ context.Context, pitchID string) (pitches.Pitch, error) {
	s.record("DeletePitch:" + pitchID)
	return pitches.Pitch{ID: pitchID}, nil
}

func (s *stubPitchService) ListPitches(context.Context) ([]pitches.Pitch, error) {
	s.record("ListPitches")
	return nil, nil
}

func (s *stubPitchService) GetPitch(_ context.Context, pitchID string) (pitches.Pitch, error) {
	s.record("GetPitch:" + pitchID)
	if s.getPitch == nil {
		return pitches.Pitch{ID: pitchID}, nil
	}
	return s.getPitch(pitchID)
}

func (s *stubPitchService) GetPublicPitch(_ context.Context, shareID string) (pitches.Pitch, error) {
	s.record("GetPublicPitch:" + shareID)
	if s.getPublicPitch == nil {
		return pitches.Pitch{ShareID: shareID}, nil
	}
	return s.getPublicPitch(shareID)
}

type stubProfileService struct {
	current    profiles.Profile
	currentErr error
}

func (s *stubProfileService) Create(_ context.Context, input profiles.Input) (profiles.Profile, error) {
	return profiles.Profile{FirstName: input.FirstName}, nil
}

func (s *stubProfileService) Current(context.Context) (profiles.Profile, error) {
	return s.current, s.currentErr
}

func (s *stubProfileService) Update(context.Context, profiles.Input) (profiles.Profile, error) {
	return s.current, s.currentErr
}

func (s *stubProfileService) Delete(context.Context) (profiles.Profile, error) {
	return s.current, s.currentErr
}

func (s *stubProfileService) SetPicture(_ context.Context, upload assets.Upload) (profiles.Profile, error) {
	_, _ = io.Copy(io.Discard, upload.Body)
	return s.current, s.currentErr
}

func (s *stubProfileService) SetResume(_ context.Context, upload assets.Upload) (profiles.Profile, error) {
	_, _ = io.Copy(io.Discard, upload.Body)
	return s.current, s.currentErr
}

type memoryAssetStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
}

func newMemoryAssetStore() *memoryAssetStore {
	return &memoryAssetStore{objects: make(map[string][]byte)}
}

func (s *memoryAssetStore) Put(_ context.Context, upload assets.Upload) (assets.Asset, error) {
	if err := assets.Validate(upload); err != nil {
		return assets.Asset{}, err
	}
	body, err := io.ReadAll(upload.Body)
	if err != nil {
		return assets.Asset{}, err
	}
	key := string(upload.Kind) + "s/" + upload.Filename
	s.mu.Lock()
	s.objects[key] = body
	s.mu.Unlock()
	return assets.Asset{Key: key, URL: "/uploads/" + key, Size: int64(len(body))}, nil
}

func (s *memoryAssetStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}
