package pitches

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sequenceIDProvider struct {
	mu   sync.Mutex
	next int
}

func (p *sequenceIDProvider) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return fmt.Sprintf("id-%04d", p.next), nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []EngagementEvent
}

func (p *recordingPublisher) PublishEngagement(event EngagementEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) Events() []EngagementEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]EngagementEvent(nil), p.events...)
}

type recordingAssets struct {
	deleted []string
	err     error
}

func (a *recordingAssets) Delete(_ context.Context, key string) error {
	a.deleted = append(a.deleted, key)
	return a.err
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "pitches.db")), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&Pitch{}, &ViewerEngagement{}))
	return db
}

type testHarness struct {
	service   *Service
	db        *gorm.DB
	clock     *manualClock
	publisher *recordingPublisher
	assets    *recordingAssets
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	db := openTestDatabase(t)
	clock := newManualClock()
	publisher := &recordingPublisher{}
	assets := &recordingAssets{}
	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      clock.Now,
		IDProvider: &sequenceIDProvider{},
		ViewWindow: 30 * time.Second,
		Assets:     assets,
		Publisher:  publisher,
	})
	require.NoError(t, err)
	service.shareSuffix = func() (string, error) { return "abcd1234", nil }
	return &testHarness{service: service, db: db, clock: clock, publisher: publisher, assets: assets}
}

func (h *testHarness) createPitch(t *testing.T, title string) Pitch {
	t.Helper()
	pitch, err := h.service.CreatePitch(context.Background(), NewPitch{
		Title:         title,
		VideoURL:      "/uploads/videos/" + title + ".mp4",
		VideoAssetKey: "videos/" + title + ".mp4",
	})
	require.NoError(t, err)
	return pitch
}

func floatPointer(value float64) *float64 {
	return &value
}
