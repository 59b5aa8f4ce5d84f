package pitches

import (
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var baseTime = time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

func emptyDocument() *Document {
	return newDocument(Pitch{ID: "pitch-1", ShareID: "share-1", Version: 1}, nil)
}

func TestAdmitViewSuppressesWithinWindow(t *testing.T) {
	doc := emptyDocument()
	window := 30 * time.Second

	if !admitView(doc, "viewer-a", baseTime, window) {
		t.Fatalf("expected first open to be admitted")
	}
	if admitView(doc, "viewer-a", baseTime.Add(window), window) {
		t.Fatalf("expected open at the window boundary to be suppressed")
	}
	if !admitView(doc, "viewer-a", baseTime.Add(window+time.Millisecond), window) {
		t.Fatalf("expected open after the window to be admitted")
	}
	if doc.Pitch.ViewCount != 2 {
		t.Fatalf("expected view count 2, got %d", doc.Pitch.ViewCount)
	}
	if doc.Pitch.UniqueViewerCount != 1 || len(doc.Viewers) != 1 {
		t.Fatalf("expected a single unique viewer, got %d/%d", doc.Pitch.UniqueViewerCount, len(doc.Viewers))
	}
	if !doc.Pitch.FirstViewed.Equal(baseTime) {
		t.Fatalf("expected first viewed to stay at the first admission, got %v", doc.Pitch.FirstViewed)
	}
}

func TestAdmitViewSuppressedLeavesDocumentUntouched(t *testing.T) {
	doc := emptyDocument()
	admitView(doc, "viewer-a", baseTime, time.Minute)
	doc.clearDirty()
	lastViewed := *doc.Pitch.LastViewed

	if admitView(doc, "viewer-a", baseTime.Add(10*time.Second), time.Minute) {
		t.Fatalf("expected suppression")
	}
	if !doc.Pitch.LastViewed.Equal(lastViewed) {
		t.Fatalf("expected last viewed unchanged")
	}
	if len(doc.dirtyViewers()) != 0 {
		t.Fatalf("expected no dirty viewers after suppression")
	}
}

func TestAdmitViewPrunesExpiredSessions(t *testing.T) {
	doc := emptyDocument()
	window := 30 * time.Second
	admitView(doc, "viewer-a", baseTime, window)
	admitView(doc, "viewer-b", baseTime.Add(time.Hour), window)

	if _, ok := doc.Pitch.ViewerSessions["viewer-a"]; ok {
		t.Fatalf("expected stale session to be pruned")
	}
	if _, ok := doc.Pitch.ViewerSessions["viewer-b"]; !ok {
		t.Fatalf("expected current session to be recorded")
	}
}

func TestAdmitViewKeepsAnonymousOutOfUniqueViewers(t *testing.T) {
	doc := emptyDocument()
	if !admitView(doc, "", baseTime, time.Second) {
		t.Fatalf("expected anonymous open to be admitted")
	}
	if _, ok := doc.Pitch.ViewerSessions[anonymousSessionKey]; !ok {
		t.Fatalf("expected anonymous session key")
	}
	if len(doc.Pitch.UniqueViewers) != 0 || len(doc.Viewers) != 0 {
		t.Fatalf("anonymous opens must not create viewers")
	}
	if doc.Pitch.FirstViewed != nil {
		t.Fatalf("expected first viewed to remain unset")
	}
}

func TestApplyProgress(t *testing.T) {
	testCases := []struct {
		name          string
		reports       []ProgressReport
		wantWatchTime float64
		wantCompleted bool
	}{
		{
			name:          "reordered ticks keep the maximum",
			reports:       []ProgressReport{{ViewerID: "a", CurrentTime: 20}, {ViewerID: "a", CurrentTime: 8}, {ViewerID: "a", CurrentTime: 14}},
			wantWatchTime: 20,
		},
		{
			name:          "ninety percent completes",
			reports:       []ProgressReport{{ViewerID: "a", CurrentTime: 54, Duration: floatPointer(60)}},
			wantWatchTime: 54,
			wantCompleted: true,
		},
		{
			name:          "just below ninety percent",
			reports:       []ProgressReport{{ViewerID: "a", CurrentTime: 53.9, Duration: floatPointer(60)}},
			wantWatchTime: 53.9,
		},
		{
			name:          "zero duration is ignored",
			reports:       []ProgressReport{{ViewerID: "a", CurrentTime: 5, Duration: floatPointer(0)}},
			wantWatchTime: 5,
		},
		{
			name:          "infinite duration is ignored",
			reports:       []ProgressReport{{ViewerID: "a", CurrentTime: 5, Duration: floatPointer(math.Inf(1))}},
			wantWatchTime: 5,
		},
		{
			name: "completion survives a rewind",
			reports: []ProgressReport{
				{ViewerID: "a", CurrentTime: 30, Duration: floatPointer(30)},
				{ViewerID: "a", CurrentTime: 0, Duration: floatPointer(30)},
			},
			wantWatchTime: 30,
			wantCompleted: true,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			doc := emptyDocument()
			var watchTime float64
			for index, report := range testCase.reports {
				watchTime = applyProgress(doc, report, baseTime.Add(time.Duration(index)*time.Second))
			}
			if watchTime != testCase.wantWatchTime {
				t.Fatalf("expected watch time %v, got %v", testCase.wantWatchTime, watchTime)
			}
			viewer, ok := doc.lookupViewer("a")
			if !ok {
				t.Fatalf("expected viewer sub-record")
			}
			if viewer.CompletedVideo != testCase.wantCompleted {
				t.Fatalf("expected completed=%v", testCase.wantCompleted)
			}
			if len(doc.Pitch.UniqueViewers) != 0 {
				t.Fatalf("progress must not add unique viewers")
			}
		})
	}
}

func TestValidateProgress(t *testing.T) {
	invalid := []ProgressReport{
		{CurrentTime: 1},
		{ViewerID: "a", CurrentTime: -0.5},
		{ViewerID: "a", CurrentTime: math.NaN()},
		{ViewerID: "a", CurrentTime: math.Inf(1)},
	}
	for _, report := range invalid {
		if err := validateProgress(report); err == nil {
			t.Fatalf("expected %+v to be rejected", report)
		}
	}
	if err := validateProgress(ProgressReport{ViewerID: "a"}); err != nil {
		t.Fatalf("expected zero position to be valid: %v", err)
	}
}

func TestApplyClickCountsViewersNotClicks(t *testing.T) {
	doc := emptyDocument()
	first, total := applyClick(doc, "a", ActionPortfolio, baseTime)
	if !first || total != 1 {
		t.Fatalf("expected first click, total 1; got %v %d", first, total)
	}
	first, total = applyClick(doc, "a", ActionPortfolio, baseTime.Add(time.Second))
	if first || total != 1 {
		t.Fatalf("expected repeat click to be absorbed; got %v %d", first, total)
	}
	if _, total = applyClick(doc, "b", ActionPortfolio, baseTime); total != 2 {
		t.Fatalf("expected second viewer to increment, got %d", total)
	}
	if doc.Pitch.ResumeDownloads != 0 || doc.Pitch.LinkedinClicks != 0 {
		t.Fatalf("unrelated counters changed")
	}
	viewer, _ := doc.lookupViewer("a")
	if !viewer.LastView.Equal(baseTime.Add(time.Second)) {
		t.Fatalf("expected click to refresh last view")
	}
}

func TestBuildReportRates(t *testing.T) {
	doc := emptyDocument()
	for _, viewerID := range []ViewerID{"a", "b", "c", "d"} {
		admitView(doc, viewerID, baseTime, time.Second)
	}
	applyProgress(doc, ProgressReport{ViewerID: "a", CurrentTime: 40, Duration: floatPointer(40)}, baseTime)
	applyProgress(doc, ProgressReport{ViewerID: "b", CurrentTime: 20}, baseTime)
	applyClick(doc, "a", ActionResume, baseTime)
	applyClick(doc, "c", ActionLinkedin, baseTime)
	applyClick(doc, "d", ActionLinkedin, baseTime)

	report := buildReport(doc, true)
	if report.CompletionRate != 25 {
		t.Fatalf("expected completion rate 25, got %v", report.CompletionRate)
	}
	if report.AvgWatchTime != 15 {
		t.Fatalf("expected average watch time 15, got %v", report.AvgWatchTime)
	}
	if report.ResumeDownloadRate != 25 || report.LinkedinClickRate != 50 || report.PortfolioClickRate != 0 {
		t.Fatalf("unexpected rates: %+v", report)
	}
	if len(report.Viewers) != 4 || report.Viewers[0].ViewerID != "a" {
		t.Fatalf("expected viewers in first-seen order, got %+v", report.Viewers)
	}
	if summary := buildReport(doc, false); summary.Viewers != nil {
		t.Fatalf("expected summary without viewer drill-down")
	}
}

func TestBuildReportActionRatesCountOnlyAdmittedViewers(t *testing.T) {
	doc := emptyDocument()
	admitView(doc, "a", baseTime, time.Second)
	applyClick(doc, "a", ActionResume, baseTime)
	applyClick(doc, "b", ActionResume, baseTime)
	applyClick(doc, "c", ActionResume, baseTime)

	report := buildReport(doc, true)
	if report.UniqueViewers != 1 || report.TotalResumeDownloads != 3 {
		t.Fatalf("unexpected totals: %+v", report)
	}
	if report.ResumeDownloadRate != 100 {
		t.Fatalf("expected resume rate 100, got %v", report.ResumeDownloadRate)
	}
	if len(report.Viewers) != 3 {
		t.Fatalf("expected 3 viewer sub-records, got %d", len(report.Viewers))
	}
}

func TestBuildReportEmptyPitch(t *testing.T) {
	report := buildReport(emptyDocument(), true)
	if report.CompletionRate != 0 || report.AvgWatchTime != 0 || report.ResumeDownloadRate != 0 {
		t.Fatalf("expected zeroed statistics, got %+v", report)
	}
	if report.Viewers == nil || len(report.Viewers) != 0 {
		t.Fatalf("expected empty viewer slice")
	}
}

func TestNewDocumentDeduplicatesUniqueViewers(t *testing.T) {
	doc := newDocument(Pitch{UniqueViewers: []string{"a", "b", "a"}, UniqueViewerCount: 3}, nil)
	if doc.Pitch.UniqueViewerCount != 2 || len(doc.Pitch.UniqueViewers) != 2 {
		t.Fatalf("expected duplicates to collapse, got %v", doc.Pitch.UniqueViewers)
	}
}

func TestParseActionType(t *testing.T) {
	for raw, want := range map[string]ActionType{"resume": ActionResume, " Portfolio ": ActionPortfolio, "LINKEDIN": ActionLinkedin} {
		got, err := ParseActionType(raw)
		if err != nil || got != want {
			t.Fatalf("ParseActionType(%q) = %q, %v", raw, got, err)
		}
	}
	if _, err := ParseActionType("github"); err == nil {
		t.Fatalf("expected unknown action to fail")
	}
}

func TestSlugify(t *testing.T) {
	testCases := map[string]string{
		"Backend Engineer":      "backend-engineer",
		"  --Hello,   World--":  "hello-world",
		"Ünïcode only ✓":        "n-code-only",
		"!!!":                   fallbackSlug,
		strings.Repeat("a", 80): strings.Repeat("a", maxSlugLength),
	}
	for input, want := range testCases {
		if got := slugify(input); got != want {
			t.Fatalf("slugify(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestRandomShareSuffixLength(t *testing.T) {
	suffix, err := randomShareSuffix()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(suffix) != shareSuffixLength {
		t.Fatalf("expected %d characters, got %q", shareSuffixLength, suffix)
	}
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	locks := newKeyedMutex()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("share")
			defer unlock()
			current := counter
			time.Sleep(time.Microsecond)
			counter = current + 1
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Fatalf("expected 50 serialized increments, got %d", counter)
	}
	if locks.size() != 0 {
		t.Fatalf("expected lock entries to be released")
	}
}

func TestMetricsObserveTracking(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.observeView(true)
	metrics.observeView(false)
	metrics.observeView(false)
	metrics.observeAction(ActionResume, true)
	metrics.observeConflict()

	if got := testutil.ToFloat64(metrics.views.WithLabelValues("suppressed")); got != 2 {
		t.Fatalf("expected 2 suppressed views, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.actions.WithLabelValues("resume", "true")); got != 1 {
		t.Fatalf("expected 1 first resume click, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.versionConflicts); got != 1 {
		t.Fatalf("expected 1 conflict, got %v", got)
	}

	var nilMetrics *Metrics
	nilMetrics.observeView(true)
	nilMetrics.observeMutation("noop", 1)
}
