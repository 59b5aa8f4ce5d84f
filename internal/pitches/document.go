package pitches

import (
	"sort"
	"time"
)

// Document is a pitch with its viewer sub-records, loaded and persisted as one unit.
type Document struct {
	Pitch   Pitch
	Viewers []ViewerEngagement

	viewerIndex map[string]int
	uniqueSet   map[string]struct{}
	dirty       map[string]struct{}
}

func newDocument(pitch Pitch, viewers []ViewerEngagement) *Document {
	sort.SliceStable(viewers, func(i, j int) bool {
		return viewers[i].Position < viewers[j].Position
	})
	doc := &Document{
		Pitch:       pitch,
		Viewers:     viewers,
		viewerIndex: make(map[string]int, len(viewers)),
		uniqueSet:   make(map[string]struct{}, len(pitch.UniqueViewers)),
		dirty:       make(map[string]struct{}),
	}
	if doc.Pitch.ViewerSessions == nil {
		doc.Pitch.ViewerSessions = make(map[string]time.Time)
	}
	for index, viewer := range viewers {
		doc.viewerIndex[viewer.ViewerID] = index
	}
	deduped := make([]string, 0, len(pitch.UniqueViewers))
	for _, viewerID := range pitch.UniqueViewers {
		if _, seen := doc.uniqueSet[viewerID]; seen {
			continue
		}
		doc.uniqueSet[viewerID] = struct{}{}
		deduped = append(deduped, viewerID)
	}
	doc.Pitch.UniqueViewers = deduped
	doc.Pitch.UniqueViewerCount = int64(len(deduped))
	return doc
}

// viewer returns the sub-record for viewerID, creating it when the viewer is new.
// New sub-records start with firstView = lastView = now and every flag cleared.
func (d *Document) viewer(viewerID ViewerID, now time.Time) *ViewerEngagement {
	key := viewerID.String()
	d.dirty[key] = struct{}{}
	if index, ok := d.viewerIndex[key]; ok {
		return &d.Viewers[index]
	}
	d.Viewers = append(d.Viewers, ViewerEngagement{
		PitchID:   d.Pitch.ID,
		ViewerID:  key,
		Position:  len(d.Viewers),
		FirstView: now,
		LastView:  now,
	})
	d.viewerIndex[key] = len(d.Viewers) - 1
	return &d.Viewers[len(d.Viewers)-1]
}

// lookupViewer returns the sub-record without creating one.
func (d *Document) lookupViewer(viewerID ViewerID) (ViewerEngagement, bool) {
	index, ok := d.viewerIndex[viewerID.String()]
	if !ok {
		return ViewerEngagement{}, false
	}
	return d.Viewers[index], true
}

func (d *Document) hasUniqueViewer(viewerID ViewerID) bool {
	_, ok := d.uniqueSet[viewerID.String()]
	return ok
}

func (d *Document) addUniqueViewer(viewerID ViewerID) {
	if d.hasUniqueViewer(viewerID) {
		return
	}
	d.uniqueSet[viewerID.String()] = struct{}{}
	d.Pitch.UniqueViewers = append(d.Pitch.UniqueViewers, viewerID.String())
	d.Pitch.UniqueViewerCount = int64(len(d.Pitch.UniqueViewers))
}

// dirtyViewers returns the sub-records touched since the document was loaded.
func (d *Document) dirtyViewers() []*ViewerEngagement {
	result := make([]*ViewerEngagement, 0, len(d.dirty))
	for index := range d.Viewers {
		if _, ok := d.dirty[d.Viewers[index].ViewerID]; ok {
			result = append(result, &d.Viewers[index])
		}
	}
	return result
}

func (d *Document) clearDirty() {
	d.dirty = make(map[string]struct{})
}

// refreshCompletionRate recomputes the pitch completion rate from the sub-records.
func (d *Document) refreshCompletionRate() {
	d.Pitch.CompletionRate = completionRate(d.Viewers)
}
