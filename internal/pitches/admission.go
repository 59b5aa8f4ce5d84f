package pitches

import "time"

// admitView decides whether an open event counts as a new view and applies it.
// A view is admitted when the session key has no previous admission or the previous
// one is older than window. Suppressed views leave the document untouched.
func admitView(doc *Document, viewerID ViewerID, now time.Time, window time.Duration) bool {
	sessionKey := viewerID.String()
	if sessionKey == "" {
		sessionKey = anonymousSessionKey
	}

	if lastViewTime, ok := doc.Pitch.ViewerSessions[sessionKey]; ok {
		if now.Sub(lastViewTime) <= window {
			return false
		}
	}

	pruneSessions(doc.Pitch.ViewerSessions, now, window)
	doc.Pitch.ViewCount++
	doc.Pitch.ViewerSessions[sessionKey] = now

	if viewerID != "" {
		if !doc.hasUniqueViewer(viewerID) {
			doc.addUniqueViewer(viewerID)
			if len(doc.Pitch.UniqueViewers) == 1 {
				doc.Pitch.FirstViewed = timePointer(now)
			}
		}
		viewer := doc.viewer(viewerID, now)
		viewer.LastView = now
	}

	doc.Pitch.LastViewed = timePointer(now)
	doc.refreshCompletionRate()
	return true
}

// pruneSessions drops session entries that can no longer suppress a view.
func pruneSessions(sessions map[string]time.Time, now time.Time, window time.Duration) {
	for key, lastViewTime := range sessions {
		if now.Sub(lastViewTime) > window {
			delete(sessions, key)
		}
	}
}

func timePointer(value time.Time) *time.Time {
	v := value
	return &v
}
