package server

import (
	"context"
	"sync"
	"time"

	"github.com/bashirbobboi/elevator-pitch/internal/pitches"
)

const (
	RealtimeEventEngagement = "engagement"
	realtimeEventHeartbeat  = "heartbeat"
	realtimeSourceBackend   = "pitch-api"

	// AllPitches subscribes to engagement on every pitch.
	AllPitches = "*"
)

// RealtimeMessage is one engagement update delivered to the owner's live feed.
type RealtimeMessage struct {
	PitchID    string    `json:"pitchId"`
	ShareID    string    `json:"shareId"`
	Kind       string    `json:"kind"`
	ViewerID   string    `json:"viewerId,omitempty"`
	ActionType string    `json:"actionType,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Source     string    `json:"source"`
}

// RealtimeDispatcher fans engagement events out to subscribers keyed by pitch id,
// plus the AllPitches wildcard. Slow subscribers drop messages instead of blocking
// the tracking path.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  32,
	}
}

// Subscribe registers a stream for topic until ctx ends or cleanup is called.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, topic string) (<-chan RealtimeMessage, func()) {
	if topic == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(topic, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() { d.unregisterSubscriber(topic, subscriber.id) })
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// PublishEngagement satisfies pitches.EngagementPublisher.
func (d *RealtimeDispatcher) PublishEngagement(event pitches.EngagementEvent) {
	d.Publish(RealtimeMessage{
		PitchID:    event.PitchID,
		ShareID:    event.ShareID,
		Kind:       string(event.Kind),
		ViewerID:   event.ViewerID,
		ActionType: string(event.ActionType),
		Timestamp:  event.Timestamp,
		Source:     realtimeSourceBackend,
	})
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.PitchID == "" || message.Kind == "" {
		return
	}
	d.mu.RLock()
	copies := make([]*realtimeSubscriber, 0, len(d.subscribers[message.PitchID])+len(d.subscribers[AllPitches]))
	for _, topic := range []string{message.PitchID, AllPitches} {
		for _, subscriber := range d.subscribers[topic] {
			copies = append(copies, subscriber)
		}
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

func (d *RealtimeDispatcher) subscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	total := 0
	for _, subscribers := range d.subscribers {
		total += len(subscribers)
	}
	return total
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(topic string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[topic]; !ok {
		d.subscribers[topic] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[topic][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(topic string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[topic]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, topic)
		}
	}
	d.mu.Unlock()
}
