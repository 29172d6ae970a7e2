package daemon

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/simpleflo/filescout/pkg/models"
)

// EventType represents the type of event being published.
type EventType string

const (
	// Analysis events
	EventAnalysisStarted   EventType = "analysis_started"
	EventAnalysisCompleted EventType = "analysis_completed"
	EventAnalysisCancelled EventType = "analysis_cancelled"
	EventAnalysisFailed    EventType = "analysis_failed"

	// Filesystem events
	EventPathDeleted EventType = "path_deleted"

	// Search stream events
	EventSearchProgress EventType = "progress"
	EventSearchComplete EventType = "complete"
	EventSearchError    EventType = "error"

	// System events
	EventConnected    EventType = "connected"
	EventShutdown     EventType = "shutdown"
	EventDaemonStatus EventType = "daemon_status"
)

// Event represents a single event published by the daemon.
type Event struct {
	ID        uint64          `json:"id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// EventBus fans events out to SSE subscribers. A subscriber whose buffer
// is full misses events rather than blocking the publisher.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[uint64]chan *Event
	nextID      uint64
	eventID     atomic.Uint64
	bufferSize  int
	closed      bool
}

// NewEventBus creates a new EventBus with the given channel buffer size.
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &EventBus{
		subscribers: make(map[uint64]chan *Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe returns a subscription id and its channel. The channel is nil
// once the bus is closed.
func (eb *EventBus) Subscribe() (uint64, <-chan *Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return 0, nil
	}

	id := eb.nextID
	eb.nextID++

	ch := make(chan *Event, eb.bufferSize)
	eb.subscribers[id] = ch

	return id, ch
}

// Unsubscribe removes a subscription and closes its channel.
func (eb *EventBus) Unsubscribe(id uint64) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if ch, ok := eb.subscribers[id]; ok {
		close(ch)
		delete(eb.subscribers, id)
	}
}

// Publish broadcasts an event to all subscribers.
func (eb *EventBus) Publish(eventType EventType, data interface{}) error {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return err
	}

	event := &Event{
		ID:        eb.eventID.Add(1),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      dataBytes,
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return nil
	}

	for _, ch := range eb.subscribers {
		select {
		case ch <- event:
		default:
		}
	}

	return nil
}

// SubscriberCount returns the current number of active subscribers.
func (eb *EventBus) SubscriberCount() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers)
}

// Close closes the EventBus and all subscriber channels.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	eb.closed = true
	for id, ch := range eb.subscribers {
		close(ch)
		delete(eb.subscribers, id)
	}
}

// AnalysisEventData describes an analysis lifecycle change.
type AnalysisEventData struct {
	SessionID       string            `json:"session_id"`
	Path            string            `json:"path"`
	Status          models.ScanStatus `json:"status"`
	TotalFiles      int               `json:"total_files,omitempty"`
	DuplicateGroups int               `json:"duplicate_groups,omitempty"`
	TotalWasted     int64             `json:"total_wasted_space,omitempty"`
	Error           string            `json:"error,omitempty"`
}

// PathDeletedData describes a file or directory removed through the API.
type PathDeletedData struct {
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
}

// DaemonStatusData contains data for daemon heartbeat events.
type DaemonStatusData struct {
	Status         string    `json:"status"`
	Uptime         string    `json:"uptime"`
	StartTime      time.Time `json:"start_time"`
	Subscribers    int       `json:"subscribers"`
	ActiveAnalyses int       `json:"active_analyses"`
}
