package daemon

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/simpleflo/filescout/internal/search"
)

// handleSSEEvents streams analysis and filesystem events.
// GET /api/v1/events
//
// Event format:
//
//	id: <event_id>
//	event: <event_type>
//	data: <json_payload>
func (d *Daemon) handleSSEEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := startSSE(w)
	if !ok {
		return
	}

	subID, eventCh := d.eventBus.Subscribe()
	if eventCh == nil {
		http.Error(w, "event bus closed", http.StatusServiceUnavailable)
		return
	}
	defer d.eventBus.Unsubscribe(subID)

	d.logger.Debug().Uint64("subscriber_id", subID).Msg("SSE client connected")

	if err := writeSSEEvent(w, flusher, &Event{
		Type:      EventConnected,
		Timestamp: time.Now(),
		Data:      json.RawMessage(`{"message":"connected to event stream"}`),
	}); err != nil {
		return
	}

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			d.logger.Debug().Uint64("subscriber_id", subID).Msg("SSE client disconnected")
			return

		case <-d.shutdownCh:
			writeSSEEvent(w, flusher, &Event{
				Type:      EventShutdown,
				Timestamp: time.Now(),
				Data:      json.RawMessage(`{"message":"daemon shutting down"}`),
			})
			return

		case event, ok := <-eventCh:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, flusher, event); err != nil {
				d.logger.Debug().Err(err).Uint64("subscriber_id", subID).Msg("failed to write SSE event")
				return
			}

		case <-heartbeat.C:
			d.mu.RLock()
			startTime := d.startTime
			d.mu.RUnlock()

			dataBytes, _ := json.Marshal(DaemonStatusData{
				Status:         "running",
				Uptime:         time.Since(startTime).Truncate(time.Second).String(),
				StartTime:      startTime,
				Subscribers:    d.eventBus.SubscriberCount(),
				ActiveAnalyses: d.sessions.Len(),
			})
			if err := writeSSEEvent(w, flusher, &Event{
				Type:      EventDaemonStatus,
				Timestamp: time.Now(),
				Data:      dataBytes,
			}); err != nil {
				return
			}
		}
	}
}

// startSSE sets the streaming headers. It writes an error response and
// returns false if the writer cannot flush.
func startSSE(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	return flusher, true
}

// writeSSEEvent writes a single SSE event to the response writer.
func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event *Event) error {
	if event.ID > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", event.ID); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}

	flusher.Flush()
	return nil
}

// SSEStats returns current SSE connection statistics.
type SSEStats struct {
	Subscribers int  `json:"subscribers"`
	Available   bool `json:"available"`
}

// handleSSEStats returns SSE connection statistics.
// GET /api/v1/events/stats
func (d *Daemon) handleSSEStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SSEStats{
		Available:   true,
		Subscribers: d.eventBus.SubscriberCount(),
	})
}

// sseProgress relays search progress to one SSE client. Once the client
// has gone, every call reports search.ErrConsumerGone.
type sseProgress struct {
	w       http.ResponseWriter
	flusher http.Flusher
	r       *http.Request
	gone    bool
}

func (p *sseProgress) Progress(ev search.Progress) error {
	if p.gone || p.r.Context().Err() != nil {
		p.gone = true
		return search.ErrConsumerGone
	}
	if err := p.send(EventSearchProgress, ev); err != nil {
		p.gone = true
		return search.ErrConsumerGone
	}
	return nil
}

func (p *sseProgress) Complete(s search.Summary) {
	if p.gone {
		return
	}
	p.send(EventSearchComplete, s)
}

func (p *sseProgress) send(t EventType, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return writeSSEEvent(p.w, p.flusher, &Event{Type: t, Timestamp: time.Now(), Data: data})
}
