package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Event is one server-sent event of the chat stream.
type Event struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

const (
	EventDelta = "delta"
	EventDone  = "done"
	EventError = "error"
)

// eventStream writes chat events as text/event-stream. Headers are sent with
// the first event so a turn that fails early can still answer with JSON.
type eventStream struct {
	w    http.ResponseWriter
	rc   *http.ResponseController
	open bool
}

func newEventStream(w http.ResponseWriter) *eventStream {
	return &eventStream{w: w, rc: http.NewResponseController(w)}
}

func (s *eventStream) started() bool { return s.open }

func (s *eventStream) delta(chunk string) error {
	return s.send(Event{Type: EventDelta, Data: chunk})
}

func (s *eventStream) done() {
	_ = s.send(Event{Type: EventDone})
}

func (s *eventStream) fail(msg string) {
	_ = s.send(Event{Type: EventError, Data: msg})
}

func (s *eventStream) send(ev Event) error {
	if !s.open {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.open = true
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if err := s.rc.Flush(); err != nil && err != http.ErrNotSupported {
		return fmt.Errorf("flush event: %w", err)
	}
	return nil
}
