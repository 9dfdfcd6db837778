package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"vitrine/core/types"

	"nhooyr.io/websocket"
)

const (
	wsWriteTimeout     = 10 * time.Second
	wsSubscriberBuffer = 256
)

type eventPayload struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// handleEventsWS streams every emitted event to the client. The optional
// "types" query parameter is a comma separated list of event types to keep.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s == nil || s.bus == nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	filter := parseTypeFilter(r.URL.Query().Get("types"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	// Reads are discarded; CloseRead cancels ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, filter); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, filter map[string]bool) error {
	updates, cancel := s.bus.Subscribe(wsSubscriberBuffer)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			if len(filter) > 0 && !filter[evt.Type] {
				continue
			}
			if err := writeEvent(ctx, conn, evt); err != nil {
				return err
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, evt *types.Event) error {
	data, err := json.Marshal(eventPayload{Type: evt.Type, Attributes: evt.Attributes})
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func parseTypeFilter(raw string) map[string]bool {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	filter := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			filter[trimmed] = true
		}
	}
	return filter
}
