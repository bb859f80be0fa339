package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"
)

// handleStream upgrades to a WebSocket and relays the session's question,
// evaluation, and report events as JSON frames. The connection closes after
// the report event or when the client disconnects.
func handleStream(deps AppDeps) http.Handler {
	return websocket.Handler(func(ws *websocket.Conn) {
		defer ws.Close()

		id := chi.URLParam(ws.Request(), "id")
		if _, err := deps.Sessions.Get(id); err != nil {
			websocket.JSON.Send(ws, Event{Type: "error", Data: "session not found"})
			return
		}
		if deps.Broker == nil {
			websocket.JSON.Send(ws, Event{Type: "error", Data: "streaming not enabled"})
			return
		}

		events, cancel := deps.Broker.Subscribe(id)
		defer cancel()

		done := ws.Request().Context().Done()
		for {
			select {
			case ev := <-events:
				if err := websocket.JSON.Send(ws, ev); err != nil {
					slog.Debug("stream send failed", "session", id, "error", err)
					return
				}
				if ev.Type == EventReport {
					return
				}
			case <-done:
				return
			}
		}
	})
}
