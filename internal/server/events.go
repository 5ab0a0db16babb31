package server

import (
	"log"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// handleEvents streams turn-append events for the caller's session over a
// websocket, so the frontend can render turns as the engine commits them.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	entry := s.sessionEntry(r, nil)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Println("[events] websocket accept failed:", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "session closed")

	turns, cancel := entry.Session.Subscribe()
	defer cancel()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case turn, ok := <-turns:
			if !ok {
				return
			}
			if err := wsjson.Write(ctx, conn, turn); err != nil {
				log.Println("[events] write failed:", err)
				return
			}
		}
	}
}
