package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const eventsKeepAlive = 15 * time.Second

// handleEvents streams every committed snapshot of a session as
// server-sent events until the client goes away or the session ends.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.controller(w, r)
	if !ok {
		return
	}

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	updates, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	keepAlive := time.NewTicker(s.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			s.sessions.Touch(ctrl.SessionID())
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case state, open := <-updates:
			if !open {
				fmt.Fprint(w, "event: closed\ndata: {}\n\n")
				_ = rc.Flush()
				return
			}
			s.sessions.Touch(ctrl.SessionID())
			data, err := json.Marshal(newStateView(state))
			if err != nil {
				s.logger.Printf("encode state event failed session_id=%s err=%v", state.SessionID, err)
				return
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: state\ndata: %s\n\n", state.Revision, data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
