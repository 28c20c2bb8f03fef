package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raysh454/a11yscan/internal/app"
	"github.com/raysh454/a11yscan/internal/logging"
	"github.com/raysh454/a11yscan/internal/model"
)

const wsWriteTimeout = 10 * time.Second

// handleJobWS sends the job's current state, then one JobEvent per transition
// until the job finishes or the client goes away. Cached ids have no live job
// and get their synthetic snapshot only.
func (s *Server) handleJobWS(w http.ResponseWriter, r *http.Request) {
	jobID := jobIDParam(r)

	// subscribe before the snapshot so a transition in between is not lost
	var (
		events      <-chan model.JobEvent
		unsubscribe = func() {}
		err         error
	)
	if !strings.HasPrefix(jobID, app.CachedJobPrefix) {
		events, unsubscribe, err = s.orchestrator.SubscribeJob(jobID)
		if err != nil {
			s.fail(w, r, "subscribing to job", err)
			return
		}
	}
	defer unsubscribe()

	job, err := s.orchestrator.GetJob(r.Context(), jobID)
	if err != nil {
		s.fail(w, r, "getting job for websocket", err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Err(err))
		return
	}
	defer conn.Close()

	// drain control frames so a client close is noticed
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	s.logger.Info("streaming job", logging.Field{Key: "job_id", Value: jobID})
	if err := s.writeWS(conn, job); err != nil {
		return
	}
	if events == nil {
		s.closeWS(conn, "job finished")
		return
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				s.closeWS(conn, "job finished")
				return
			}
			if err := s.writeWS(conn, ev); err != nil {
				s.logger.Debug("websocket client gone", logging.Field{Key: "job_id", Value: jobID}, logging.Err(err))
				return
			}
		case <-gone:
			return
		}
	}
}

func (s *Server) writeWS(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(v)
}

func (s *Server) closeWS(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteTimeout))
}
