package monitor

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/project-flogo/flowwatch/client"
	"github.com/project-flogo/flowwatch/metrics"
	"github.com/project-flogo/flowwatch/state"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// StartRequest starts a run in a session
type StartRequest struct {
	WorkflowId string                 `json:"workflow_id"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// SubmitRequest submits the data of the ready task, an empty task id submits whichever task is ready
type SubmitRequest struct {
	TaskId string                 `json:"task_id,omitempty"`
	Data   map[string]interface{} `json:"data,omitempty"`
}

type errorResponse struct {
	Error    string   `json:"error"`
	Problems []string `json:"problems,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (m *Monitor) routes() http.Handler {
	router := httprouter.New()

	router.POST("/sessions", m.handleCreate)
	router.GET("/sessions/:id", m.withSession(m.handleGet))
	router.DELETE("/sessions/:id", m.handleDelete)
	router.POST("/sessions/:id/start", m.withSession(m.handleStart))
	router.POST("/sessions/:id/submit", m.withSession(m.handleSubmit))
	router.POST("/sessions/:id/reset", m.withSession(m.handleReset))
	router.GET("/sessions/:id/events", m.withSession(m.handleEvents))
	router.GET("/runs/:instanceId", m.handleHistory)
	router.GET("/status", m.handleStatus)
	router.Handler(http.MethodGet, "/metrics", metrics.Handler(m.registry))

	return router
}

type sessionHandle func(w http.ResponseWriter, r *http.Request, s *Session)

func (m *Monitor) withSession(h sessionHandle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		s, ok := m.Session(p.ByName("id"))
		if !ok {
			writeError(w, http.StatusNotFound, errors.New("session not found"))
			return
		}
		h(w, r, s)
	}
}

func (m *Monitor) handleCreate(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s := m.CreateSession()
	writeJSON(w, http.StatusCreated, s.View())
}

func (m *Monitor) handleGet(w http.ResponseWriter, r *http.Request, s *Session) {
	writeJSON(w, http.StatusOK, s.View())
}

func (m *Monitor) handleDelete(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	if !m.DeleteSession(p.ByName("id")) {
		writeError(w, http.StatusNotFound, errors.New("session not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (m *Monitor) handleStart(w http.ResponseWriter, r *http.Request, s *Session) {
	req := &StartRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.WorkflowId == "" {
		writeError(w, http.StatusBadRequest, errors.New("workflow_id is required"))
		return
	}

	rs, err := s.Start(r.Context(), req.WorkflowId, req.Data)
	if err != nil {
		m.logger.Warnf("Unable to start workflow [%s]: %v", req.WorkflowId, err)
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

func (m *Monitor) handleSubmit(w http.ResponseWriter, r *http.Request, s *Session) {
	req := &SubmitRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rs, err := s.Submit(r.Context(), req.TaskId, req.Data)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

func (m *Monitor) handleReset(w http.ResponseWriter, r *http.Request, s *Session) {
	writeJSON(w, http.StatusOK, s.Reset(r.Context()))
}

// handleEvents streams the session states over a WebSocket, starting with the current one
func (m *Monitor) handleEvents(w http.ResponseWriter, r *http.Request, s *Session) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Debugf("Unable to upgrade events connection of session [%s]: %v", s.Id(), err)
		return
	}
	defer conn.Close()

	updates, cancel := s.Subscribe()
	defer cancel()

	// reader detects the client going away
	closed := make(chan struct{})
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	if err := writeWS(conn, s.View().State); err != nil {
		return
	}

	for {
		select {
		case <-closed:
			return
		case rs, ok := <-updates:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if err := writeWS(conn, rs); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (m *Monitor) handleHistory(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	summary, info, err := m.History(r.Context(), p.ByName("instanceId"))
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"run": info, "summary": summary})
}

func (m *Monitor) handleStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "sessions": m.Sessions()})
}

func writeWS(conn *websocket.Conn, rs *state.RunState) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(rs)
}

func statusOf(err error) int {
	var formErr *state.FormError
	switch {
	case errors.As(err, &formErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrTaskNotReady), errors.Is(err, ErrNoRun):
		return http.StatusConflict
	case errors.Is(err, ErrClosed), errors.Is(err, state.ErrRunNotFound), client.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, client.ErrBreakerOpen):
		return http.StatusServiceUnavailable
	}
	if apiErr := client.AsAPIError(err); apiErr != nil {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := &errorResponse{Error: err.Error()}
	var formErr *state.FormError
	if errors.As(err, &formErr) {
		resp.Problems = formErr.Problems
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
