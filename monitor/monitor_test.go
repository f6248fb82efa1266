package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/project-flogo/core/support/log"
	"github.com/project-flogo/flowwatch/client"
	"github.com/project-flogo/flowwatch/metrics"
	"github.com/project-flogo/flowwatch/model"
	"github.com/project-flogo/flowwatch/poller"
	"github.com/project-flogo/flowwatch/state"
	"github.com/project-flogo/flowwatch/tester"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	monitor  *Monitor
	server   *httptest.Server
	engine   *tester.Engine
	recorder *state.MemoryRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	script, err := tester.LoadScript("../tester/testdata/approval.json")
	require.NoError(t, err)
	et, err := tester.NewRestEngineTester(script, map[string]interface{}{"port": 0})
	require.NoError(t, err)
	engineServer := httptest.NewServer(et.Handler())
	t.Cleanup(engineServer.Close)

	recorder := state.NewMemoryRecorder(0)
	m := New(client.New(engineServer.URL),
		WithRecorder(recorder, state.RecordingModeTransitions),
		WithRegistry(metrics.NewRegistry()),
		WithPollerOptions(poller.WithInterval(10*time.Millisecond)),
	)
	server := httptest.NewServer(m.Handler())
	t.Cleanup(func() {
		server.Close()
		_ = m.Stop()
	})

	return &fixture{monitor: m, server: server, engine: et.Engine(), recorder: recorder}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}, out interface{}) int {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (f *fixture) waitFor(t *testing.T, id string, status model.RunStatus) *View {
	t.Helper()

	var view *View
	require.Eventually(t, func() bool {
		view = &View{}
		f.do(t, http.MethodGet, "/sessions/"+id, nil, view)
		return view.State != nil && view.State.Status == status
	}, 5*time.Second, 10*time.Millisecond, "session never reached %s", status)
	return view
}

// waitForReady waits until the session has a ready task awaiting input
func (f *fixture) waitForReady(t *testing.T, id string) *View {
	t.Helper()

	var view *View
	require.Eventually(t, func() bool {
		view = &View{}
		f.do(t, http.MethodGet, "/sessions/"+id, nil, view)
		return view.ReadyTask != nil
	}, 5*time.Second, 10*time.Millisecond, "session never had a ready task")
	return view
}

func TestMonitorRunLifecycle(t *testing.T) {
	f := newFixture(t)

	created := &View{}
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/sessions", nil, created))
	require.NotEmpty(t, created.Id)
	assert.Equal(t, model.RunStatusIdle, created.State.Status)
	assert.Equal(t, 1, f.monitor.Sessions())

	path := "/sessions/" + created.Id

	started := &state.RunState{}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, path+"/start",
		&StartRequest{WorkflowId: "approval", Data: map[string]interface{}{"question": "q"}}, started))
	assert.Equal(t, model.RunStatusRunning, started.Status)
	require.NotEmpty(t, started.InstanceId)

	// task_ready is reported once, later polls report running while the task stays pending
	view := f.waitForReady(t, created.Id)
	assert.Equal(t, "T2", view.ReadyTask.TaskInstanceId)
	assert.Equal(t, "Review draft", view.ReadyTask.DisplayName)
	assert.True(t, view.Running)

	require.Len(t, view.Messages, 1)
	assert.Equal(t, "T1", view.Messages[0].TaskInstanceId)
	assert.Equal(t, "Draft ready", view.Messages[0].Text)
	assert.Equal(t, "v1", view.Messages[0].Outputs["_output_draft"])

	errResp := &errorResponse{}
	assert.Equal(t, http.StatusUnprocessableEntity, f.do(t, http.MethodPost, path+"/submit",
		&SubmitRequest{TaskId: "T2", Data: map[string]interface{}{"approved": "yes"}}, errResp))
	assert.NotEmpty(t, errResp.Problems)

	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, path+"/submit",
		&SubmitRequest{TaskId: "T1", Data: map[string]interface{}{"approved": true}}, &errorResponse{}))

	submitted := &state.RunState{}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, path+"/submit",
		&SubmitRequest{TaskId: "T2", Data: map[string]interface{}{"approved": true}}, submitted))
	assert.Equal(t, model.RunStatusRunning, submitted.Status)
	assert.Nil(t, submitted.ReadyTask)
	session, ok := f.monitor.Session(created.Id)
	require.True(t, ok)
	assert.Nil(t, session.View().ReadyTask)

	view = f.waitFor(t, created.Id, model.RunStatusCompleted)
	assert.Equal(t, "Approved answer", view.State.TerminalMessage)
	assert.Contains(t, view.State.ChangedOutputs, "_output_summary")
	assert.False(t, view.Running)
	require.NotNil(t, view.Run)
	assert.Equal(t, model.RunStatusCompleted, view.Run.Status)

	submissions := f.engine.Submissions(started.InstanceId)
	require.Len(t, submissions, 1)
	assert.Equal(t, true, submissions[0].Data["approved"])

	history := map[string]*json.RawMessage{}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/runs/"+started.InstanceId, nil, &history))
	summary := &state.Summary{}
	require.NoError(t, json.Unmarshal(*history["summary"], summary))
	assert.Equal(t, model.RunStatusCompleted, summary.Status)
	assert.Equal(t, []model.RunStatus{model.RunStatusRunning, model.RunStatusTaskReady, model.RunStatusRunning, model.RunStatusCompleted}, summary.Transitions)

	reset := &state.RunState{}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, path+"/reset", nil, reset))
	assert.Equal(t, model.RunStatusIdle, reset.Status)

	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, path+"/submit", &SubmitRequest{TaskId: "T2"}, &errorResponse{}))

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, path, nil, nil))
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, path, nil, &errorResponse{}))
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, path, nil, &errorResponse{}))
	assert.Equal(t, 0, f.monitor.Sessions())
}

func TestMonitorFailedRun(t *testing.T) {
	f := newFixture(t)
	s := f.monitor.CreateSession()

	_, err := s.Start(context.Background(), "broken", nil)
	require.NoError(t, err)

	view := f.waitFor(t, s.Id(), model.RunStatusFailed)
	assert.Equal(t, "upstream timeout", view.State.TerminalMessage)
}

func TestMonitorStartErrors(t *testing.T) {
	f := newFixture(t)
	s := f.monitor.CreateSession()
	path := "/sessions/" + s.Id()

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, path+"/start", &StartRequest{}, &errorResponse{}))
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, path+"/start", &StartRequest{WorkflowId: "missing"}, &errorResponse{}))
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/sessions/unknown/start", &StartRequest{WorkflowId: "approval"}, &errorResponse{}))
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/runs/unknown", nil, &errorResponse{}))
}

func TestMonitorStatusAndMetrics(t *testing.T) {
	f := newFixture(t)

	status := map[string]interface{}{}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/status", nil, &status))
	assert.Equal(t, "ok", status["status"])

	resp, err := http.Get(f.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMonitorEvents(t *testing.T) {
	f := newFixture(t)
	s := f.monitor.CreateSession()

	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/sessions/" + s.Id() + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	first := &state.RunState{}
	require.NoError(t, conn.ReadJSON(first))
	assert.Equal(t, model.RunStatusIdle, first.Status)

	_, err = s.Start(context.Background(), "broken", nil)
	require.NoError(t, err)

	var seen []model.RunStatus
	for {
		rs := &state.RunState{}
		require.NoError(t, conn.ReadJSON(rs))
		seen = append(seen, rs.Status)
		if rs.IsTerminal() {
			assert.Equal(t, model.RunStatusFailed, rs.Status)
			break
		}
	}
	assert.Equal(t, model.RunStatusRunning, seen[0])

	// deleting the session closes the feed
	require.True(t, f.monitor.DeleteSession(s.Id()))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestSessionMessageLimit(t *testing.T) {
	s := newSession("s1", nil, nil, state.RecordingModeOff, 3, nil, log.RootLogger())
	defer s.Close()
	s.run = &state.RunInfo{InstanceId: "i1"}

	for i := 0; i < 5; i++ {
		s.handle(&state.RunState{InstanceId: "i1", Status: model.RunStatusRunning,
			Messages: []*state.Message{{TaskInstanceId: fmt.Sprintf("T%d", i)}}})
	}

	view := s.View()
	require.Len(t, view.Messages, 3)
	assert.Equal(t, "T2", view.Messages[0].TaskInstanceId)
	assert.Equal(t, "T4", view.Messages[2].TaskInstanceId)
}

func TestSessionSubscribeAfterClose(t *testing.T) {
	f := newFixture(t)
	s := f.monitor.CreateSession()
	s.Close()

	updates, cancel := s.Subscribe()
	defer cancel()
	_, ok := <-updates
	assert.False(t, ok)

	_, err := s.Start(context.Background(), "approval", nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSessionExpiry(t *testing.T) {
	f := newFixture(t)

	m := New(f.monitor.engine, WithSessionTTL(time.Nanosecond), WithRegistry(metrics.NewRegistry()))
	defer func() { _ = m.Stop() }()

	s := m.CreateSession()
	time.Sleep(time.Millisecond)

	_, ok := m.Session(s.Id())
	assert.False(t, ok)

	updates, cancel := s.Subscribe()
	defer cancel()
	_, open := <-updates
	assert.False(t, open, "expired sessions are closed")
}
