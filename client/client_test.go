package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/project-flogo/flowwatch/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientEndpoints(t *testing.T) {
	seen := map[string]bool{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get(HeaderRequestId))

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/workflow/wf1/start":
			var req StartRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "hello", req.Data["question"])
			seen["start"] = true
			_, _ = w.Write([]byte(`{"workflow_id":"wf1","instance_id":"i1"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/workflow/wf1/instances/i1":
			seen["fetch"] = true
			_, _ = w.Write([]byte(`{"completed":false,"tasks":{"T1":{"state":16,"task_spec":"ut1"}},"task_specs":{"ut1":{"typename":"UserTask"}}}`))
		case r.Method == http.MethodPost && r.URL.Path == "/workflow/wf1/instances/i1/submit-task":
			var req SubmitTaskRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "T1", req.TaskId)
			assert.Equal(t, true, req.Data["approved"])
			seen["submit"] = true
			_, _ = w.Write([]byte(`{"success":true}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	c := New(server.URL+"/", WithToken(" token "))
	ctx := context.Background()

	started, err := c.StartWorkflow(ctx, "wf1", map[string]interface{}{"question": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "i1", started.InstanceId)

	snapshot, err := c.FetchInstance(ctx, "wf1", "i1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStateReady, snapshot.Tasks["T1"].State)
	assert.Equal(t, "UserTask", snapshot.TaskSpecs["ut1"].TypeName)

	require.NoError(t, c.SubmitTask(ctx, "wf1", "i1", "T1", map[string]interface{}{"approved": true}))

	assert.True(t, seen["start"])
	assert.True(t, seen["fetch"])
	assert.True(t, seen["submit"])
}

func TestClientAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"instance not found"}`))
	}))
	defer server.Close()

	c := New(server.URL)
	_, err := c.FetchInstance(context.Background(), "wf1", "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, "instance not found", AsAPIError(err).Message)
}

func TestClientValidation(t *testing.T) {
	c := New("http://127.0.0.1:1")
	ctx := context.Background()

	_, err := c.StartWorkflow(ctx, " ", nil)
	assert.Error(t, err)
	_, err = c.FetchInstance(ctx, "wf1", "")
	assert.Error(t, err)
	assert.Error(t, c.SubmitTask(ctx, "wf1", "i1", "", nil))
}

func TestClientStartWithoutInstance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	_, err := New(server.URL).StartWorkflow(context.Background(), "wf1", nil)
	assert.Error(t, err)
}

func TestClientSubmitRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"message":"task is not ready"}`))
	}))
	defer server.Close()

	err := New(server.URL).SubmitTask(context.Background(), "wf1", "i1", "T1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task is not ready")
}

func TestClientBreakerOpens(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := New(server.URL, WithBreaker(2, time.Minute))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := c.FetchInstance(ctx, "wf1", "i1")
		assert.NotNil(t, AsAPIError(err))
	}

	_, err := c.FetchInstance(ctx, "wf1", "i1")
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClientBreakerIgnoresClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := New(server.URL, WithBreaker(1, time.Minute))
	for i := 0; i < 3; i++ {
		_, err := c.FetchInstance(context.Background(), "wf1", "i1")
		assert.True(t, IsNotFound(err))
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"completed":false}`))
	}))
	defer server.Close()

	c := New(server.URL, WithRateLimit(1, 1))

	_, err := c.FetchInstance(context.Background(), "wf1", "i1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.FetchInstance(ctx, "wf1", "i1")
	assert.Error(t, err)
}
