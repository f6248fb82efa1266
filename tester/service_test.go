package tester

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/project-flogo/core/support/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*RestEngineTester, *httptest.Server) {
	t.Helper()
	et, err := NewRestEngineTester(loadApproval(t), map[string]interface{}{"port": "0"})
	require.NoError(t, err)

	server := httptest.NewServer(et.Handler())
	t.Cleanup(server.Close)
	return et, server
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	return resp
}

func TestRestEngineTester(t *testing.T) {
	et, server := newTestServer(t)
	assert.Equal(t, "engineTester", et.Name())

	resp := postJSON(t, server.URL+"/workflow/approval/start", &StartRequest{Data: map[string]interface{}{"question": "q"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	idResp := &IDResponse{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(idResp))
	_ = resp.Body.Close()
	assert.Equal(t, "approval", idResp.WorkflowId)
	require.NotEmpty(t, idResp.InstanceId)

	instanceURL := server.URL + "/workflow/approval/instances/" + idResp.InstanceId

	resp, err := http.Get(instanceURL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = http.Get(instanceURL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	errResp := &errorResponse{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(errResp))
	_ = resp.Body.Close()
	assert.Contains(t, errResp.Error, "engine busy")

	resp = postJSON(t, instanceURL+"/submit-task", &SubmitRequest{TaskId: "T1"})
	submitResp := &submitResponse{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(submitResp))
	_ = resp.Body.Close()
	assert.False(t, submitResp.Success)

	resp = postJSON(t, instanceURL+"/submit-task", &SubmitRequest{TaskId: "T2", Data: map[string]interface{}{"approved": true}})
	submitResp = &submitResponse{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(submitResp))
	_ = resp.Body.Close()
	assert.True(t, submitResp.Success)

	assert.Len(t, et.Engine().Submissions(idResp.InstanceId), 1)
}

func TestRestEngineTesterNotFound(t *testing.T) {
	_, server := newTestServer(t)

	resp := postJSON(t, server.URL+"/workflow/missing/start", &StartRequest{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err := http.Get(server.URL + "/workflow/approval/instances/missing")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = http.Get(server.URL + "/status")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestRestEngineTesterStartStop(t *testing.T) {
	et, err := NewRestEngineTester(loadApproval(t), map[string]interface{}{"port": 0})
	require.NoError(t, err)

	require.NoError(t, et.Start())
	assert.NotEmpty(t, et.Addr())

	resp, err := http.Get("http://" + et.Addr() + "/status")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, et.Stop())
}

func TestEngineTesterFactory(t *testing.T) {
	factory := &EngineTesterFactory{}

	_, err := factory.NewService(&service.Config{Settings: map[string]interface{}{}})
	assert.Error(t, err)

	_, err = factory.NewService(&service.Config{Settings: map[string]interface{}{SettingScript: "testdata/missing.json"}})
	assert.Error(t, err)

	svc, err := factory.NewService(&service.Config{Settings: map[string]interface{}{SettingScript: "testdata/approval.json", SettingPort: 0}})
	require.NoError(t, err)
	assert.Equal(t, "engineTester", svc.Name())
}
