package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/project-flogo/flowwatch/client"
	"github.com/project-flogo/flowwatch/model"
	"github.com/project-flogo/flowwatch/tester"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) (*client.Client, *tester.Engine) {
	t.Helper()
	script, err := tester.LoadScript("../tester/testdata/approval.json")
	require.NoError(t, err)
	et, err := tester.NewRestEngineTester(script, map[string]interface{}{"port": 0})
	require.NoError(t, err)

	server := httptest.NewServer(et.Handler())
	t.Cleanup(server.Close)
	return client.New(server.URL), et.Engine()
}

// slowSubmitter holds every submit long enough for several polls to land
type slowSubmitter struct {
	*client.Client
	delay time.Duration
}

func (s *slowSubmitter) SubmitTask(ctx context.Context, workflowId, instanceId, taskId string, data map[string]interface{}) error {
	time.Sleep(s.delay)
	return s.Client.SubmitTask(ctx, workflowId, instanceId, taskId, data)
}

func TestParseKeyValues(t *testing.T) {
	values, err := parseKeyValues([]string{"name=bob", "count=3", "ok=true", "obj={\"a\":1}", "empty="})
	require.NoError(t, err)

	assert.Equal(t, "bob", values["name"])
	assert.Equal(t, float64(3), values["count"])
	assert.Equal(t, true, values["ok"])
	assert.Equal(t, map[string]interface{}{"a": float64(1)}, values["obj"])
	assert.Equal(t, "", values["empty"])

	_, err = parseKeyValues([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseKeyValues([]string{"=x"})
	assert.Error(t, err)
}

func TestWatchAnswersReadyTask(t *testing.T) {
	out := &bytes.Buffer{}
	c, _ := newEngine(t)
	w := &watcher{
		engine:   c,
		out:      out,
		interval: 10 * time.Millisecond,
		answers:  map[string]interface{}{"approved": true},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rs, err := w.run(ctx, "approval", nil)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, rs.Status)

	printed := out.String()
	assert.Contains(t, printed, "[Draft answer] Draft ready")
	assert.Contains(t, printed, "task T2 (Review draft) awaits input")
	assert.Contains(t, printed, "submitted T2")
	assert.Contains(t, printed, "completed: Approved answer")
	assert.Contains(t, printed, `_output_summary = {"approved":true}`)
}

func TestWatchSubmitsReadyTaskOnce(t *testing.T) {
	c, engine := newEngine(t)
	out := &bytes.Buffer{}
	w := &watcher{
		engine:   &slowSubmitter{Client: c, delay: 100 * time.Millisecond},
		out:      out,
		interval: 10 * time.Millisecond,
		answers:  map[string]interface{}{"approved": true},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rs, err := w.run(ctx, "approval", nil)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, rs.Status)

	submissions := engine.Submissions(rs.InstanceId)
	require.Len(t, submissions, 1)
	assert.Equal(t, "T2", submissions[0].TaskId)
	assert.Equal(t, 1, strings.Count(out.String(), "submitted T2"))
	assert.Equal(t, 1, strings.Count(out.String(), "awaits input"))
}

func TestWatchInteractiveTypes(t *testing.T) {
	c, engine := newEngine(t)
	out := &bytes.Buffer{}
	w := &watcher{
		engine:      c,
		out:         out,
		interval:    10 * time.Millisecond,
		interactive: []string{model.TypeManualTask},
		answers:     map[string]interface{}{"approved": true},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	// the review task is a UserTask, so nothing is surfaced or answered
	_, err := w.run(ctx, "approval", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotContains(t, out.String(), "awaits input")
	assert.Equal(t, 1, engine.Instances())
}

func TestWatchFailedRun(t *testing.T) {
	out := &bytes.Buffer{}
	c, _ := newEngine(t)
	w := &watcher{engine: c, out: out, interval: 10 * time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rs, err := w.run(ctx, "broken", nil)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, rs.Status)
	assert.Contains(t, out.String(), "failed: upstream timeout")
}

func TestWatchCancelled(t *testing.T) {
	c, _ := newEngine(t)
	w := &watcher{engine: c, out: &bytes.Buffer{}, interval: 10 * time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	// without answers the run stays on the review task
	_, err := w.run(ctx, "approval", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestVersionCommand(t *testing.T) {
	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "v0.1.0\n", out.String())
}
