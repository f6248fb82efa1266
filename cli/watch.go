package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/project-flogo/flowwatch/model"
	"github.com/project-flogo/flowwatch/monitor"
	"github.com/project-flogo/flowwatch/poller"
	"github.com/project-flogo/flowwatch/reconcile"
	"github.com/project-flogo/flowwatch/state"
)

var watchCmd = &cobra.Command{
	Use:   "watch <workflowId>",
	Short: "Start a workflow run and follow it until it completes or fails",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().Duration("interval", 0, "Poll interval, overrides the configuration")
	watchCmd.Flags().StringArray("data", nil, "Start data as key=value, repeatable")
	watchCmd.Flags().StringArray("answer", nil, "Data submitted to ready tasks as key=value, repeatable")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	interval := cfg.Poll.Interval.Duration
	if v, _ := cmd.Flags().GetDuration("interval"); v > 0 {
		interval = v
	}

	rawData, _ := cmd.Flags().GetStringArray("data")
	data, err := parseKeyValues(rawData)
	if err != nil {
		return err
	}
	rawAnswers, _ := cmd.Flags().GetStringArray("answer")
	answers, err := parseKeyValues(rawAnswers)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := &watcher{
		engine:       monitor.NewClient(cfg),
		out:          cmd.OutOrStdout(),
		interval:     interval,
		fetchTimeout: cfg.Poll.FetchTimeout.Duration,
		interactive:  cfg.Poll.InteractiveTypes,
		answers:      answers,
	}
	rs, err := w.run(ctx, args[0], data)
	if err != nil {
		return err
	}
	if rs.Status == model.RunStatusFailed {
		return fmt.Errorf("workflow failed: %s", rs.TerminalMessage)
	}
	return nil
}

type watcher struct {
	engine       monitor.Engine
	out          io.Writer
	interval     time.Duration
	fetchTimeout time.Duration
	interactive  []string
	answers      map[string]interface{}
}

// run starts the workflow and prints every state until the run is terminal or ctx is done
func (w *watcher) run(ctx context.Context, workflowId string, data map[string]interface{}) (*state.RunState, error) {
	started, err := w.engine.StartWorkflow(ctx, workflowId, data)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(w.out, "started instance %s of workflow %s\n", started.InstanceId, started.WorkflowId)

	opts := []poller.Option{poller.WithInterval(w.interval), poller.WithFetchTimeout(w.fetchTimeout)}
	if len(w.interactive) > 0 {
		opts = append(opts, poller.WithReconcilerOptions(reconcile.WithInteractiveTypes(w.interactive...)))
	}

	states := make(chan *state.RunState, 16)
	driver := poller.New(w.engine, func(rs *state.RunState) {
		select {
		case states <- rs:
		case <-ctx.Done():
		}
	}, opts...)

	if err := driver.Start(started.WorkflowId, started.InstanceId); err != nil {
		return nil, err
	}
	defer driver.Stop()

	submitted := make(map[string]struct{})
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case rs := <-states:
			w.print(rs)

			if rs.IsTerminal() {
				return rs, nil
			}
			if rs.Status == model.RunStatusTaskReady && len(w.answers) > 0 {
				task := rs.ReadyTask
				if _, done := submitted[task.TaskInstanceId]; done {
					continue
				}
				submitted[task.TaskInstanceId] = struct{}{}
				if err := w.engine.SubmitTask(ctx, started.WorkflowId, started.InstanceId, task.TaskInstanceId, w.answers); err != nil {
					return nil, err
				}
				driver.Reconciler().Resolve(task.TaskInstanceId)
				fmt.Fprintf(w.out, "submitted %s\n", task.TaskInstanceId)
			}
		}
	}
}

func (w *watcher) print(rs *state.RunState) {
	for _, msg := range rs.Messages {
		name := msg.DisplayName
		if name == "" {
			name = msg.TaskInstanceId
		}
		fmt.Fprintf(w.out, "[%s] %s\n", name, msg.Text)
	}

	switch rs.Status {
	case model.RunStatusTaskReady:
		name := rs.ReadyTask.DisplayName
		if name == "" {
			name = rs.ReadyTask.TaskSpecName
		}
		fmt.Fprintf(w.out, "task %s (%s) awaits input\n", rs.ReadyTask.TaskInstanceId, name)
	case model.RunStatusCompleted, model.RunStatusFailed:
		fmt.Fprintf(w.out, "%s: %s\n", rs.Status, rs.TerminalMessage)
	}

	if len(rs.ChangedOutputs) > 0 {
		keys := make([]string, 0, len(rs.ChangedOutputs))
		for k := range rs.ChangedOutputs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b, _ := json.Marshal(rs.ChangedOutputs[k])
			fmt.Fprintf(w.out, "%s = %s\n", k, b)
		}
	}
}

// parseKeyValues parses key=value pairs, values that are valid JSON keep their JSON type
func parseKeyValues(pairs []string) (map[string]interface{}, error) {
	values := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid key=value pair '%s'", pair)
		}

		var v interface{}
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		values[key] = v
	}
	return values, nil
}
