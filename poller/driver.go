package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/project-flogo/core/support/log"
	"github.com/project-flogo/flowwatch/metrics"
	"github.com/project-flogo/flowwatch/reconcile"
	"github.com/project-flogo/flowwatch/state"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultInterval     = 2 * time.Second
	DefaultFetchTimeout = 10 * time.Second
)

// Fetcher retrieves the latest instance snapshot of a run
type Fetcher interface {
	FetchInstance(ctx context.Context, workflowId, instanceId string) (*state.Snapshot, error)
}

// Handler receives every RunState derived for the active run. It may call
// Stop, Reset or Start on the driver.
type Handler func(rs *state.RunState)

// Option configures a Driver
type Option func(*Driver)

func WithInterval(interval time.Duration) Option {
	return func(d *Driver) {
		if interval > 0 {
			d.interval = interval
		}
	}
}

func WithFetchTimeout(timeout time.Duration) Option {
	return func(d *Driver) {
		if timeout > 0 {
			d.fetchTimeout = timeout
		}
	}
}

func WithLogger(logger log.Logger) Option {
	return func(d *Driver) {
		d.logger = logger
	}
}

// WithReconciler sets the reconciler the driver owns, its state is reset on every Start
func WithReconciler(r *reconcile.Reconciler) Option {
	return func(d *Driver) {
		d.reconciler = r
	}
}

// WithReconcilerOptions configures the reconciler the driver creates when none is set
func WithReconcilerOptions(opts ...reconcile.Option) Option {
	return func(d *Driver) {
		d.reconcilerOpts = append(d.reconcilerOpts, opts...)
	}
}

// Driver polls one run at a time and feeds the snapshots to its Reconciler
type Driver struct {
	fetcher        Fetcher
	handler        Handler
	reconciler     *reconcile.Reconciler
	reconcilerOpts []reconcile.Option
	interval       time.Duration
	fetchTimeout   time.Duration
	logger         log.Logger

	mu      sync.Mutex
	current *run

	// serializes handler calls, so states of a run are delivered in the order they were applied
	deliverMu sync.Mutex
}

type run struct {
	workflowId string
	instanceId string
	ctx        context.Context
	cancel     context.CancelFunc
	interval   time.Duration
	gate       *semaphore.Weighted
	issued     uint64
	applied    uint64
	logger     log.Logger
}

func New(fetcher Fetcher, handler Handler, opts ...Option) *Driver {
	d := &Driver{
		fetcher:      fetcher,
		handler:      handler,
		interval:     DefaultInterval,
		fetchTimeout: DefaultFetchTimeout,
		logger:       log.ChildLogger(log.RootLogger(), "poller"),
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.reconciler == nil {
		opts := append([]reconcile.Option{reconcile.WithLogger(d.logger)}, d.reconcilerOpts...)
		d.reconciler = reconcile.New(opts...)
	}

	return d
}

// Start begins polling the instance immediately and then every interval. A
// run already being polled is cancelled first and the reconciler is reset.
func (d *Driver) Start(workflowId, instanceId string) error {
	return d.StartEvery(workflowId, instanceId, d.interval)
}

// StartEvery is Start with an explicit interval for this run
func (d *Driver) StartEvery(workflowId, instanceId string, interval time.Duration) error {
	if interval <= 0 {
		interval = d.interval
	}
	if workflowId == "" || instanceId == "" {
		return errors.New("workflow id and instance id are required")
	}

	d.mu.Lock()
	d.stopLocked()
	d.reconciler.Reset()

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		workflowId: workflowId,
		instanceId: instanceId,
		ctx:        ctx,
		cancel:     cancel,
		interval:   interval,
		gate:       semaphore.NewWeighted(1),
		logger:     d.logger,
	}
	if log.CtxLoggingEnabled() {
		r.logger = log.ChildLoggerWithFields(d.logger, log.FieldString("workflowId", workflowId), log.FieldString("instanceId", instanceId))
	}
	d.current = r
	d.mu.Unlock()

	metrics.RecordPollerStart()
	r.logger.Debugf("Polling instance [%s] of workflow [%s] every %s", instanceId, workflowId, interval)

	go d.loop(r)
	return nil
}

// Stop cancels the active run, it is safe to call repeatedly and from the handler
func (d *Driver) Stop() {
	d.mu.Lock()
	d.stopLocked()
	d.mu.Unlock()
}

// Reset stops polling and clears the reconciler state of the run
func (d *Driver) Reset() {
	d.mu.Lock()
	d.stopLocked()
	d.reconciler.Reset()
	d.mu.Unlock()
}

// Running returns true while a run is being polled
func (d *Driver) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current != nil
}

// Instance returns the workflow and instance ids of the active run
func (d *Driver) Instance() (workflowId, instanceId string, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return "", "", false
	}
	return d.current.workflowId, d.current.instanceId, true
}

// Reconciler returns the reconciler owned by the driver
func (d *Driver) Reconciler() *reconcile.Reconciler {
	return d.reconciler
}

func (d *Driver) stopLocked() {
	if d.current == nil {
		return
	}
	d.current.cancel()
	d.current = nil
	metrics.RecordPollerStop()
}

func (d *Driver) loop(r *run) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	d.tick(r)
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			d.tick(r)
		}
	}
}

func (d *Driver) tick(r *run) {
	if r.ctx.Err() != nil {
		return
	}

	if !r.gate.TryAcquire(1) {
		metrics.RecordTick("skipped")
		r.logger.Debugf("Previous fetch of instance [%s] still in flight, skipping tick", r.instanceId)
		return
	}

	seq := atomic.AddUint64(&r.issued, 1)

	go func() {
		defer r.gate.Release(1)

		ctx, cancel := context.WithTimeout(r.ctx, d.fetchTimeout)
		defer cancel()

		start := time.Now()
		snapshot, err := d.fetcher.FetchInstance(ctx, r.workflowId, r.instanceId)
		metrics.RecordFetch(time.Since(start).Seconds())

		if err != nil {
			if r.ctx.Err() != nil {
				metrics.RecordTick("inactive")
				return
			}
			metrics.RecordTick("error")
			r.logger.Warnf("Unable to fetch instance [%s], will retry: %v", r.instanceId, err)
			return
		}

		d.apply(r, seq, snapshot)
	}()
}

func (d *Driver) apply(r *run, seq uint64, snapshot *state.Snapshot) {
	d.deliverMu.Lock()
	defer d.deliverMu.Unlock()

	d.mu.Lock()
	if d.current != r || r.ctx.Err() != nil {
		d.mu.Unlock()
		metrics.RecordTick("inactive")
		r.logger.Debugf("Discarding response for inactive instance [%s]", r.instanceId)
		return
	}
	if seq <= r.applied {
		d.mu.Unlock()
		metrics.RecordTick("stale")
		r.logger.Debugf("Discarding stale response %d for instance [%s], already applied %d", seq, r.instanceId, r.applied)
		return
	}
	r.applied = seq

	rs := d.reconciler.Reconcile(snapshot)
	if rs == nil {
		d.mu.Unlock()
		metrics.RecordTick("applied")
		return
	}

	rs.WorkflowId = r.workflowId
	rs.InstanceId = r.instanceId
	rs.Seq = seq

	if rs.IsTerminal() {
		r.logger.Infof("Instance [%s] is %s, polling stopped", r.instanceId, rs.Status)
		d.stopLocked()
	}
	d.mu.Unlock()

	metrics.RecordTick("applied")
	metrics.RecordRunState(string(rs.Status))
	postEvents(rs)

	if d.handler != nil {
		d.handler(rs)
	}
}
