package monitor

import (
	"github.com/project-flogo/core/data/coerce"
	"github.com/project-flogo/core/support/log"
	"github.com/project-flogo/core/support/service"
	"github.com/project-flogo/flowwatch/client"
	"github.com/project-flogo/flowwatch/poller"
	"github.com/project-flogo/flowwatch/reconcile"
	"github.com/project-flogo/flowwatch/state"
	"github.com/project-flogo/flowwatch/support"
	"github.com/redis/go-redis/v9"
)

// SettingConfig is the service setting holding the path of the TOML configuration
const SettingConfig = "config"

func init() {
	_ = service.RegisterFactory(&MonitorFactory{})
}

type MonitorFactory struct {
}

func (f *MonitorFactory) NewService(config *service.Config) (service.Service, error) {
	path, _ := coerce.ToString(config.Settings[SettingConfig])
	cfg, err := support.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return NewFromConfig(cfg)
}

// NewFromConfig wires the engine client, the state recorder and the monitor from the configuration
func NewFromConfig(cfg *support.Config) (*Monitor, error) {
	logger := log.ChildLogger(log.RootLogger(), "monitor")

	mode, err := state.ToRecordingMode(cfg.Monitor.Recording)
	if err != nil {
		return nil, err
	}

	engine := NewClient(cfg)

	var recorder state.Recorder
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		recorder = state.NewRedisRecorder(rdb,
			state.WithPrefix(cfg.Redis.Prefix),
			state.WithTTL(cfg.Redis.TTL.Duration),
			state.WithLimit(cfg.Monitor.HistoryLimit))
		logger.Infof("Recording run states to redis at %s", cfg.Redis.Addr)
	} else {
		recorder = state.NewMemoryRecorder(cfg.Monitor.HistoryLimit)
	}

	return New(engine,
		WithLogger(logger),
		WithPort(cfg.Monitor.Port),
		WithSessionTTL(cfg.Monitor.SessionTTL.Duration),
		WithMessageLimit(cfg.Monitor.HistoryLimit),
		WithRecorder(recorder, mode),
		WithPollerOptions(
			poller.WithInterval(cfg.Poll.Interval.Duration),
			poller.WithFetchTimeout(cfg.Poll.FetchTimeout.Duration),
			poller.WithReconcilerOptions(reconcile.WithInteractiveTypes(cfg.Poll.InteractiveTypes...)),
		),
	), nil
}

// NewClient creates the engine client described by the configuration
func NewClient(cfg *support.Config) *client.Client {
	return client.New(cfg.Engine.BaseURL,
		client.WithToken(cfg.Engine.Token),
		client.WithTimeout(cfg.Engine.Timeout.Duration),
		client.WithBreaker(cfg.Engine.BreakerMaxFailures, cfg.Engine.BreakerTimeout.Duration),
		client.WithRateLimit(cfg.Engine.RateLimit, cfg.Engine.RateBurst),
	)
}
