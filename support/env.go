package support

import (
	"os"
	"strings"

	"github.com/project-flogo/core/data/coerce"
)

const (
	EnvPrefix  = "FLOWWATCH_"
	HostName   = "FLOWWATCH_HOST_NAME"
	ConfigFile = "FLOWWATCH_CONFIG"

	EnvEngineURL          = "FLOWWATCH_ENGINE_URL"
	EnvEngineToken        = "FLOWWATCH_ENGINE_TOKEN"
	EnvEngineTimeout      = "FLOWWATCH_ENGINE_TIMEOUT"
	EnvBreakerMaxFailures = "FLOWWATCH_BREAKER_MAX_FAILURES"
	EnvBreakerTimeout     = "FLOWWATCH_BREAKER_TIMEOUT"
	EnvRateLimit          = "FLOWWATCH_RATE_LIMIT"
	EnvRateBurst          = "FLOWWATCH_RATE_BURST"
	EnvPollInterval       = "FLOWWATCH_POLL_INTERVAL"
	EnvFetchTimeout       = "FLOWWATCH_FETCH_TIMEOUT"
	EnvInteractiveTypes   = "FLOWWATCH_INTERACTIVE_TYPES"
	EnvPort               = "FLOWWATCH_PORT"
	EnvSessionTTL         = "FLOWWATCH_SESSION_TTL"
	EnvRecording          = "FLOWWATCH_RECORDING"
	EnvHistoryLimit       = "FLOWWATCH_HISTORY_LIMIT"
	EnvRedisAddr          = "FLOWWATCH_REDIS_ADDR"
	EnvRedisPrefix        = "FLOWWATCH_REDIS_PREFIX"
	EnvRedisTTL           = "FLOWWATCH_REDIS_TTL"
)

var hostName string

func GetHostId() string {
	if len(hostName) > 0 {
		return hostName
	}
	hostName = os.Getenv(HostName)
	if len(hostName) > 0 {
		return hostName
	}
	h, _ := os.Hostname()
	return h
}

func lookupString(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// lookupStrings reads a comma separated list, blank entries are dropped
func lookupStrings(key string) ([]string, bool) {
	v, ok := lookupString(key)
	if !ok {
		return nil, false
	}
	var list []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list, len(list) > 0
}

func lookupInt(key string) (int, bool) {
	v, ok := lookupString(key)
	if !ok {
		return 0, false
	}
	i, err := coerce.ToInt(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

func lookupFloat(key string) (float64, bool) {
	v, ok := lookupString(key)
	if !ok {
		return 0, false
	}
	f, err := coerce.ToFloat64(v)
	if err != nil {
		return 0, false
	}
	return f, true
}

func lookupDuration(key string) (Duration, bool) {
	v, ok := lookupString(key)
	if !ok {
		return Duration{}, false
	}
	var d Duration
	if err := d.UnmarshalText([]byte(v)); err != nil {
		return Duration{}, false
	}
	return d, true
}
