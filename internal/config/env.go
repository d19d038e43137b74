package config

import (
	"os"
	"strconv"
)

// FromEnv overlays PULSE_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	envStr("PULSE_HTTP_ADDR", &cfg.HTTPAddr)
	envStr("PULSE_DATA_DIR", &cfg.DataDir)
	envStr("PULSE_FSYNC", &cfg.Fsync)
	envStr("PULSE_LOG_LEVEL", &cfg.Log.Level)
	envStr("PULSE_LOG_FORMAT", &cfg.Log.Format)
	envStr("PULSE_LOG_FILE", &cfg.Log.File)

	envInt("PULSE_PRIORITY_RETENTION_HOURS", &cfg.Retention.PriorityRetentionHours)
	envInt("PULSE_REGULAR_RETENTION_HOURS", &cfg.Retention.RegularRetentionHours)
	envInt("PULSE_TOTAL_LIMIT", &cfg.Retention.TotalLimit)
	envInt("PULSE_PRIORITY_LIMIT", &cfg.Retention.PriorityLimit)
	envInt("PULSE_REGULAR_LIMIT", &cfg.Retention.RegularLimit)
	envFloat("PULSE_PRIORITY_SHARE", &cfg.Retention.PriorityShare)

	envInt("PULSE_PURGE_INTERVAL_SECONDS", &cfg.Purge.IntervalSeconds)
	envInt("PULSE_PURGE_BATCH_LIMIT", &cfg.Purge.BatchLimit)

	envInt("PULSE_SEND_TIMEOUT_MS", &cfg.Subscriber.SendTimeoutMs)
	envInt("PULSE_BUFFER_SIZE", &cfg.Subscriber.BufferSize)
	envInt("PULSE_PRIORITY_INFO_EVERY", &cfg.Subscriber.PriorityInfoEvery)
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
