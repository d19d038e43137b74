package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pulsekit/pulse/internal/client"
	"github.com/pulsekit/pulse/internal/retention"
	logpkg "github.com/pulsekit/pulse/pkg/log"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	HTTPAddr   string           `json:"httpAddr"`
	DataDir    string           `json:"dataDir"`
	Fsync      string           `json:"fsync"`
	Log        logpkg.Config    `json:"log"`
	Retention  retention.Config `json:"retention"`
	Classifier map[string]int   `json:"classifier"`
	Purge      Purge            `json:"purge"`
	Subscriber Subscriber       `json:"subscriber"`
	Client     client.Config    `json:"client"`
}

// Purge tunes the background retention sweep.
type Purge struct {
	IntervalSeconds int `json:"intervalSeconds"`
	BatchLimit      int `json:"batchLimit"`
}

// Subscriber tunes per-connection fan-out.
type Subscriber struct {
	SendTimeoutMs     int `json:"sendTimeoutMs"`
	BufferSize        int `json:"bufferSize"`
	PriorityInfoEvery int `json:"priorityInfoEvery"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		HTTPAddr:  ":8787",
		DataDir:   DefaultDataDir(),
		Fsync:     "always",
		Retention: retention.Default(),
		Purge: Purge{
			IntervalSeconds: 60,
			BatchLimit:      1024,
		},
		Subscriber: Subscriber{
			SendTimeoutMs:     1000,
			BufferSize:        256,
			PriorityInfoEvery: 50,
		},
		Client: client.DefaultConfig(),
	}
}

// Load reads configuration from a JSON file. If path is empty, returns
// defaults. File values overlay the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the sections with hard invariants.
func (c Config) Validate() error {
	if err := c.Retention.Validate(); err != nil {
		return err
	}
	return c.Client.Validate()
}
