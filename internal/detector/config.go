package detector

import (
	"errors"
	"time"
)

type Config struct {
	FailureDetectionInterval  time.Duration `envconfig:"FAILURE_DETECTION_INTERVAL,default=500ms"`
	RemoteShardConnectTimeout time.Duration `envconfig:"REMOTE_SHARD_CONNECT_TIMEOUT,default=200ms"`
}

func DefaultConfig() Config {
	return Config{
		FailureDetectionInterval:  500 * time.Millisecond,
		RemoteShardConnectTimeout: 200 * time.Millisecond,
	}
}

func (c Config) Validate() error {
	if c.FailureDetectionInterval <= 0 {
		return errors.New("failure detection interval must be positive")
	}
	if c.RemoteShardConnectTimeout <= 0 {
		return errors.New("remote shard connect timeout must be positive")
	}
	return nil
}
