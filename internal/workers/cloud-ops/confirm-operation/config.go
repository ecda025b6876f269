package confirmoperation

import "time"

type Config struct {
	// Timeout bounds one confirmation, provider call included.
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 60 * time.Second,
	}
}
