package config

import "time"

func loadTestConfig(cfg *Config) {
	cfg.ConfigDir = "./tmp"
	cfg.DataDir = "./tmp"
	cfg.DatabaseFilePath = ":memory:"
	cfg.ServerHost = "127.0.0.1"
	// Random port so parallel test runs don't collide.
	cfg.ServerPort = 0
	cfg.TaskRetryBackoff = 10 * time.Millisecond
	cfg.PDFRenderingEnabled = false
}
