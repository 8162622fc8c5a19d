package config

import (
	"os"
	"strconv"
)

func loadDevelopmentConfig(cfg *Config) {
	port, err := strconv.Atoi(os.Getenv("PORT"))
	if err == nil {
		cfg.ServerPort = port
	}

	cfg.ConfigDir = "./tmp"
	cfg.DataDir = "./tmp"
	cfg.DatabaseDebug = true
	cfg.ServerHost = "127.0.0.1"
}
