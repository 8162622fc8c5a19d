package config

func loadProductionConfig(cfg *Config) {
	cfg.ConfigDir = "/config"
	cfg.DataDir = "/data"
	cfg.ServerHost = "0.0.0.0"
}
