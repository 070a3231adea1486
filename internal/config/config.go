package config

type Config interface {
	EnvConfig
	SessionConfig
	RefreshConfig
}

type EnvConfig interface {
	GetAppName() string
	GetBaseURL() string
	GetMonitorURL() string
	GetDataFolder() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
	Session
	Refresh
}

func New() Config {
	return mainConfig{}
}
