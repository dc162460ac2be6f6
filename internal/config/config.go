package config

type Config interface {
	EnvConfig
	ProviderConfig
	SecurityConfig
}

type mainConfig struct {
	EnvVars
	Providers
	Security
}

func New() Config {
	return mainConfig{}
}
