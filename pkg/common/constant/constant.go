package constant

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	DefaultConfigPath = "configs/config.yaml"
	DefaultSubject    = "storage.snapshot"

	// cache key prefix for raw storage words
	WordKeyPrefix = "word"
)
