package config

// EnvPrefix is passed to envconfig; individual fields carry explicit keys.
const EnvPrefix = "LEAFLINE"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

const (
	EnvAppEnv   = "LEAFLINE_APP_ENV"
	EnvPort     = "LEAFLINE_APP_PORT"
	EnvDBDSN    = "LEAFLINE_DB_DSN"
	EnvDBHost   = "LEAFLINE_DB_HOST"
	EnvDBUser   = "LEAFLINE_DB_USER"
	EnvDBName   = "LEAFLINE_DB_NAME"
	EnvRedisURL = "LEAFLINE_REDIS_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
