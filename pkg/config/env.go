package config

const (
	EnvPrefix = "BIOSHOP"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv = "BIOSHOP_APP_ENV"
	EnvPort   = "BIOSHOP_APP_PORT"

	EnvDBDSN  = "BIOSHOP_DB_DSN"
	EnvDBHost = "BIOSHOP_DB_HOST"
	EnvDBUser = "BIOSHOP_DB_USER"
	EnvDBName = "BIOSHOP_DB_NAME"

	EnvRedisURL = "BIOSHOP_REDIS_URL"

	EnvPaystackSecretKey = "BIOSHOP_PAYSTACK_SECRET_KEY"
	EnvPaystackPlanPrice = "BIOSHOP_PAYSTACK_PLAN_PRICE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
