package config

const (
	EnvPrefix = "CLUBE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv = "CLUBE_APP_ENV"
	EnvPort   = "CLUBE_APP_PORT"

	EnvDBDSN  = "CLUBE_DB_DSN"
	EnvDBHost = "CLUBE_DB_HOST"
	EnvDBUser = "CLUBE_DB_USER"
	EnvDBName = "CLUBE_DB_NAME"

	EnvRedisURL     = "CLUBE_REDIS_URL"
	EnvJWTSecret    = "CLUBE_JWT_SECRET"
	EnvJWTIssuer    = "CLUBE_JWT_ISSUER"
	EnvGCPProjectID = "CLUBE_GCP_PROJECT_ID"

	EnvMercadoPagoToken = "CLUBE_MERCADOPAGO_ACCESS_TOKEN"
	EnvCouponPercent    = "CLUBE_CHECKOUT_COUPON_PERCENT"
	EnvStrictSeats      = "CLUBE_CHECKOUT_STRICT_SEATS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
