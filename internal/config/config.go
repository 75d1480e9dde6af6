package config

// Config holds all application configuration loaded from environment
// variables, parsed with github.com/caarlos0/env.
type Config struct {
	// Server configuration
	MetricsPort int    `env:"METRICS_PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"dev"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"EngageRuntime"`

	// Widget backend (REQUIRED)
	ProjectID  string `env:"PROJECT_ID,required"`
	BackendURL string `env:"BACKEND_URL,required"`

	// Page context the headless host reports upstream
	PageURL      string `env:"PAGE_URL" envDefault:"https://localhost/"`
	DeviceType   string `env:"DEVICE_TYPE" envDefault:"desktop"`
	VisitorClass string `env:"VISITOR_CLASS"`

	// Redis configuration. When REDIS_HOST is empty the durable bucket
	// falls back to in-memory storage, which loses frequency caps on
	// restart.
	RedisHost         string `env:"REDIS_HOST"`
	RedisPort         string `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword     string `env:"REDIS_PASSWORD"`
	RedisMaxRetries   int    `env:"REDIS_MAX_RETRIES" envDefault:"5"`
	RedisRetryDelayMs int    `env:"REDIS_RETRY_DELAY_MS" envDefault:"1000"`

	// Sandbox backend, for local development without a real control
	// plane. When enabled it serves the widget API on SANDBOX_PORT and
	// the runtime is pointed at it instead of BACKEND_URL.
	SandboxEnabled     bool   `env:"SANDBOX_ENABLED" envDefault:"false"`
	SandboxPort        int    `env:"SANDBOX_PORT" envDefault:"9090"`
	SandboxCatalogPath string `env:"SANDBOX_CATALOG_PATH" envDefault:"config/elements.yaml"`
}
