package common

import "github.com/spf13/viper"

// ===============================================================================
// Device Cloud Related Config

// CloudAuthConfig defines credentials for the device-telemetry cloud
type CloudAuthConfig struct {
	// Username is the device cloud account name
	Username string `mapstructure:"username" json:"username" validate:"required"`
	// Password is the device cloud account password
	Password string `mapstructure:"password" json:"-" validate:"required"`
}

// CloudConfig defines parameters for connecting to the device-telemetry cloud
type CloudConfig struct {
	// BaseURL is the device cloud REST base URL
	BaseURL string `mapstructure:"base_url" json:"base_url" validate:"required,url"`
	// RequestTimeout is the max duration for one REST exchange in seconds
	RequestTimeout int `mapstructure:"request_timeout_sec" json:"request_timeout_sec" validate:"gte=1"`
	// Auth are the device cloud login credentials
	Auth CloudAuthConfig `mapstructure:"auth" json:"auth" validate:"required,dive"`
}

// ===============================================================================
// Telemetry Stream Related Config

// TelemetryBackoffConfig defines poll interval backoff parameters
type TelemetryBackoffConfig struct {
	// MinIntervalMS is the lower clamp on the poll interval in milliseconds
	MinIntervalMS int `mapstructure:"min_interval_ms" json:"min_interval_ms" validate:"gte=100"`
	// MaxIntervalMS is the upper clamp on the poll interval in milliseconds
	MaxIntervalMS int `mapstructure:"max_interval_ms" json:"max_interval_ms" validate:"gte=100"`
	// Multiplier scales the poll interval per consecutive failure
	Multiplier float64 `mapstructure:"multiplier" json:"multiplier" validate:"gte=1"`
	// MaxRetries caps the consecutive failure count used for backoff
	MaxRetries int `mapstructure:"max_retries" json:"max_retries" validate:"gte=0"`
}

// TelemetryConfig defines telemetry stream client parameters
type TelemetryConfig struct {
	// WSBaseURL is the push transport base URL. Defaults to the hosted
	// telemetry endpoint.
	WSBaseURL string `mapstructure:"ws_base_url" json:"ws_base_url" validate:"required,url"`
	// PollIntervalMS is the base polling interval in milliseconds
	PollIntervalMS int `mapstructure:"poll_interval_ms" json:"poll_interval_ms" validate:"gte=100"`
	// Backoff defines poll interval backoff parameters
	Backoff TelemetryBackoffConfig `mapstructure:"backoff" json:"backoff" validate:"required,dive"`
	// SlowResponseThresholdMS is the poll cycle duration in milliseconds
	// above which a warning is logged
	SlowResponseThresholdMS int `mapstructure:"slow_response_threshold_ms" json:"slow_response_threshold_ms" validate:"gte=100"`
	// FallbackGraceSec is the max duration in seconds a push connection
	// attempt may take before the client falls back to polling
	FallbackGraceSec int `mapstructure:"fallback_grace_sec" json:"fallback_grace_sec" validate:"gte=1"`
	// Keys is the set of telemetry keys watched on each target device
	Keys []string `mapstructure:"keys" json:"keys" validate:"required,min=1"`
}

// ===============================================================================
// Storage Related Config

// StorageConfig defines parameters for the relational store
type StorageConfig struct {
	// DBFile is the SQLite database file path
	DBFile string `mapstructure:"db_file" json:"db_file" validate:"required"`
}

// ===============================================================================
// NATS Related Config

// NATSReconnectConfig defines reconnect parameters
type NATSReconnectConfig struct {
	// MaxAttempts sets the max number of reconnect attempts (-1 is unlimited)
	MaxAttempts int `mapstructure:"max_attempts" json:"max_attempts" validate:"gte=-1"`
	// WaitInterval is the duration between reconnect attempts in seconds
	WaitInterval int `mapstructure:"wait_interval_sec" json:"wait_interval_sec" validate:"gte=1"`
}

// NATSConfig defines parameters for connecting to NATS server
type NATSConfig struct {
	// ServerURI is the NATS connection URI
	ServerURI string `mapstructure:"server_uri" json:"server_uri" validate:"required,uri"`
	// ConnectTimeout is the max duration for connecting to NATS server in seconds
	ConnectTimeout int `mapstructure:"connect_timeout_sec" json:"connect_timeout_sec" validate:"gte=1"`
	// Reconnect defines reconnect parameters
	Reconnect NATSReconnectConfig `mapstructure:"reconnect" json:"reconnect" validate:"required,dive"`
}

// RelayConfig defines parameters for the cloud-to-NATS telemetry relay
type RelayConfig struct {
	// SubjectPrefix is the NATS subject prefix envelopes are published under
	SubjectPrefix string `mapstructure:"subject_prefix" json:"subject_prefix" validate:"required"`
}

// ===============================================================================
// HTTP Related Config

// HTTPServerConfig defines the HTTP server parameters
type HTTPServerConfig struct {
	// ListenOn is the interface the HTTP server will listen on
	ListenOn string `mapstructure:"listen_on" json:"listen_on" validate:"required,ip"`
	// Port is the port the HTTP server will listen on
	Port uint16 `mapstructure:"listen_port" json:"listen_port" validate:"required,gt=0,lt=65536"`
	// ReadTimeout is the maximum duration for reading the entire
	// request, including the body in seconds. A zero or negative
	// value means there will be no timeout.
	ReadTimeout int `mapstructure:"read_timeout_sec" json:"read_timeout_sec" validate:"gte=0"`
	// WriteTimeout is the maximum duration before timing out
	// writes of the response in seconds. A zero or negative value
	// means there will be no timeout.
	WriteTimeout int `mapstructure:"write_timeout_sec" json:"write_timeout_sec" validate:"gte=0"`
	// IdleTimeout is the maximum amount of time to wait for the
	// next request when keep-alives are enabled in seconds. If
	// IdleTimeout is zero, the value of ReadTimeout is used. If
	// both are zero, there is no timeout.
	IdleTimeout int `mapstructure:"idle_timeout_sec" json:"idle_timeout_sec" validate:"gte=0"`
}

// HTTPRequestLogging defines HTTP request logging parameters
type HTTPRequestLogging struct {
	// RequestIDHeader is the HTTP header containing the API request ID
	RequestIDHeader string `mapstructure:"request_id_header" json:"request_id_header"`
	// DoNotLogHeaders is the list of headers to not include in logging metadata
	DoNotLogHeaders []string `mapstructure:"do_not_log_headers" json:"do_not_log_headers"`
}

// HTTPConfig defines HTTP API / server parameters
type HTTPConfig struct {
	// Server defines HTTP server parameters
	Server HTTPServerConfig `mapstructure:"server_config" json:"server_config" validate:"required,dive"`
	// Logging defines operation logging parameters
	Logging HTTPRequestLogging `mapstructure:"logging_config" json:"logging_config" validate:"required,dive"`
}

// ===============================================================================
// Dashboard Server Related Config

// DashboardEndpointConfig defines dashboard API endpoint config
type DashboardEndpointConfig struct {
	// PathPrefix is the end-point path prefix for the dashboard APIs
	PathPrefix string `mapstructure:"path_prefix" json:"path_prefix" validate:"required"`
}

// DashboardAuthConfig defines dashboard API token parameters
type DashboardAuthConfig struct {
	// TokenSigningKey is the HMAC key used to sign dashboard API bearer tokens
	TokenSigningKey string `mapstructure:"token_signing_key" json:"-" validate:"required"`
	// TokenTTLMinutes is the issued token lifespan in minutes
	TokenTTLMinutes int `mapstructure:"token_ttl_minutes" json:"token_ttl_minutes" validate:"gte=1"`
}

// DashboardServerConfig defines configuration for the dashboard API server
type DashboardServerConfig struct {
	// HTTPSetting is the HTTP API / server parameters for the dashboard API server
	HTTPSetting HTTPConfig `mapstructure:"api_server" json:"api_server" validate:"required,dive"`
	// Endpoints is the API endpoint config parameters for the dashboard API server
	Endpoints DashboardEndpointConfig `mapstructure:"endpoint_config" json:"endpoint_config" validate:"required,dive"`
	// Auth is the dashboard API token config parameters
	Auth DashboardAuthConfig `mapstructure:"auth" json:"auth" validate:"required,dive"`
}

// ===============================================================================
// Complete Config

// SystemConfig defines the complete system config used by either dashboard or relay server
type SystemConfig struct {
	// Cloud are the device-telemetry cloud config parameters
	Cloud CloudConfig `mapstructure:"cloud" json:"cloud" validate:"required,dive"`
	// Telemetry are the telemetry stream client config parameters
	Telemetry TelemetryConfig `mapstructure:"telemetry" json:"telemetry" validate:"required,dive"`
	// Storage are the relational store config parameters
	Storage StorageConfig `mapstructure:"storage" json:"storage" validate:"required,dive"`
	// Dashboard are the dashboard API server configs
	Dashboard *DashboardServerConfig `mapstructure:"dashboard,omitempty" json:"dashboard,omitempty" validate:"omitempty,dive"`
	// NATS are the NATS related config parameters for the relay
	NATS *NATSConfig `mapstructure:"nats,omitempty" json:"nats,omitempty" validate:"omitempty,dive"`
	// Relay are the telemetry relay configs
	Relay *RelayConfig `mapstructure:"relay,omitempty" json:"relay,omitempty" validate:"omitempty,dive"`
}

// ===============================================================================

// InstallDefaultConfigValues installs default config parameters in viper
func InstallDefaultConfigValues() {
	// Default device cloud settings
	viper.SetDefault("cloud.base_url", "https://telemetry.rangelab.io")
	viper.SetDefault("cloud.request_timeout_sec", 15)

	// Default telemetry stream settings
	viper.SetDefault("telemetry.ws_base_url", "https://telemetry.rangelab.io")
	viper.SetDefault("telemetry.poll_interval_ms", 5000)
	viper.SetDefault("telemetry.backoff.min_interval_ms", 1000)
	viper.SetDefault("telemetry.backoff.max_interval_ms", 120000)
	viper.SetDefault("telemetry.backoff.multiplier", 1.5)
	viper.SetDefault("telemetry.backoff.max_retries", 10)
	viper.SetDefault("telemetry.slow_response_threshold_ms", 3000)
	viper.SetDefault("telemetry.fallback_grace_sec", 3)
	viper.SetDefault("telemetry.keys", []string{"hits", "gameId", "event"})

	// Default storage settings
	viper.SetDefault("storage.db_file", "rangehub.db")

	// Default NATS relay settings
	viper.SetDefault("nats.server_uri", "nats://127.0.0.1:4222")
	viper.SetDefault("nats.connect_timeout_sec", 30)
	viper.SetDefault("nats.reconnect.max_attempts", -1)
	viper.SetDefault("nats.reconnect.wait_interval_sec", 15)
	viper.SetDefault("relay.subject_prefix", "rangehub.telemetry")

	// Default Dashboard server settings
	viper.SetDefault("dashboard.endpoint_config.path_prefix", "/")
	viper.SetDefault("dashboard.api_server.server_config.listen_on", "0.0.0.0")
	viper.SetDefault("dashboard.api_server.server_config.listen_port", 3000)
	// Read / write timeouts stay off; the live feed holds connections open
	viper.SetDefault("dashboard.api_server.server_config.read_timeout_sec", 0)
	viper.SetDefault("dashboard.api_server.server_config.write_timeout_sec", 0)
	viper.SetDefault("dashboard.api_server.server_config.idle_timeout_sec", 600)
	viper.SetDefault(
		"dashboard.api_server.logging_config.request_id_header", "Rangehub-Request-ID",
	)
	viper.SetDefault(
		"dashboard.api_server.logging_config.do_not_log_headers", []string{
			"WWW-Authenticate", "Authorization", "Proxy-Authenticate", "Proxy-Authorization",
		},
	)
	viper.SetDefault("dashboard.auth.token_ttl_minutes", 720)
}
