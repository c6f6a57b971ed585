package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Server struct {
	Port            string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type Log struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

type HTTPClient struct {
	Timeout   time.Duration
	Retries   int
	UserAgent string
}

type Aggregator struct {
	ProviderTimeout time.Duration
}

type Correios struct {
	Enabled     bool
	URL         string
	CompanyCode string
	Password    string
	CacheTTL    time.Duration
}

type Courier struct {
	Enabled bool
}

type Frenet struct {
	Enabled              bool
	APIToken             string
	APIURL               string
	InvoiceValue         float64
	MaxRequestsPerMinute int
	Burst                int
	MinRequestInterval   time.Duration
	CacheTTL             time.Duration
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

type Cache struct {
	Backend  string // memory or redis
	MaxItems int
	Redis    Redis
}

type FreeShipping struct {
	Threshold     decimal.Decimal
	StandardLabel string
	Marker        string
}

type Telemetry struct {
	Enabled         bool
	ZipkinURL       string
	ServiceName     string
	SamplingRatio   float64
	MetricsEnabled  bool
	MetricsEndpoint string
	MetricsInsecure bool
	MetricsInterval time.Duration
}

type Config struct {
	Server           Server
	Log              Log
	HTTPClient       HTTPClient
	SellerPostalCode string
	Aggregator       Aggregator
	Correios         Correios
	Jadlog           Courier
	Loggi            Courier
	Frenet           Frenet
	Cache            Cache
	FreeShipping     FreeShipping
	Telemetry        Telemetry
}

const envPrefix = "SHIPPING"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.request_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("http_client.timeout", 10*time.Second)
	v.SetDefault("http_client.retries", 1)
	v.SetDefault("http_client.user_agent", "shipping-quote/1.0")

	v.SetDefault("seller_postal_code", "01001000")
	v.SetDefault("aggregator.provider_timeout", 5*time.Second)

	v.SetDefault("correios.enabled", true)
	v.SetDefault("correios.url", "http://ws.correios.com.br/calculador/CalcPrecoPrazo.aspx")
	v.SetDefault("correios.company_code", "")
	v.SetDefault("correios.password", "")
	v.SetDefault("correios.cache_ttl", 10*time.Minute)

	v.SetDefault("jadlog.enabled", true)
	v.SetDefault("loggi.enabled", true)

	v.SetDefault("frenet.enabled", true)
	v.SetDefault("frenet.api_token", "")
	v.SetDefault("frenet.api_url", "https://api.frenet.com.br")
	v.SetDefault("frenet.invoice_value", 100.0)
	v.SetDefault("frenet.max_requests_per_minute", 120)
	v.SetDefault("frenet.burst", 10)
	v.SetDefault("frenet.min_request_interval", time.Duration(0))
	v.SetDefault("frenet.cache_ttl", 5*time.Minute)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.max_items", 10000)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)

	v.SetDefault("free_shipping.threshold", "200")
	v.SetDefault("free_shipping.standard_label", "Correios - PAC")
	v.SetDefault("free_shipping.marker", " (Grátis)")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.zipkin_url", "http://localhost:9411/api/v2/spans")
	v.SetDefault("telemetry.service_name", "shipping-quote")
	v.SetDefault("telemetry.sampling_ratio", 1.0)
	v.SetDefault("telemetry.metrics_enabled", false)
	v.SetDefault("telemetry.metrics_endpoint", "localhost:4317")
	v.SetDefault("telemetry.metrics_insecure", true)
	v.SetDefault("telemetry.metrics_interval", 60*time.Second)
}

// Load reads configuration.
// Priority (highest to lowest):
// 1. Environment variables with SHIPPING_ prefix (e.g., SHIPPING_FRENET_API_TOKEN)
// 2. The JSON file at path, or ./config.json when path is empty and the file exists
// 3. Built-in defaults
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("json")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unprefixed names kept for deployments that already export them.
	_ = v.BindEnv("frenet.api_token", envPrefix+"_FRENET_API_TOKEN", "FRENET_API_TOKEN")
	_ = v.BindEnv("frenet.api_url", envPrefix+"_FRENET_API_URL", "FRENET_API_URL")
	_ = v.BindEnv("seller_postal_code", envPrefix+"_SELLER_POSTAL_CODE", "SELLER_POSTAL_CODE")

	threshold, err := decimal.NewFromString(strings.TrimSpace(v.GetString("free_shipping.threshold")))
	if err != nil {
		return Config{}, fmt.Errorf("free_shipping.threshold: %w", err)
	}

	cfg := Config{
		Server: Server{
			Port:            v.GetString("server.port"),
			RequestTimeout:  v.GetDuration("server.request_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Log: Log{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTPClient: HTTPClient{
			Timeout:   v.GetDuration("http_client.timeout"),
			Retries:   v.GetInt("http_client.retries"),
			UserAgent: v.GetString("http_client.user_agent"),
		},
		SellerPostalCode: v.GetString("seller_postal_code"),
		Aggregator: Aggregator{
			ProviderTimeout: v.GetDuration("aggregator.provider_timeout"),
		},
		Correios: Correios{
			Enabled:     v.GetBool("correios.enabled"),
			URL:         v.GetString("correios.url"),
			CompanyCode: v.GetString("correios.company_code"),
			Password:    v.GetString("correios.password"),
			CacheTTL:    v.GetDuration("correios.cache_ttl"),
		},
		Jadlog: Courier{Enabled: v.GetBool("jadlog.enabled")},
		Loggi:  Courier{Enabled: v.GetBool("loggi.enabled")},
		Frenet: Frenet{
			Enabled:              v.GetBool("frenet.enabled"),
			APIToken:             v.GetString("frenet.api_token"),
			APIURL:               v.GetString("frenet.api_url"),
			InvoiceValue:         v.GetFloat64("frenet.invoice_value"),
			MaxRequestsPerMinute: v.GetInt("frenet.max_requests_per_minute"),
			Burst:                v.GetInt("frenet.burst"),
			MinRequestInterval:   v.GetDuration("frenet.min_request_interval"),
			CacheTTL:             v.GetDuration("frenet.cache_ttl"),
		},
		Cache: Cache{
			Backend:  strings.ToLower(strings.TrimSpace(v.GetString("cache.backend"))),
			MaxItems: v.GetInt("cache.max_items"),
			Redis: Redis{
				Addr:     v.GetString("cache.redis.addr"),
				Password: v.GetString("cache.redis.password"),
				DB:       v.GetInt("cache.redis.db"),
			},
		},
		FreeShipping: FreeShipping{
			Threshold:     threshold,
			StandardLabel: v.GetString("free_shipping.standard_label"),
			Marker:        v.GetString("free_shipping.marker"),
		},
		Telemetry: Telemetry{
			Enabled:         v.GetBool("telemetry.enabled"),
			ZipkinURL:       v.GetString("telemetry.zipkin_url"),
			ServiceName:     v.GetString("telemetry.service_name"),
			SamplingRatio:   v.GetFloat64("telemetry.sampling_ratio"),
			MetricsEnabled:  v.GetBool("telemetry.metrics_enabled"),
			MetricsEndpoint: v.GetString("telemetry.metrics_endpoint"),
			MetricsInsecure: v.GetBool("telemetry.metrics_insecure"),
			MetricsInterval: v.GetDuration("telemetry.metrics_interval"),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFromEnv loads using the file named by CONFIG_FILE, if any.
func LoadFromEnv() (Config, error) {
	return Load(os.Getenv("CONFIG_FILE"))
}

func (c Config) validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Port) == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Aggregator.ProviderTimeout <= 0 {
		errs = append(errs, errors.New("aggregator.provider_timeout must be positive"))
	}
	switch c.Cache.Backend {
	case "memory", "redis", "none":
	default:
		errs = append(errs, fmt.Errorf("cache.backend must be memory, redis or none, got %q", c.Cache.Backend))
	}
	if c.FreeShipping.Threshold.IsNegative() {
		errs = append(errs, errors.New("free_shipping.threshold must not be negative"))
	}
	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		errs = append(errs, errors.New("telemetry.sampling_ratio must be within [0, 1]"))
	}
	if c.Telemetry.MetricsEnabled && strings.TrimSpace(c.Telemetry.MetricsEndpoint) == "" {
		errs = append(errs, errors.New("telemetry.metrics_endpoint is required when metrics are enabled"))
	}
	return errors.Join(errs...)
}
