package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "SHOPFLOW_"

type Config struct {
	App struct {
		Name     string `koanf:"name"`
		HTTPAddr string `koanf:"http_addr"`
		RunLocal bool   `koanf:"run_local"`
		LogFile  string `koanf:"log_file"`
		LogLevel string `koanf:"log_level"`
	} `koanf:"app"`

	AWS struct {
		Region           string `koanf:"region"`
		EndpointOverride string `koanf:"endpoint_override"`
	} `koanf:"aws"`

	Tables Tables `koanf:"tables"`

	Queue struct {
		ReconcileURL string `koanf:"reconcile_url"`
	} `koanf:"queue"`

	Security struct {
		JWTSecret string `koanf:"jwt_secret"`
		Issuer    string `koanf:"issuer"`
		Audience  string `koanf:"audience"`
	} `koanf:"security"`

	Discovery Discovery `koanf:"discovery"`

	Idempotency struct {
		TTL time.Duration `koanf:"ttl"`
	} `koanf:"idempotency"`
}

// Tables names every DynamoDB table the service touches.
type Tables struct {
	Carts       string `koanf:"carts"`
	Products    string `koanf:"products"`
	Shops       string `koanf:"shops"`
	Orders      string `koanf:"orders"`
	Aggregates  string `koanf:"aggregates"`
	Counters    string `koanf:"counters"`
	Idempotency string `koanf:"idempotency"`
}

// Discovery holds the lenient defaults for nearby search.
type Discovery struct {
	DefaultRadiusKm float64  `koanf:"default_radius_km"`
	DefaultPage     int      `koanf:"default_page"`
	DefaultPageSize int      `koanf:"default_page_size"`
	MaxPageSize     int      `koanf:"max_page_size"`
	ProductsPerShop int      `koanf:"products_per_shop"`
	Categories      []string `koanf:"categories"`
}

func defaults() map[string]any {
	return map[string]any{
		"app.name":                    "shopflow",
		"app.http_addr":               ":8080",
		"app.log_level":               "info",
		"aws.region":                  "us-east-1",
		"tables.carts":                "carts",
		"tables.products":             "products",
		"tables.shops":                "shops",
		"tables.orders":               "orders",
		"tables.aggregates":           "retailer_aggregates",
		"tables.counters":             "counters",
		"tables.idempotency":          "idempotency",
		"discovery.default_radius_km": 100.0,
		"discovery.default_page":      1,
		"discovery.default_page_size": 20,
		"discovery.max_page_size":     100,
		"discovery.products_per_shop": 10,
		"discovery.categories":        []string{"groceries", "electronics", "clothing", "farm"},
		"idempotency.ttl":             "48h",
	}
}

// Load layers defaults, an optional YAML file and SHOPFLOW_* environment
// variables (nested keys use a double underscore, e.g. SHOPFLOW_TABLES__CARTS).
func Load(path string) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		s = strings.ReplaceAll(s, "__", ".")
		return strings.ToLower(s)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("env overlay: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFromEnv reads the optional file path from SHOPFLOW_CONFIG_FILE.
func LoadFromEnv() (Config, error) {
	return Load(os.Getenv(envPrefix + "CONFIG_FILE"))
}

func (c Config) Validate() error {
	t := c.Tables
	for name, v := range map[string]string{
		"carts": t.Carts, "products": t.Products, "shops": t.Shops, "orders": t.Orders,
		"aggregates": t.Aggregates, "counters": t.Counters, "idempotency": t.Idempotency,
	} {
		if v == "" {
			return fmt.Errorf("tables.%s required", name)
		}
	}
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("security.jwt_secret required")
	}
	if c.Discovery.DefaultRadiusKm <= 0 || c.Discovery.DefaultPage <= 0 || c.Discovery.DefaultPageSize <= 0 {
		return fmt.Errorf("discovery defaults must be positive")
	}
	return nil
}
