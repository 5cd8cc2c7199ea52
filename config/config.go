package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type AlegraConfig struct {
	User   string `validate:"required,email"`
	APIKey string `validate:"required"`
	APIURL string `validate:"required,url"`
}

type ShopifyConfig struct {
	ShopName    string `validate:"required"`
	AccessToken string `validate:"required"`
	APIVersion  string `validate:"required"`
}

type SyncConfig struct {
	Alegra  AlegraConfig
	Shopify ShopifyConfig

	// Optional description enrichment. Empty key disables it.
	OpenAIKey string

	// Maps the computed IVA rate to "iva N%" collections when enabled.
	TaxCollections bool

	// Bearer token required by the sync-service API. Empty disables auth
	// (local development only).
	ServiceToken string
}

func init() {
	// Load env from .env
	godotenv.Load()
}

// LoadSyncConfig reads and validates the connector configuration from the
// environment. A validation failure here is fatal to the run: without
// credentials for both platforms there is nothing to synchronize.
func LoadSyncConfig() (*SyncConfig, error) {
	cfg := &SyncConfig{
		Alegra: AlegraConfig{
			User:   strings.TrimSpace(os.Getenv("ALEGRA_USER_EMAIL")),
			APIKey: strings.TrimSpace(os.Getenv("ALEGRA_API_KEY")),
			APIURL: strings.TrimSpace(os.Getenv("ALEGRA_URL")),
		},
		Shopify: ShopifyConfig{
			ShopName:    strings.TrimSpace(os.Getenv("SHOPIFY_SHOP_NAME")),
			AccessToken: strings.TrimSpace(os.Getenv("SHOPIFY_ACCESS_TOKEN")),
			APIVersion:  strings.TrimSpace(os.Getenv("SHOPIFY_API_VERSION")),
		},
		OpenAIKey:    strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		ServiceToken: strings.TrimSpace(os.Getenv("SYNC_SERVICE_TOKEN")),
	}
	if cfg.Shopify.APIVersion == "" {
		cfg.Shopify.APIVersion = "2024-10"
	}
	switch strings.ToLower(strings.TrimSpace(os.Getenv("SYNC_TAX_COLLECTIONS"))) {
	case "true", "1", "yes", "on":
		cfg.TaxCollections = true
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("sync config invalid: %w", err)
	}
	return cfg, nil
}
