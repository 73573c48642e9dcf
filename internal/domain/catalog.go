package domain

// ModelConfig describes the single model served by the backend, its limits and its pricing.
type ModelConfig struct {
	ID                string   `env:"MODEL_ID"           envDefault:"your-org/your-model"`
	DisplayName       string   `env:"MODEL_DISPLAY_NAME" envDefault:"Your Model Display Name"`
	OrganizationID    string   `env:"ORGANIZATION_ID"    envDefault:"your-org"`
	MaxContextLength  int      `env:"MAX_CONTEXT_LENGTH" envDefault:"131072"`
	DefaultMaxTokens  int      `env:"DEFAULT_MAX_TOKENS" envDefault:"4096"`
	Quantization      string   `env:"QUANTIZATION"       envDefault:"fp16"`
	SupportedFeatures []string `env:"SUPPORTED_FEATURES" envDefault:"tools,json_mode,streaming" envSeparator:","`

	// Prices are USD per token, kept as decimal strings for the discovery payload.
	PricePerPromptToken     string `env:"PRICE_PER_PROMPT_TOKEN"     envDefault:"0.000008"`
	PricePerCompletionToken string `env:"PRICE_PER_COMPLETION_TOKEN" envDefault:"0.000024"`
}

// ModelPricing is the per-token price advertised to aggregators.
type ModelPricing struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
}

// ModelInfo is the discovery metadata for one model.
type ModelInfo struct {
	ID                string       `json:"id"`
	Object            string       `json:"object"`
	Created           int64        `json:"created"`
	OwnedBy           string       `json:"owned_by"`
	Name              string       `json:"name"`
	ContextLength     int          `json:"context_length"`
	Pricing           ModelPricing `json:"pricing"`
	Quantization      string       `json:"quantization"`
	SupportedFeatures []string     `json:"supported_features"`
}

// ModelList is the discovery response envelope.
type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

// Catalog serves model metadata for the discovery surface.
type Catalog struct {
	cfg     ModelConfig
	created int64
}

// NewCatalog creates a catalog whose models report the process start as creation time (DI constructor).
func NewCatalog(cfg *ModelConfig, metrics *RequestMetrics) *Catalog {
	return &Catalog{
		cfg:     *cfg,
		created: metrics.StartTime().Unix(),
	}
}

// Models returns the discovery listing.
func (c *Catalog) Models() ModelList {
	features := make([]string, len(c.cfg.SupportedFeatures))
	copy(features, c.cfg.SupportedFeatures)

	return ModelList{
		Object: "list",
		Data: []ModelInfo{
			{
				ID:            c.cfg.ID,
				Object:        "model",
				Created:       c.created,
				OwnedBy:       c.cfg.OrganizationID,
				Name:          c.cfg.DisplayName,
				ContextLength: c.cfg.MaxContextLength,
				Pricing: ModelPricing{
					Prompt:     c.cfg.PricePerPromptToken,
					Completion: c.cfg.PricePerCompletionToken,
				},
				Quantization:      c.cfg.Quantization,
				SupportedFeatures: features,
			},
		},
	}
}
