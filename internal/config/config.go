package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"10"`
	DBMinConns  int32  `envconfig:"DB_MIN_CONNS" default:"2"`

	OpenAIAPIKey  string        `envconfig:"OPENAI_API_KEY"`
	OpenAITimeout time.Duration `envconfig:"OPENAI_TIMEOUT" default:"30s"`
	ChatModel     string        `envconfig:"CHAT_MODEL" default:"gpt-4o-mini"`

	// WhatsApp Cloud API delivery provider
	WAAccessToken   string        `envconfig:"WA_ACCESS_TOKEN"`
	WAPhoneNumberID string        `envconfig:"WA_PHONE_NUMBER_ID"`
	WAVerifyToken   string        `envconfig:"WA_VERIFY_TOKEN"`
	GraphAPIVersion string        `envconfig:"GRAPH_API_VERSION" default:"v21.0"`
	WATimeout       time.Duration `envconfig:"WA_TIMEOUT" default:"15s"`

	// Admin endpoints (kb management, message and correspondent listing)
	AdminToken string `envconfig:"ADMIN_TOKEN"`

	// Optional S3 document source bucket for kb import
	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"converso-kb"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	// Persona policy for the answer generator
	PersonaName         string `envconfig:"PERSONA_NAME" default:"Siva"`
	PersonaAllowHandoff bool   `envconfig:"PERSONA_ALLOW_HANDOFF" default:"true"`
	PersonaPersonalize  bool   `envconfig:"PERSONA_PERSONALIZE" default:"true"`
	PersonaIdentityLine string `envconfig:"PERSONA_IDENTITY_LINE"`

	// Hand-tuned thresholds preserved from the original deployment.
	IntentThreshold float64 `envconfig:"INTENT_THRESHOLD" default:"0.55"`
	IntentFallback  string  `envconfig:"INTENT_FALLBACK" default:"general"`
	RetrievalK      int     `envconfig:"RETRIEVAL_K" default:"5"`

	// Delivery retry schedule
	DeliveryMaxAttempts    int           `envconfig:"DELIVERY_MAX_ATTEMPTS" default:"3"`
	DeliveryInitialBackoff time.Duration `envconfig:"DELIVERY_INITIAL_BACKOFF" default:"500ms"`

	// Background embedding sweep
	EmbedBatchLimit   int           `envconfig:"EMBED_BATCH_LIMIT" default:"50"`
	EmbedPollInterval time.Duration `envconfig:"EMBED_POLL_INTERVAL" default:"10s"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("CONVERSO", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasWhatsApp() bool {
	return c.WAAccessToken != "" && c.WAPhoneNumberID != ""
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}
