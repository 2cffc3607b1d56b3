package config

import "github.com/kelseyhightower/envconfig"

type RelayConfig struct {
	Port      string `envconfig:"PORT" default:"8080"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// Store backend: postgres when set, in-memory otherwise.
	DBDSN string `envconfig:"DB_DSN"`

	// Twilio
	TwilioAccountSID string  `envconfig:"TWILIO_ACCOUNT_SID" required:"true"`
	TwilioAuthToken  string  `envconfig:"TWILIO_AUTH_TOKEN" required:"true"`
	TwilioFromNumber string  `envconfig:"TWILIO_FROM_NUMBER" required:"true"`
	TwilioBaseURL    string  `envconfig:"TWILIO_BASE_URL" default:"https://api.twilio.com"`
	TwilioRPSPerPod  float64 `envconfig:"TWILIO_RPS_PER_POD" default:"5"`
	TwilioBurst      int     `envconfig:"TWILIO_BURST" default:"10"`

	// Moderation engine
	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY" required:"true"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com"`
	OpenAIModel   string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`

	// Webhook signature verification; must match the EXACT URL configured in
	// Twilio. Verification is skipped when empty (local / mock-carrier runs).
	PublicWebhookURL string `envconfig:"PUBLIC_WEBHOOK_URL"`

	// AWS / SQS outcome events (optional)
	AWSRegion          string `envconfig:"AWS_REGION"`
	SQSQueueURL        string `envconfig:"SQS_QUEUE_URL"`
	LocalstackEndpoint string `envconfig:"LOCALSTACK_ENDPOINT"`
}

func LoadRelay() RelayConfig {
	var cfg RelayConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}
