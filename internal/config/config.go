package config

import "time"

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	BaseURL     string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	Database Database `envPrefix:"DATABASE_"`
	Redis    Redis    `envPrefix:"REDIS_"`
	NSQ      NSQ      `envPrefix:"NSQ_"`
	Auth     Auth
	Store    Store   `envPrefix:"STORE_"`
	Webhook  Webhook `envPrefix:"WEBHOOK_"`

	Rates   Rates   `envPrefix:"RATES_"`
	Paypal  Paypal  `envPrefix:"PAYPAL_"`
	Bitcoin Bitcoin `envPrefix:"BITCOIN_"`
	Monero  Monero  `envPrefix:"MONERO_"`
}

type Database struct {
	Driver string `env:"DRIVER" envDefault:"sqlite"` // sqlite | mysql
	URL    string `env:"URL" envDefault:"storefront.db"`
}

// Redis is optional; without an address quotes are cached per instance.
type Redis struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

// NSQ is optional; without an address notifications are only logged.
type NSQ struct {
	Address string `env:"ADDRESS"`
	Topic   string `env:"TOPIC" envDefault:"payment-notifications"`
}

type Auth struct {
	JWTSecret string `env:"JWT_SECRET"`
}

type Store struct {
	Currency string `env:"CURRENCY" envDefault:"GBP"`
}

type Webhook struct {
	RateLimit float64       `env:"RATE_LIMIT" envDefault:"20"`
	Burst     int           `env:"BURST" envDefault:"40"`
	ExpiresIn time.Duration `env:"LIMITER_TTL" envDefault:"3m"`
}

type Rates struct {
	BaseURL  string        `env:"BASE_URL" envDefault:"https://api.coingecko.com/api/v3"`
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"5m"`
	Validity time.Duration `env:"VALIDITY" envDefault:"15m"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

type Paypal struct {
	BaseApiURL     string        `env:"BASE_API_URL" envDefault:"https://api-m.sandbox.paypal.com"`
	ClientID       string        `env:"CLIENT_ID"`
	ClientSecret   string        `env:"CLIENT_SECRET"`
	WebhookID      string        `env:"WEBHOOK_ID"`
	ReturnURL      string        `env:"RETURN_URL"`
	CancelURL      string        `env:"CANCEL_URL"`
	CertHostSuffix string        `env:"CERT_HOST_SUFFIX" envDefault:".paypal.com"`
	PaymentWindow  time.Duration `env:"PAYMENT_WINDOW" envDefault:"3h"`
	Timeout        time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

type Bitcoin struct {
	Network               string        `env:"NETWORK" envDefault:"mainnet"` // mainnet | testnet | regtest
	AccountXPub           string        `env:"ACCOUNT_XPUB"`
	RequiredConfirmations int           `env:"REQUIRED_CONFIRMATIONS" envDefault:"2"`
	PaymentWindow         time.Duration `env:"PAYMENT_WINDOW" envDefault:"1h"`
	WebhookSecret         string        `env:"WEBHOOK_SECRET"`
	SignatureHeader       string        `env:"SIGNATURE_HEADER" envDefault:"X-Webhook-Signature"`
}

type Monero struct {
	GatewayURL            string        `env:"GATEWAY_URL" envDefault:"http://localhost:5000"`
	APIKey                string        `env:"API_KEY"`
	RequiredConfirmations int           `env:"REQUIRED_CONFIRMATIONS" envDefault:"10"`
	PaymentWindow         time.Duration `env:"PAYMENT_WINDOW" envDefault:"24h"`
	WebhookSecret         string        `env:"WEBHOOK_SECRET"`
	SignatureHeader       string        `env:"SIGNATURE_HEADER" envDefault:"X-Monero-Signature"`
	Timeout               time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

func (e Environment) IsProduction() bool {
	return e.Name == "production"
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}
