package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Port        string

	DBHost     string
	DBPort     string
	DBUsername string
	DBPassword string
	DBName     string
	DBSSLMode  string

	RedisAddr  string
	EventQueue string

	SMTPAddr     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	WhatsAppToken   string
	WhatsAppPhoneID string
	WhatsAppAPIBase string

	// WhatsAppOwner is the email of the user owning the business WhatsApp
	// number. Inbound WhatsApp messages route to this account.
	WhatsAppOwner string
}

func NewConfig() (*Config, error) {
	env := os.Getenv("BEYA_ENV")
	if env == "" {
		env = "development"
	}

	if env == "development" {
		if err := godotenv.Load(); err != nil {
			fmt.Println("Warning: .env file not found, using environment variables")
		}
	}

	config := &Config{
		Environment: env,
		Port:        getEnvOrDefault("PORT", "8080"),

		DBHost:     getEnvOrDefault("BEYA_DB_HOST", "localhost"),
		DBPort:     getEnvOrDefault("BEYA_DB_PORT", "5432"),
		DBUsername: getEnvOrDefault("BEYA_DB_USER", "beya"),
		DBPassword: os.Getenv("BEYA_DB_PASSWORD"),
		DBName:     getEnvOrDefault("BEYA_DB_NAME", "beya_inbox"),
		DBSSLMode:  getEnvOrDefault("BEYA_DB_SSLMODE", "disable"),

		RedisAddr:  getEnvOrDefault("BEYA_REDIS_ADDR", "localhost:6379"),
		EventQueue: getEnvOrDefault("BEYA_EVENT_QUEUE", "inbox-events"),

		SMTPAddr:     os.Getenv("BEYA_SMTP_ADDR"),
		SMTPUsername: os.Getenv("BEYA_SMTP_USER"),
		SMTPPassword: os.Getenv("BEYA_SMTP_PASSWORD"),
		SMTPFrom:     os.Getenv("BEYA_SMTP_FROM"),

		WhatsAppToken:   os.Getenv("BEYA_WHATSAPP_TOKEN"),
		WhatsAppPhoneID: os.Getenv("BEYA_WHATSAPP_PHONE_ID"),
		WhatsAppAPIBase: getEnvOrDefault("BEYA_WHATSAPP_API_BASE", "https://graph.facebook.com/v19.0"),
		WhatsAppOwner:   os.Getenv("BEYA_WHATSAPP_OWNER"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.DBPassword == "" {
		return fmt.Errorf("BEYA_DB_PASSWORD is required")
	}

	if c.SMTPAddr != "" && c.SMTPFrom == "" {
		return fmt.Errorf("BEYA_SMTP_FROM is required when BEYA_SMTP_ADDR is set")
	}

	if c.WhatsAppToken != "" && c.WhatsAppPhoneID == "" {
		return fmt.Errorf("BEYA_WHATSAPP_PHONE_ID is required when BEYA_WHATSAPP_TOKEN is set")
	}

	return nil
}

func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUsername,
		c.DBPassword,
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBSSLMode,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
