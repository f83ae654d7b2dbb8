package config

import (
	"errors"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
)

type Config struct {
	Port string

	DatabaseURL string

	StripeSecret        string
	StripeWebhookSecret string

	SentryDSN string

	AllowedOrigins []string

	SMTPHost string
	SMTPPort string
	SMTPUser string
	SMTPPass string

	// AdminReset routes the destructive delete-by-email endpoint.
	// Never enable in production.
	AdminReset bool
}

func New() (*Config, error) {
	var errs *multierror.Error

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		errs = multierror.Append(errs, errors.New("DATABASE_URL environment variable is required"))
	}

	webhookSecret := os.Getenv("STRIPE_WEBHOOK_SECRET")
	if webhookSecret == "" {
		errs = multierror.Append(errs, errors.New("STRIPE_WEBHOOK_SECRET environment variable is required"))
	}

	origins := []string{"https://quillnote.app"}
	if raw := os.Getenv("ALLOWED_ORIGINS"); raw != "" {
		origins = origins[:0]
		for _, origin := range strings.Split(raw, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				origins = append(origins, origin)
			}
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	return &Config{
		Port:                port,
		DatabaseURL:         dbURL,
		StripeSecret:        os.Getenv("STRIPE_SECRET"),
		StripeWebhookSecret: webhookSecret,
		SentryDSN:           os.Getenv("SENTRY_DSN"),
		AllowedOrigins:      origins,
		SMTPHost:            os.Getenv("SMTP_HOST"),
		SMTPPort:            os.Getenv("SMTP_PORT"),
		SMTPUser:            os.Getenv("SMTP_USER"),
		SMTPPass:            os.Getenv("SMTP_PASS"),
		AdminReset:          os.Getenv("ADMIN_RESET") == "true",
	}, nil
}
