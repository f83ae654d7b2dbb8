package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

var log = zerolog.New(os.Stderr).With().Timestamp().Logger()

func SetLevel(level zerolog.Level) {
	log = log.Level(level)
}

// SetOutput redirects log output, used by tests to capture entries.
func SetOutput(w io.Writer) {
	log = zerolog.New(w).With().Timestamp().Logger()
}

func Debug(message string, fields ...map[string]interface{}) {
	log.Debug().Fields(sanitizeFields(mergeFields(fields...))).Msg(message)
}

func Info(message string, fields ...map[string]interface{}) {
	log.Info().Fields(sanitizeFields(mergeFields(fields...))).Msg(message)
}

func Warn(message string, fields ...map[string]interface{}) {
	log.Warn().Fields(sanitizeFields(mergeFields(fields...))).Msg(message)
}

func Error(message string, fields ...map[string]interface{}) {
	log.Error().Fields(sanitizeFields(mergeFields(fields...))).Msg(message)
}

func mergeFields(fieldMaps ...map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})
	for _, fields := range fieldMaps {
		for k, v := range fields {
			result[k] = v
		}
	}
	return result
}

var sensitiveKeys = []string{
	"key", "token", "secret", "password", "api_key",
	"webhook_secret", "signature", "authorization", "auth",
}

// sanitizeFields redacts credential-shaped values before they hit the log
// stream. License keys count: they are bearer secrets.
func sanitizeFields(fields map[string]interface{}) map[string]interface{} {
	if len(fields) == 0 {
		return nil
	}

	sanitized := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		keyLower := strings.ToLower(k)

		isSensitive := false
		for _, sensitive := range sensitiveKeys {
			if strings.Contains(keyLower, sensitive) {
				isSensitive = true
				break
			}
		}

		if !isSensitive {
			sanitized[k] = v
			continue
		}

		if str, ok := v.(string); ok && len(str) > 8 {
			sanitized[k] = str[:3] + "..." + str[len(str)-3:]
		} else {
			sanitized[k] = "[REDACTED]"
		}
	}

	return sanitized
}

func init() {
	// Keep test output quiet.
	if os.Getenv("GO_ENV") == "test" || strings.Contains(os.Args[0], ".test") {
		SetLevel(zerolog.WarnLevel)
		return
	}

	switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
	case "DEBUG":
		SetLevel(zerolog.DebugLevel)
	case "WARN":
		SetLevel(zerolog.WarnLevel)
	case "ERROR":
		SetLevel(zerolog.ErrorLevel)
	default:
		SetLevel(zerolog.InfoLevel)
	}
}
