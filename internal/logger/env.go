package logger

import (
	"os"
	"strings"
)

// InitFromEnv configures logging from LOG_LEVEL, LOG_FORMAT, LOG_SERVICE,
// LOG_ENV and LOG_OUTPUT.
func InitFromEnv() {
	Init(Config{
		Level:   envOr("LOG_LEVEL", "info"),
		Format:  envOr("LOG_FORMAT", "json"),
		Service: os.Getenv("LOG_SERVICE"),
		Env:     envOr("LOG_ENV", envOr("ENV", os.Getenv("APP_ENV"))),
		Version: os.Getenv("VERSION"),
		Output:  envOr("LOG_OUTPUT", "stdout"),
	})
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
