package observability

import (
	"os"
	"strconv"
	"strings"

	"github.com/scalehq/entitlements/internal/config"
)

// Config holds observability settings. Base values come from the app
// config; OTEL_*/LOG_* environment variables override them so deploys
// can tune telemetry without touching the service config.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	out := Config{
		ServiceName:          strings.TrimSpace(cfg.AppName),
		Environment:          strings.TrimSpace(envOr("DEPLOYMENT_ENV", cfg.Environment)),
		Version:              strings.TrimSpace(envOr("SERVICE_VERSION", cfg.AppVersion)),
		LogLevel:             strings.ToLower(strings.TrimSpace(envOr("LOG_LEVEL", "info"))),
		LogFormat:            strings.ToLower(strings.TrimSpace(envOr("LOG_FORMAT", "json"))),
		OtelEnabled:          true,
		OtelExporterEndpoint: strings.TrimSpace(envOr("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)),
		OtelExporterProtocol: strings.ToLower(strings.TrimSpace(envOr("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
		OtelSamplingRatio:    0.1,
	}
	if out.ServiceName == "" {
		out.ServiceName = "entitlements"
	}
	if raw := strings.TrimSpace(os.Getenv("OTEL_ENABLED")); raw != "" {
		if parsed, err := strconv.ParseBool(raw); err == nil {
			out.OtelEnabled = parsed
		}
	}
	if raw := strings.TrimSpace(os.Getenv("OTEL_SAMPLING_RATIO")); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil {
			out.OtelSamplingRatio = parsed
		}
	}
	return out
}

// Debug reports whether the deployment should log verbosely and skip
// sampling: an explicit debug level, or any dev-ish environment name.
func (c Config) Debug() bool {
	if strings.ToLower(strings.TrimSpace(c.LogLevel)) == "debug" {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func envOr(key, def string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return def
}
