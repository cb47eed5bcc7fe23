package telemetry

import (
	"os"
	"strconv"
	"strings"
)

// Config holds OpenTelemetry configuration loaded from environment variables.
type Config struct {
	// Enabled is loaded from OTEL_ENABLED.
	Enabled bool

	// ServiceName defaults to "dumpster".
	ServiceName    string
	ServiceVersion string

	// Endpoint is the OTLP collector endpoint. A http:// scheme implies an
	// insecure connection.
	Endpoint string

	// Protocol is grpc (default) or http/protobuf.
	Protocol string

	// Headers are sent with every export, e.g. Authorization.
	// Format: "key1=value1,key2=value2"
	Headers  map[string]string
	Insecure bool

	// Sampler is one of always_on, always_off, traceidratio and their
	// parentbased_ variants. Defaults to always_on.
	Sampler    string
	SamplerArg string

	// ResourceAttrs are added to the process resource.
	ResourceAttrs map[string]string
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() *Config {
	return &Config{
		Enabled:        parseBool(os.Getenv("OTEL_ENABLED")),
		ServiceName:    getEnvOrDefault("OTEL_SERVICE_NAME", "dumpster"),
		ServiceVersion: getEnvOrDefault("OTEL_SERVICE_VERSION", "unknown"),
		Endpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Protocol:       strings.ToLower(getEnvOrDefault("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
		Headers:        parseKeyValuePairs(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Insecure:       parseBool(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")),
		Sampler:        strings.ToLower(os.Getenv("OTEL_TRACES_SAMPLER")),
		SamplerArg:     os.Getenv("OTEL_TRACES_SAMPLER_ARG"),
		ResourceAttrs:  parseKeyValuePairs(os.Getenv("OTEL_RESOURCE_ATTRIBUTES")),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}

// parseKeyValuePairs parses "k1=v1,k2=v2". Values may contain '='.
func parseKeyValuePairs(s string) map[string]string {
	result := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		result[key] = strings.TrimSpace(value)
	}
	return result
}
