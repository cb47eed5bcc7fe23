package telemetry

import (
	"testing"
)

var otelEnv = []string{
	"OTEL_ENABLED",
	"OTEL_SERVICE_NAME",
	"OTEL_SERVICE_VERSION",
	"OTEL_EXPORTER_OTLP_ENDPOINT",
	"OTEL_EXPORTER_OTLP_PROTOCOL",
	"OTEL_EXPORTER_OTLP_HEADERS",
	"OTEL_EXPORTER_OTLP_INSECURE",
	"OTEL_TRACES_SAMPLER",
	"OTEL_TRACES_SAMPLER_ARG",
	"OTEL_RESOURCE_ATTRIBUTES",
}

// clearEnv blanks every OTEL_ variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range otelEnv {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		clearEnv(t)
		cfg := LoadFromEnv()

		if cfg.Enabled {
			t.Error("Expected Enabled to be false by default")
		}
		if cfg.ServiceName != "dumpster" {
			t.Errorf("Expected ServiceName to be 'dumpster', got '%s'", cfg.ServiceName)
		}
		if cfg.ServiceVersion != "unknown" {
			t.Errorf("Expected ServiceVersion to be 'unknown', got '%s'", cfg.ServiceVersion)
		}
		if cfg.Protocol != "grpc" {
			t.Errorf("Expected Protocol to be 'grpc', got '%s'", cfg.Protocol)
		}
	})

	t.Run("enabled_case_insensitive", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OTEL_ENABLED", "TRUE")
		if !LoadFromEnv().Enabled {
			t.Error("Expected Enabled to be true for 'TRUE'")
		}
	})

	t.Run("custom_values", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OTEL_SERVICE_NAME", "stress")
		t.Setenv("OTEL_SERVICE_VERSION", "1.0.0")
		t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "https://collector.example.com:4317")
		t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "HTTP/protobuf")
		t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")
		t.Setenv("OTEL_TRACES_SAMPLER", "TraceIDRatio")

		cfg := LoadFromEnv()
		if cfg.ServiceName != "stress" {
			t.Errorf("Expected ServiceName 'stress', got '%s'", cfg.ServiceName)
		}
		if cfg.ServiceVersion != "1.0.0" {
			t.Errorf("Expected ServiceVersion '1.0.0', got '%s'", cfg.ServiceVersion)
		}
		if cfg.Endpoint != "https://collector.example.com:4317" {
			t.Errorf("Unexpected Endpoint '%s'", cfg.Endpoint)
		}
		if cfg.Protocol != "http/protobuf" {
			t.Errorf("Expected Protocol 'http/protobuf', got '%s'", cfg.Protocol)
		}
		if !cfg.Insecure {
			t.Error("Expected Insecure to be true")
		}
		if cfg.Sampler != "traceidratio" {
			t.Errorf("Expected Sampler 'traceidratio', got '%s'", cfg.Sampler)
		}
	})

	t.Run("headers_and_resource_attributes", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "Authorization=Bearer token123,X-Custom=value")
		t.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment=ci")

		cfg := LoadFromEnv()
		if len(cfg.Headers) != 2 || cfg.Headers["Authorization"] != "Bearer token123" {
			t.Errorf("Unexpected headers %v", cfg.Headers)
		}
		if cfg.ResourceAttrs["deployment.environment"] != "ci" {
			t.Errorf("Unexpected resource attributes %v", cfg.ResourceAttrs)
		}
	})
}

func TestParseKeyValuePairs(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected map[string]string
	}{
		{"empty", "", map[string]string{}},
		{"single_pair", "key=value", map[string]string{"key": "value"}},
		{"with_spaces", " key1 = value1 , key2 = value2 ", map[string]string{"key1": "value1", "key2": "value2"}},
		{"value_with_equals", "Authorization=Bearer token=abc", map[string]string{"Authorization": "Bearer token=abc"}},
		{"empty_value", "key=", map[string]string{"key": ""}},
		{"mixed_valid_invalid", "valid=value,invalid,=nokey,another=test", map[string]string{"valid": "value", "another": "test"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseKeyValuePairs(tt.input)
			if len(result) != len(tt.expected) {
				t.Errorf("Expected %d pairs, got %d", len(tt.expected), len(result))
			}
			for k, v := range tt.expected {
				if result[k] != v {
					t.Errorf("Expected %s='%s', got '%s'", k, v, result[k])
				}
			}
		})
	}
}

func TestParseRatio(t *testing.T) {
	tests := map[string]float64{
		"":     1,
		"abc":  1,
		"0.25": 0.25,
		"-1":   0,
		"7":    1,
	}
	for in, want := range tests {
		if got := parseRatio(in); got != want {
			t.Errorf("parseRatio(%q) = %g, want %g", in, got, want)
		}
	}
}

func TestSplitEndpoint(t *testing.T) {
	host, plain := splitEndpoint("http://localhost:4318")
	if host != "localhost:4318" || !plain {
		t.Errorf("Unexpected split %q %v", host, plain)
	}
	host, plain = splitEndpoint("https://collector:4317")
	if host != "collector:4317" || plain {
		t.Errorf("Unexpected split %q %v", host, plain)
	}
}
