package observability

import (
	"context"
	"reflect"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	got := parseHeaders(" api-key = abc ,broken,=x,y=, tenant=t1")
	want := map[string]string{"api-key": "abc", "tenant": "t1"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("parseHeaders: want=%v got=%v", want, got)
	}
	if got := parseHeaders(""); got != nil {
		t.Fatalf("parseHeaders(empty): want=nil got=%v", got)
	}
}

func TestParseRatio(t *testing.T) {
	cases := map[string]float64{"": 1, "abc": 1, "0.25": 0.25, "-1": 0, "7": 1}
	for in, want := range cases {
		if got := parseRatio(in, 1); got != want {
			t.Fatalf("parseRatio(%q): want=%v got=%v", in, want, got)
		}
	}
}

func TestLoadTracingConfig(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("OTEL_SAMPLER_RATIO", "0.5")
	cfg := LoadTracingConfig(nil)
	if !cfg.Enabled || cfg.Endpoint != "collector:4318" || cfg.SampleRatio != 0.5 || cfg.ServiceName != "rankset" {
		t.Fatalf("LoadTracingConfig: got %+v", cfg)
	}
}

func TestInitTracingDisabledIsNoop(t *testing.T) {
	shutdown := InitTracing(context.Background(), nil, TracingConfig{})
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
