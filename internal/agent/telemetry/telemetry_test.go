package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/ava/config"
	"github.com/mohammad-safakhou/ava/internal/agent/middleware"
)

func scrape(t *testing.T, tele *Telemetry) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	tele.Handler().ServeHTTP(rec, req)
	return rec.Body.String()
}

func TestTelemetryRecordsAndExposes(t *testing.T) {
	tele := New(config.TelemetryConfig{Enabled: true})

	tele.RecordTurn(250*time.Millisecond, true)
	tele.RecordTurn(time.Second, false)
	tele.RecordToolCall("get_weather_forecast")
	tele.RecordEvents([]middleware.Event{
		{Middleware: "retry_model", Status: middleware.StatusRetrying},
		{Middleware: "retry_model", Status: middleware.StatusRecovered},
		{Middleware: "hallucination_guardrail", Status: middleware.StatusPassed},
	})

	body := scrape(t, tele)
	for _, want := range []string{
		`ava_turns_total{outcome="success"} 1`,
		`ava_turns_total{outcome="failure"} 1`,
		`ava_tool_calls_total{tool="get_weather_forecast"} 1`,
		`ava_middleware_events_total{middleware="retry_model",status="retrying"} 1`,
		`ava_middleware_events_total{middleware="hallucination_guardrail",status="passed"} 1`,
		`ava_turn_duration_seconds_count 2`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q\n%s", want, body)
		}
	}
}

func TestTelemetryDisabledIsNoop(t *testing.T) {
	tele := New(config.TelemetryConfig{Enabled: false})
	tele.RecordTurn(time.Second, true)
	tele.RecordToolCall("get_weather_forecast")
	tele.RecordEvents([]middleware.Event{{Middleware: "retry_model", Status: middleware.StatusFailed}})

	if body := scrape(t, tele); strings.Contains(body, "ava_") {
		t.Fatalf("disabled telemetry must expose nothing, got\n%s", body)
	}
}

func TestTelemetryNilReceiverSafe(t *testing.T) {
	var tele *Telemetry
	tele.RecordTurn(time.Second, true)
	tele.RecordToolCall("x")
	tele.RecordEvents(nil)
}
