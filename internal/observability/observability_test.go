package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func noEnv(string) string { return "" }

func restoreDefault(t *testing.T) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
}

func TestInstrument_Text(t *testing.T) {
	restoreDefault(t)
	var buf bytes.Buffer

	shutdown, err := Instrument(slog.LevelInfo, FormatText, WithWriter(&buf), WithGetenv(noEnv))
	require.NoError(t, err)
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	slog.Debug("hidden")
	slog.Info("visible", "page", 3)

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=visible page=3")
}

func TestInstrument_JSON(t *testing.T) {
	restoreDefault(t)
	var buf bytes.Buffer

	shutdown, err := Instrument(slog.LevelDebug, FormatJSON, WithWriter(&buf), WithGetenv(noEnv))
	require.NoError(t, err)
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	slog.Debug("fetching", "document", "doc1")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "fetching", record["msg"])
	assert.Equal(t, "doc1", record["document"])
	assert.Equal(t, "DEBUG", record["level"])
}

func TestInstrument_OTel(t *testing.T) {
	restoreDefault(t)
	var buf bytes.Buffer

	shutdown, err := Instrument(slog.LevelWarn, FormatOTel, WithWriter(&buf), WithGetenv(noEnv))
	require.NoError(t, err)

	slog.Info("below threshold")
	slog.Warn("token read failed", "backend", "file")
	require.NoError(t, shutdown(context.Background()))

	assert.NotContains(t, buf.String(), "below threshold")
	assert.Contains(t, buf.String(), "token read failed")
	assert.Contains(t, buf.String(), ServiceName)
}

func TestInstrument_UnsupportedFormat(t *testing.T) {
	restoreDefault(t)
	_, err := Instrument(slog.LevelInfo, "xml", WithGetenv(noEnv))
	require.Error(t, err)
}

func TestInstrument_InstallsTraceContextPropagator(t *testing.T) {
	restoreDefault(t)
	shutdown, err := Instrument(slog.LevelInfo, FormatText, WithWriter(&bytes.Buffer{}), WithGetenv(noEnv))
	require.NoError(t, err)
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	assert.Contains(t, otel.GetTextMapPropagator().Fields(), "traceparent")
}

func TestInstrument_ExportsOverOTLPHTTP(t *testing.T) {
	restoreDefault(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/logs" {
			hits.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	env := map[string]string{
		"OTEL_EXPORTER_OTLP_ENDPOINT": srv.URL,
		"OTEL_EXPORTER_OTLP_PROTOCOL": "http/protobuf",
	}
	for k, v := range env {
		t.Setenv(k, v)
	}

	var buf bytes.Buffer
	shutdown, err := Instrument(slog.LevelInfo, FormatText, WithWriter(&buf), WithGetenv(func(k string) string { return env[k] }))
	require.NoError(t, err)

	slog.With("request_id", "r1").WithGroup("http").Info("exported", "status", 200)
	slog.Debug("hidden")
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), "msg=exported request_id=r1 http.status=200")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Positive(t, hits.Load())
}

func TestInstrument_UnsupportedOTLPProtocol(t *testing.T) {
	restoreDefault(t)
	env := map[string]string{
		"OTEL_EXPORTER_OTLP_ENDPOINT": "http://127.0.0.1:4318",
		"OTEL_EXPORTER_OTLP_PROTOCOL": "carrier-pigeon",
	}
	_, err := Instrument(slog.LevelInfo, FormatText, WithGetenv(func(k string) string { return env[k] }))
	require.Error(t, err)
}
