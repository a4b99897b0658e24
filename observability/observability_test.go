package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNopTracer(t *testing.T) {
	tracer := NopTracer()
	ctx := context.Background()
	ctx2, span := tracer.StartSpan(ctx, "test")
	if ctx2 != ctx {
		t.Fatalf("nop tracer should return same context")
	}
	span.SetTag("key", "value")
	span.SetError(nil)
	span.Finish()
}

func TestNewLoggerWritesJSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "json", "info").With(String("doc", "rx-1"))
	logger.Info("verified", Int("medications", 2), Float64("confidence", 0.6), Error("error", errors.New("boom")))

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["msg"] != "verified" || entry["doc"] != "rx-1" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry["medications"].(float64) != 2 || entry["confidence"].(float64) != 0.6 {
		t.Fatalf("unexpected numeric fields: %+v", entry)
	}
	if entry["error"] != "boom" {
		t.Fatalf("expected error text, got %+v", entry["error"])
	}
}

func TestNewLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "text", "warn")
	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestLogTracerReportsFailedSpans(t *testing.T) {
	var buf bytes.Buffer
	tracer := LogTracer(NewLogger(&buf, "json", "debug"))
	_, span := tracer.StartSpan(context.Background(), "ocr")
	span.SetTag("engine", "fake")
	span.SetError(errors.New("engine down"))
	span.Finish()
	out := buf.String()
	if !strings.Contains(out, `"span":"ocr"`) || !strings.Contains(out, "engine down") || !strings.Contains(out, `"engine":"fake"`) {
		t.Fatalf("unexpected span log: %s", out)
	}
}
