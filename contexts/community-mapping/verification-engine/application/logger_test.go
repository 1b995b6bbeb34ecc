package application

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestScopedLoggerBindsModuleAndLayer(t *testing.T) {
	var buf bytes.Buffer
	logger := ScopedLogger(slog.New(slog.NewJSONHandler(&buf, nil)), LayerWorker)

	logger.Info("outbox relay batch complete", "event", "verification_outbox_batch_completed")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log record: %v", err)
	}
	if record["module"] != ModuleName || record["layer"] != LayerWorker {
		t.Fatalf("unexpected scope attributes: %v", record)
	}
	if record["event"] != "verification_outbox_batch_completed" {
		t.Fatalf("expected event attribute, got %v", record["event"])
	}
}

func TestScopedLoggerDefaultsWhenNil(t *testing.T) {
	if ScopedLogger(nil, LayerApplication) == nil {
		t.Fatal("expected a logger")
	}
}
