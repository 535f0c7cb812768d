package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestLogger_JSONCarriesChainedFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	log.WithRideID("ride-1").WithTxHash("0xabc").WithError(errors.New("boom")).Warn("confirmation failed")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}

	if entry["ride_id"] != "ride-1" {
		t.Errorf("expected ride_id ride-1, got %v", entry["ride_id"])
	}
	if entry["tx_hash"] != "0xabc" {
		t.Errorf("expected tx_hash 0xabc, got %v", entry["tx_hash"])
	}
	if entry["error"] != "boom" {
		t.Errorf("expected error boom, got %v", entry["error"])
	}
	if entry["level"] != "warning" {
		t.Errorf("expected level warning, got %v", entry["level"])
	}
}

func TestLogger_WithFieldDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := New(Config{Level: "info", Format: "json", Output: &buf})

	_ = parent.WithField("child", true)
	parent.Info("parent")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := entry["child"]; ok {
		t.Error("child field leaked into parent logger")
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "error", Format: "text", Output: &buf})

	log.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("expected info to be filtered, got %q", buf.String())
	}
}
