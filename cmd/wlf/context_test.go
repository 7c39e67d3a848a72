package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jagroop-dev/wlf/models"
)

func TestGetLogger(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		level    string
		enabled  slog.Level
		disabled slog.Level
	}{
		{level: "debug", enabled: slog.LevelDebug, disabled: slog.LevelDebug - 1},
		{level: "info", enabled: slog.LevelInfo, disabled: slog.LevelDebug},
		{level: "warn", enabled: slog.LevelWarn, disabled: slog.LevelInfo},
		{level: "error", enabled: slog.LevelError, disabled: slog.LevelWarn},
		{level: "unknown", enabled: slog.LevelInfo, disabled: slog.LevelDebug},
	}
	for _, tt := range tests {
		log := getLogger(tt.level)
		if !log.Enabled(ctx, tt.enabled) {
			t.Errorf("%s: expected %v to be enabled", tt.level, tt.enabled)
		}
		if log.Enabled(ctx, tt.disabled) {
			t.Errorf("%s: expected %v to be disabled", tt.level, tt.disabled)
		}
	}
}

func TestContextCommand(t *testing.T) {
	var requested string
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req models.ContextPostRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		requested = req.Text
		json.NewEncoder(w).Encode(models.ContextPostResponse{
			Results: []models.ContextDocument{{Text: "The safe code is 30-23-04.", Score: 0.9, Source: "safes.md"}},
		})
	}))
	defer s.Close()

	c := ContextCommand{WLFServerURL: s.URL, Text: "safe code", LogLevel: "debug"}
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if requested != "safe code" {
		t.Errorf("expected the question to be sent, got %q", requested)
	}
}
