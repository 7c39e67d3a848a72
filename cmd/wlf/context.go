package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/jagroop-dev/wlf/client"
	"github.com/jagroop-dev/wlf/models"
)

type ContextCommand struct {
	WLFServerURL string `help:"The URL of the WLF server." env:"WLF_SERVER_URL" default:"http://127.0.0.1:8000"`
	Text         string `help:"The question to retrieve passages for." required:""`
	Pretty       bool   `help:"Pretty print the JSON output." default:"true"`
	LogLevel     string `help:"The log level to use." env:"LOG_LEVEL" default:"info"`
}

func (c ContextCommand) Run(ctx context.Context) (err error) {
	log := getLogger(c.LogLevel)
	wsc := client.New(c.WLFServerURL)
	log.Debug("retrieving context", slog.String("server", c.WLFServerURL))
	resp, err := wsc.ContextPost(ctx, models.ContextPostRequest{
		Text: c.Text,
	})
	if err != nil {
		return fmt.Errorf("failed to get context: %w", err)
	}
	log.Debug("retrieved context", slog.Int("results", len(resp.Results)))

	enc := json.NewEncoder(os.Stdout)
	if c.Pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(resp)
}
