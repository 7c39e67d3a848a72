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

type AskCommand struct {
	WLFServerURL string `help:"The URL of the WLF server." env:"WLF_SERVER_URL" default:"http://127.0.0.1:8000"`
	Text         string `arg:"" help:"The question to ask."`
	Stream       bool   `help:"Stream the answer from /chat instead of waiting for /ask." default:"false"`
	JSON         bool   `help:"Print the JSON response." default:"false"`
	LogLevel     string `help:"The log level to use." env:"LOG_LEVEL" default:"info"`
}

func (c AskCommand) Run(ctx context.Context) (err error) {
	log := getLogger(c.LogLevel)
	wsc := client.New(c.WLFServerURL)

	if c.Stream {
		f := func(ctx context.Context, chunk []byte) error {
			_, err := os.Stdout.Write(chunk)
			return err
		}
		images, err := wsc.ChatPost(ctx, models.ChatPostRequest{Text: c.Text}, f)
		if err != nil {
			return fmt.Errorf("failed to chat: %w", err)
		}
		fmt.Println()
		for _, u := range images {
			fmt.Println(u)
		}
		log.Debug("streamed answer", slog.Int("images", len(images)))
		return nil
	}

	resp, err := wsc.AskPost(ctx, models.AskPostRequest{Text: c.Text})
	if err != nil {
		return fmt.Errorf("failed to ask: %w", err)
	}
	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	fmt.Println(resp.Answer)
	for _, u := range resp.Images {
		fmt.Println(u)
	}
	return nil
}
