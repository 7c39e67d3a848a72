package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

type CLI struct {
	Serve   ServeCommand   `cmd:"serve" help:"Start the WLF HTTP server."`
	Chat    ChatCommand    `cmd:"chat" help:"Chat with the guide in the terminal."`
	Index   IndexCommand   `cmd:"index" help:"Build a text or image index from guide files."`
	Ask     AskCommand     `cmd:"ask" help:"Ask a running WLF server a question."`
	Context ContextCommand `cmd:"context" help:"Get the guide passages retrieved for a question."`
	Version VersionCommand `cmd:"version" help:"Print the version of WLF."`
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		getLogger("error").Error("failed to load .env", slog.Any("error", err))
		os.Exit(1)
	}
	var cli CLI
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	kctx := kong.Parse(&cli, kong.UsageOnError(), kong.BindTo(ctx, (*context.Context)(nil)))
	if err := kctx.Run(); err != nil {
		log := getLogger("error")
		log.Error("error", slog.Any("error", err))
		stop()
		os.Exit(1)
	}
}

func getLogger(level string) *slog.Logger {
	ll := slog.LevelInfo
	switch level {
	case "debug":
		ll = slog.LevelDebug
	case "info":
		ll = slog.LevelInfo
	case "warn":
		ll = slog.LevelWarn
	case "error":
		ll = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: ll,
	}))
}
