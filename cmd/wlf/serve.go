package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	askpost "github.com/jagroop-dev/wlf/handlers/ask/post"
	chatpost "github.com/jagroop-dev/wlf/handlers/chat/post"
	contextpost "github.com/jagroop-dev/wlf/handlers/context/post"
	"github.com/jagroop-dev/wlf/rag"
	"github.com/rs/cors"
)

type ServeCommand struct {
	PipelineFlags `embed:""`

	ListenAddr   string `help:"The address to listen on." env:"LISTEN_ADDR" default:"127.0.0.1:8000"`
	ImagesDir    string `help:"The directory of guide images served under /images/." env:"IMAGES_DIR" default:"Data/Images/"`
	ImageBaseURL string `help:"The URL prefix of image links in answers." env:"IMAGE_BASE_URL" default:""`
	ImageBucket  string `help:"A Cloud Storage bucket holding the guide images under Images/." env:"IMAGE_BUCKET" default:""`
	TLSCertFile  string `help:"The TLS certificate file." env:"TLS_CERT_FILE" default:""`
	TLSKeyFile   string `help:"The TLS key file." env:"TLS_KEY_FILE" default:""`
	LogLevel     string `help:"The log level to use." env:"LOG_LEVEL" default:"info"`
}

func createURL(baseURL string, pathSegments ...string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse baseURL: %w", err)
	}
	u.Path = strings.Join(pathSegments, "/")
	return u.String(), nil
}

// imageBaseURL picks where answers link images to: an explicit prefix, the
// public URL of a bucket, or this server.
func imageBaseURL(explicit, bucket, listenAddr string, useTLS bool) (string, error) {
	if explicit != "" {
		return rag.NormalizeBaseURL(explicit), nil
	}
	if bucket != "" {
		return createURL("https://storage.googleapis.com", "", bucket, "Images", "")
	}
	scheme := "http"
	if useTLS {
		scheme = "https"
	}
	if strings.HasPrefix(listenAddr, ":") {
		listenAddr = "localhost" + listenAddr
	}
	return createURL(scheme+"://"+listenAddr, "", "images", "")
}

func (c ServeCommand) Run(ctx context.Context) (err error) {
	log := getLogger(c.LogLevel)
	useTLS := c.TLSCertFile != "" && c.TLSKeyFile != ""

	baseURL, err := imageBaseURL(c.ImageBaseURL, c.ImageBucket, c.ListenAddr, useTLS)
	if err != nil {
		return fmt.Errorf("invalid image base URL: %w", err)
	}
	log.Info("linking images", slog.String("baseURL", baseURL))

	log.Info("creating pipeline")
	pipeline, err := c.buildPipeline(ctx, log, rag.TextGuidelines, baseURL)
	if pipeline, err = orUnavailable(log, pipeline, err); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("POST /ask", askpost.New(log, pipeline))
	mux.Handle("POST /context", contextpost.New(log, pipeline))
	mux.Handle("POST /chat", chatpost.New(log, pipeline))
	mux.Handle("GET /images/", http.StripPrefix("/images/", http.FileServer(http.Dir(c.ImagesDir))))
	withCORSMux := cors.AllowAll().Handler(mux)

	log.Info("Listening", slog.String("addr", c.ListenAddr))
	s := &http.Server{
		Addr:    c.ListenAddr,
		Handler: withCORSMux,
	}
	if useTLS {
		log.Info("Enabling TLS mode")
		var cert tls.Certificate
		cert, err = tls.LoadX509KeyPair(c.TLSCertFile, c.TLSKeyFile)
		if err != nil {
			return fmt.Errorf("failed to load cert: %w", err)
		}
		s.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
		}
	}

	errs := make(chan error, 1)
	go func() {
		if useTLS {
			errs <- s.ListenAndServeTLS(c.TLSCertFile, c.TLSKeyFile)
			return
		}
		errs <- s.ListenAndServe()
	}()
	select {
	case err = <-errs:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.RequestTimeout+5*time.Second)
	defer cancel()
	if err = s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	if err = <-errs; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
