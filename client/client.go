package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"

	"github.com/a-h/jsonapi"
	"github.com/jagroop-dev/wlf/models"
)

func New(baseURL string) Client {
	return Client{
		baseURL: baseURL,
	}
}

type Client struct {
	baseURL string
}

func (c Client) AskPost(ctx context.Context, req models.AskPostRequest) (resp models.AskPostResponse, err error) {
	url, err := jsonapi.URL(c.baseURL).Path("ask").String()
	if err != nil {
		return resp, err
	}
	return jsonapi.Post[models.AskPostRequest, models.AskPostResponse](ctx, url, req)
}

func (c Client) ContextPost(ctx context.Context, req models.ContextPostRequest) (resp models.ContextPostResponse, err error) {
	url, err := jsonapi.URL(c.baseURL).Path("context").String()
	if err != nil {
		return resp, err
	}
	return jsonapi.Post[models.ContextPostRequest, models.ContextPostResponse](ctx, url, req)
}

// ChatPost streams the answer to f and returns the URLs of the images
// attached to the prompt, followed by those referenced in the answer.
func (c Client) ChatPost(ctx context.Context, request models.ChatPostRequest, f func(ctx context.Context, chunk []byte) error) (images []string, err error) {
	url, err := jsonapi.URL(c.baseURL).Path("chat").String()
	if err != nil {
		return nil, err
	}
	return c.postStream(ctx, url, request, f)
}

func (c Client) postStream(ctx context.Context, url string, req any, f func(ctx context.Context, chunk []byte) error) (images []string, err error) {
	buf, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	res, err := jsonapi.Raw(httpReq, jsonapi.WithRequestHeader("Content-Type", "application/json"))
	if err != nil {
		return nil, fmt.Errorf("failed to perform HTTP request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		body, _ := io.ReadAll(res.Body)
		return nil, jsonapi.InvalidStatusError{
			Status: res.StatusCode,
			Body:   string(body),
		}
	}
	images = res.Header.Values(models.ChatImageHeader)
	chunk := make([]byte, 1024)
	for {
		n, err := res.Body.Read(chunk)
		if n > 0 {
			if err := f(ctx, chunk[:n]); err != nil {
				return images, fmt.Errorf("failed to process chunk: %w", err)
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return images, fmt.Errorf("failed to read response body: %w", err)
		}
	}
	// Trailers are only populated once the body has been read to EOF.
	for _, u := range res.Trailer.Values(models.ChatAnswerImageTrailer) {
		if !slices.Contains(images, u) {
			images = append(images, u)
		}
	}
	return images, nil
}
