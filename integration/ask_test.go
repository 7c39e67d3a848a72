package integration

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"

	"github.com/jagroop-dev/wlf/client"
	"github.com/jagroop-dev/wlf/models"
)

func serverURL() string {
	if u := os.Getenv("WLF_SERVER_URL"); u != "" {
		return u
	}
	return "http://127.0.0.1:8000"
}

func TestAskPost(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	c := client.New(serverURL())
	resp, err := c.AskPost(context.Background(), models.AskPostRequest{
		Text: "Tell me about the pistol Ellie uses",
	})
	if err != nil {
		t.Fatalf("failed to ask: %v", err)
	}
	if resp.Answer == "" {
		t.Error("expected an answer")
	}
	if strings.Contains(strings.ToLower(resp.Answer), "image:") {
		t.Errorf("image marker left in answer %q", resp.Answer)
	}
	for _, u := range resp.Images {
		if !strings.HasPrefix(u, "http") {
			t.Errorf("unexpected image URL %q", u)
		}
	}
}

func TestContextPost(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	c := client.New(serverURL())
	resp, err := c.ContextPost(context.Background(), models.ContextPostRequest{
		Text: "pharmacy safe code",
	})
	if err != nil {
		t.Fatalf("failed to get context: %v", err)
	}
	if len(resp.Results) == 0 || len(resp.Results) > 3 {
		t.Errorf("expected between 1 and 3 results, got %d", len(resp.Results))
	}
	for i := 1; i < len(resp.Results); i++ {
		if resp.Results[i].Score > resp.Results[i-1].Score {
			t.Errorf("results are not ordered by score: %+v", resp.Results)
		}
	}
}

func TestChatPost(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	buf := new(bytes.Buffer)
	f := func(ctx context.Context, chunk []byte) (err error) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, err = buf.Write(chunk)
		return err
	}
	c := client.New(serverURL())
	_, err := c.ChatPost(context.Background(), models.ChatPostRequest{
		Text: "What is the pharmacy safe code?",
	}, f)
	if err != nil {
		t.Fatalf("failed to chat: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("expected a streamed answer")
	}
}
