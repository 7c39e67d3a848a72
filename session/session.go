// Package session runs one conversation against the guide. Each session
// loads the pipeline lazily the first time it starts and answers one
// question at a time.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/jagroop-dev/wlf/rag"
)

const Welcome = `🎮 Welcome to WLF, your The Last of Us Part 2 assistant!

You can now ask me anything about:
- Characters and storylines
- Weapons and items
- Safe codes and collectibles
- Chapter guides
- Enemy information
- And much more!

💬 Type your question below to get started!`

const Disclaimer = `ℹ️ Important Notice

This assistant is a fan-made, non-official resource based on The Last of Us Part 2 game guide. It is intended for informational and entertainment purposes only and may contain spoilers.

All game assets, characters, and concepts are the intellectual property of Naughty Dog and Sony Interactive Entertainment. This project is not affiliated with or endorsed by Naughty Dog or Sony.`

const (
	NotReady   = "⏳ System is still loading. Please wait for initialization to complete."
	Processing = "Processing..."
)

type EventType string

const (
	EventWelcome    EventType = "welcome"
	EventDisclaimer EventType = "disclaimer"
	EventNotice     EventType = "notice"
	EventImages     EventType = "images"
	EventToken      EventType = "token"
	EventAnswer     EventType = "answer"
	EventError      EventType = "error"
)

type Event struct {
	Type EventType
	Text string
	// Images are URLs, set on EventImages and EventAnswer.
	Images []string
}

type Emit func(Event)

// Loader builds the pipeline. It is called at most once per session.
type Loader func(ctx context.Context) (*rag.Pipeline, error)

type Session struct {
	log  *slog.Logger
	load Loader

	once     sync.Once
	m        sync.RWMutex
	pipeline *rag.Pipeline

	// sending serializes questions.
	sending sync.Mutex
}

func New(log *slog.Logger, load Loader) *Session {
	return &Session{
		log:  log,
		load: load,
	}
}

// Start loads the pipeline and greets the user. Configuration errors are
// returned, since the session cannot recover from them. Any other load
// failure is emitted and leaves the session answering every question with
// the same failure.
func (s *Session) Start(ctx context.Context, emit Emit) (err error) {
	s.once.Do(func() {
		var p *rag.Pipeline
		p, err = s.load(ctx)
		if err != nil {
			if rag.KindOf(err) == rag.KindConfig {
				emit(errorEvent("Error initializing system", err))
				return
			}
			s.log.Error("failed to load pipeline", slog.Any("error", err))
			p = rag.Unavailable(s.log, err)
			err = nil
			emit(errorEvent("Error initializing system", p.Available()))
		}
		s.m.Lock()
		s.pipeline = p
		s.m.Unlock()
		if p.Available() == nil {
			emit(Event{Type: EventWelcome, Text: Welcome})
			emit(Event{Type: EventDisclaimer, Text: Disclaimer})
		}
	})
	return err
}

func (s *Session) Ready() bool {
	s.m.RLock()
	defer s.m.RUnlock()
	return s.pipeline != nil
}

// Send answers question. Events are emitted in order: a processing notice,
// the attached images, each token, then the processed answer.
func (s *Session) Send(ctx context.Context, question string, emit Emit) {
	s.m.RLock()
	p := s.pipeline
	s.m.RUnlock()
	if p == nil {
		emit(Event{Type: EventNotice, Text: NotReady})
		return
	}

	s.sending.Lock()
	defer s.sending.Unlock()

	emit(Event{Type: EventNotice, Text: Processing})
	reply, err := p.Stream(ctx, question)
	if err != nil {
		s.log.Error("failed to start answer", slog.Any("error", err))
		emit(errorEvent("Error processing your question", err))
		return
	}
	attached := reply.ImageURLs(p.ImageBaseURL())
	if len(attached) > 0 {
		emit(Event{Type: EventImages, Images: attached})
	}

	var sb strings.Builder
	for token, err := range reply.Fragments {
		if err != nil {
			s.log.Error("failed to generate answer", slog.Any("error", err))
			emit(errorEvent("Error processing your question", err))
			return
		}
		sb.WriteString(token)
		emit(Event{Type: EventToken, Text: token})
	}

	raw := sb.String()
	if strings.TrimSpace(raw) == "" {
		raw = rag.NoInformation
	}
	answer := rag.Process(raw, p.ImageBaseURL())
	emit(Event{Type: EventAnswer, Text: answer.Text, Images: mergeImages(attached, answer.Images)})
}

func mergeImages(attached, referenced []string) []string {
	images := slices.Clone(attached)
	for _, u := range referenced {
		if !slices.Contains(images, u) {
			images = append(images, u)
		}
	}
	return images
}

func errorEvent(prefix string, err error) Event {
	return Event{Type: EventError, Text: fmt.Sprintf("❌ %s: %s", prefix, rag.KindOf(err).UserMessage())}
}
