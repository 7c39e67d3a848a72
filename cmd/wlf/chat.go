package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jagroop-dev/wlf/rag"
	"github.com/jagroop-dev/wlf/session"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
)

type ChatCommand struct {
	PipelineFlags `embed:""`

	ImagesDir    string `help:"The directory of guide images attached to questions." env:"IMAGES_DIR" default:"Data/Images/"`
	ImageBaseURL string `help:"The URL prefix of image links in answers, the images directory if empty." env:"IMAGE_BASE_URL" default:""`
	LogFile      string `help:"Write logs to this file, the terminal is used by the chat." env:"LOG_FILE" default:""`
	LogLevel     string `help:"The log level to use." env:"LOG_LEVEL" default:"info"`
}

func (c ChatCommand) logger() (*slog.Logger, func(), error) {
	if c.LogFile == "" {
		return slog.New(slog.NewJSONHandler(io.Discard, nil)), func() {}, nil
	}
	f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return getLoggerTo(f, c.LogLevel), func() { f.Close() }, nil
}

func (c ChatCommand) imageBaseURL() (string, error) {
	if c.ImageBaseURL != "" {
		return rag.NormalizeBaseURL(c.ImageBaseURL), nil
	}
	dir, err := filepath.Abs(c.ImagesDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve images directory: %w", err)
	}
	return createURL("file://", filepath.ToSlash(dir), "")
}

func (c ChatCommand) Run(ctx context.Context) (err error) {
	log, closeLog, err := c.logger()
	if err != nil {
		return err
	}
	defer closeLog()
	baseURL, err := c.imageBaseURL()
	if err != nil {
		return err
	}

	// The models are created before the terminal is taken over, so a missing
	// token is reported on the command line.
	llm, emb, err := c.models()
	if err != nil {
		return err
	}
	s := session.New(log, func(ctx context.Context) (*rag.Pipeline, error) {
		return c.buildPipelineWith(ctx, log, llm, emb, rag.MultimodalGuidelines, baseURL)
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	events := make(chan session.Event, 64)
	errors := make(chan error, 1)
	emit := func(e session.Event) {
		select {
		case events <- e:
		case <-ctx.Done():
		}
	}
	go func() {
		if err := s.Start(ctx, emit); err != nil {
			errors <- err
		}
	}()
	send := func(question string) {
		go s.Send(ctx, question, emit)
	}

	p := tea.NewProgram(newModel(ctx, send, events, errors), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return err
	}
	if m, ok := final.(model); ok && m.fatal != nil {
		return m.fatal
	}
	return nil
}

func getLoggerTo(w io.Writer, level string) *slog.Logger {
	ll := slog.LevelInfo
	switch level {
	case "debug":
		ll = slog.LevelDebug
	case "warn":
		ll = slog.LevelWarn
	case "error":
		ll = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ll,
	}))
}

// Dracula color scheme.
var (
	Background  = lipgloss.Color("#282a36")
	CurrentLine = lipgloss.Color("#44475a")
	Foreground  = lipgloss.Color("#f8f8f2")
	Comment     = lipgloss.Color("#6272a4")
	Cyan        = lipgloss.Color("#8be9fd")
	Green       = lipgloss.Color("#50fa7b")
	Orange      = lipgloss.Color("#ffb86c")
	Pink        = lipgloss.Color("#ff79c6")
	Purple      = lipgloss.Color("#bd93f9")
	Red         = lipgloss.Color("#ff5555")
	Yellow      = lipgloss.Color("#f1fa8c")
)

var headerStyle = lipgloss.NewStyle().Background(CurrentLine).Foreground(Purple).Bold(true).Margin(2).Padding(1).PaddingTop(0)

var header = `
 __        __  _       _____ 
 \ \      / / | |     |  ___|
  \ \ /\ / /  | |     | |_   
   \ V  V /   | |___  |  _|  
    \_/\_/    |_____| |_|    
`

var sidebarStyle = lipgloss.NewStyle().Padding(1).Margin(1).Border(lipgloss.RoundedBorder()).BorderForeground(Comment).Foreground(Foreground)

const sidebarWidth = 36

type role string

const (
	roleSystem role = "system"
	roleHuman  role = "human"
	roleAI     role = "ai"
	roleError  role = "error"
)

type chatMessage struct {
	role    role
	content string
	images  []string
}

type model struct {
	viewport viewport.Model
	textarea textarea.Model
	ctx      context.Context
	width    int

	messages []chatMessage
	// answering is the index of the message receiving tokens, -1 if none.
	answering  int
	disclaimer string
	fatal      error

	// Chat session interactions.
	send   func(question string)
	events chan session.Event
	errors chan error
}

func newModel(ctx context.Context, send func(string), events chan session.Event, errors chan error) model {
	ta := textarea.New()
	ta.Placeholder = "Ask about The Last of Us Part II..."
	ta.Focus()

	ta.Prompt = "┃ "
	ta.CharLimit = 280

	ta.SetHeight(3)

	// Remove cursor line styling
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()

	ta.ShowLineNumbers = false

	vp := viewport.New(80, 20)
	vp.SetContent(headerStyle.Render(header))

	ta.KeyMap.InsertNewline.SetEnabled(false)

	return model{
		ctx:       ctx,
		textarea:  ta,
		viewport:  vp,
		width:     80 + sidebarWidth,
		answering: -1,
		send:      send,
		events:    events,
		errors:    errors,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.subscribeToEvents(),
		m.subscribeToErrors(),
	)
}

func (m model) subscribeToEvents() tea.Cmd {
	return func() tea.Msg {
		select {
		case x := <-m.events:
			return x
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m model) subscribeToErrors() tea.Cmd {
	return func() tea.Msg {
		select {
		case x := <-m.errors:
			return x
		case <-m.ctx.Done():
			return nil
		}
	}
}

var roleToStyle = map[role]lipgloss.Style{
	roleSystem: lipgloss.NewStyle().Padding(1).Margin(1).MarginBottom(0).Background(Background).Foreground(Green),
	roleHuman:  lipgloss.NewStyle().Padding(1).Margin(1).MarginBottom(0).Background(Background).Foreground(Pink),
	roleAI:     lipgloss.NewStyle().Padding(1).Margin(1).MarginBottom(0).Background(Background).Foreground(Cyan),
	roleError:  lipgloss.NewStyle().Padding(1).Margin(1).MarginBottom(0).Background(Background).Foreground(Red),
}

var roleToIcon = map[role]string{
	roleSystem: "🤖",
	roleHuman:  "🥷",
	roleAI:     "✨",
}

var imageStyle = lipgloss.NewStyle().Foreground(Orange).Underline(true)

func formatMessage(msg chatMessage, width int) string {
	style, ok := roleToStyle[msg.role]
	if !ok {
		return msg.content
	}
	text := msg.content
	if icon, ok := roleToIcon[msg.role]; ok {
		text = icon + " " + text
	}
	wrapped := wordwrap.String(strings.TrimSpace(text), width)
	for _, u := range msg.images {
		wrapped += "\n🖼  " + imageStyle.Render(u)
	}
	return style.Render(wrapped)
}

// apply folds a session event into the conversation.
func (m *model) apply(e session.Event) {
	switch e.Type {
	case session.EventWelcome:
		m.messages = append(m.messages, chatMessage{role: roleSystem, content: e.Text})
	case session.EventDisclaimer:
		m.disclaimer = e.Text
	case session.EventNotice:
		m.messages = append(m.messages, chatMessage{role: roleSystem, content: e.Text})
		m.answering = -1
	case session.EventImages:
		m.answer().images = e.Images
	case session.EventToken:
		m.answer().content += e.Text
	case session.EventAnswer:
		a := m.answer()
		a.content = e.Text
		a.images = e.Images
		m.answering = -1
	case session.EventError:
		m.messages = append(m.messages, chatMessage{role: roleError, content: e.Text})
		m.answering = -1
	}
}

func (m *model) answer() *chatMessage {
	if m.answering < 0 {
		m.messages = append(m.messages, chatMessage{role: roleAI})
		m.answering = len(m.messages) - 1
	}
	return &m.messages[m.answering]
}

func (m model) render() string {
	var sb strings.Builder
	sb.WriteString(headerStyle.Render(header))
	sb.WriteString("\n")
	for _, cm := range m.messages {
		sb.WriteString(formatMessage(cm, max(m.viewport.Width-6, 20)))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case error:
		m.fatal = msg
		return m, tea.Quit
	case session.Event:
		m.apply(msg)
		m.viewport.SetContent(m.render())
		m.viewport.GotoBottom()
		return m, m.subscribeToEvents()
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = max(msg.Width-sidebarWidth, 20)
		m.viewport.Height = msg.Height - m.textarea.Height() - 3
		m.textarea.SetWidth(msg.Width)
		m.viewport.SetContent(m.render())
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "esc", "ctrl+c":
			return m, tea.Quit
		case "enter":
			v := strings.TrimSpace(m.textarea.Value())
			if v == "" {
				// Don't send empty messages.
				return m, nil
			}
			m.textarea.Reset()
			m.messages = append(m.messages, chatMessage{role: roleHuman, content: v})
			m.viewport.SetContent(m.render())
			m.viewport.GotoBottom()
			m.send(v)
			return m, nil
		default:
			// Send all other keypresses to the textarea.
			var cmd tea.Cmd
			m.textarea, cmd = m.textarea.Update(msg)
			return m, cmd
		}

	case cursor.BlinkMsg:
		// Textarea should also process cursor blinks.
		var cmd tea.Cmd
		m.textarea, cmd = m.textarea.Update(msg)
		return m, cmd

	default:
		return m, nil
	}
}

func (m model) View() string {
	top := m.viewport.View()
	if m.disclaimer != "" {
		sidebar := sidebarStyle.Width(sidebarWidth - 4).Render(wordwrap.String(m.disclaimer, sidebarWidth-8))
		top = lipgloss.JoinHorizontal(lipgloss.Top, top, sidebar)
	}
	return fmt.Sprintf("%s\n\n%s",
		top,
		m.textarea.View(),
	) + "\n\n"
}
