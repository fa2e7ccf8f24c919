package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/a-h/ragchat/client"
	"github.com/a-h/ragchat/models"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
)

type ChatCommand struct {
	RAGChatURL string `help:"The URL of the RAG chat server." env:"RAG_CHAT_URL" default:"http://localhost:9020"`
	TopK       int    `help:"The number of passages to retrieve." default:"0"`
	LogLevel   string `help:"The log level to use." env:"LOG_LEVEL" default:"info"`
}

type chatMessageRole string

const (
	chatMessageRoleHuman chatMessageRole = "human"
	chatMessageRoleAI    chatMessageRole = "ai"
)

type chatMessage struct {
	Role    chatMessageRole
	Content string
}

func (c ChatCommand) Run(ctx context.Context) (err error) {
	rcc := client.New(c.RAGChatURL)

	questions := make(chan string)
	answers := make(chan []chatMessage)
	errors := make(chan error)
	defer close(questions)
	defer close(answers)
	defer close(errors)

	go func() {
		var messages []chatMessage
		for question := range questions {
			messages = append(messages, chatMessage{Role: chatMessageRoleHuman, Content: question})
			resp, err := rcc.ChatPost(ctx, models.ChatPostRequest{
				Question: question,
				TopK:     c.TopK,
			})
			if err != nil {
				errors <- err
				return
			}
			content := resp.Answer
			if len(resp.Sources) > 0 {
				content += "\n\nSources:\n"
				for _, source := range resp.Sources {
					content += "  - " + source + "\n"
				}
			}
			messages = append(messages, chatMessage{Role: chatMessageRoleAI, Content: content})
			answers <- messages
		}
	}()

	p := tea.NewProgram(newModel(ctx, questions, answers, errors))
	if _, err = p.Run(); err != nil {
		return err
	}
	return nil
}

// Dracula color scheme.
var (
	Background  = lipgloss.Color("#282a36")
	CurrentLine = lipgloss.Color("#44475a")
	Foreground  = lipgloss.Color("#f8f8f2")
	Cyan        = lipgloss.Color("#8be9fd")
	Green       = lipgloss.Color("#50fa7b")
	Pink        = lipgloss.Color("#ff79c6")
	Purple      = lipgloss.Color("#bd93f9")
	Red         = lipgloss.Color("#ff5555")
)

var headerStyle = lipgloss.NewStyle().Background(CurrentLine).Foreground(Purple).Bold(true).Margin(10).Padding(1).PaddingTop(0)

var header = `
 ______    _______  _______  _______  __   __  _______  _______
|    _ |  |   _   ||       ||       ||  | |  ||   _   ||       |
|   | ||  |  |_|  ||    ___||       ||  |_|  ||  |_|  ||_     _|
|   |_||_ |       ||   | __ |       ||       ||       |  |   |
|    __  ||       ||   ||  ||      _||       ||       |  |   |
|   |  | ||   _   ||   |_| ||     |_ |   _   ||   _   |  |   |
|___|  |_||__| |__||_______||_______||__| |__||__| |__|  |___|
`

type model struct {
	viewport viewport.Model
	textarea textarea.Model
	err      error
	ctx      context.Context

	// Server interactions.
	questions chan string
	answers   chan []chatMessage
	errors    chan error
}

func newModel(ctx context.Context, questions chan string, answers chan []chatMessage, errors chan error) model {
	ta := textarea.New()
	ta.Placeholder = "Ask a question..."
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
		err:       nil,
		questions: questions,
		answers:   answers,
		errors:    errors,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.subscribeToAnswers(),
		m.subscribeToErrors(),
	)
}

func (m model) subscribeToAnswers() tea.Cmd {
	return func() tea.Msg {
		select {
		case x := <-m.answers:
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

var roleToStyle = map[chatMessageRole]lipgloss.Style{
	chatMessageRoleHuman: lipgloss.NewStyle().Padding(1).Margin(1).MarginBottom(0).Background(Background).Foreground(Pink),
	chatMessageRoleAI:    lipgloss.NewStyle().Padding(1).Margin(1).MarginBottom(0).Background(Background).Foreground(Cyan),
}

var roleToIcon = map[chatMessageRole]string{
	chatMessageRoleHuman: "🥷",
	chatMessageRoleAI:    "✨",
}

func formatMessage(msg chatMessage) string {
	style, ok := roleToStyle[msg.Role]
	if !ok {
		return msg.Content
	}
	icon, ok := roleToIcon[msg.Role]
	if !ok {
		icon = "🤷"
	}
	wrapped := wordwrap.String(strings.TrimSpace(icon+" "+msg.Content), 80)
	return style.Render(wrapped)
}

var errorStyle = lipgloss.NewStyle().Padding(1).Margin(1).MarginBottom(0).Background(Background).Foreground(Red)

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case error:
		m.err = msg
		m.viewport.SetContent(errorStyle.Render(wordwrap.String(msg.Error(), 80)))
		return m, m.subscribeToErrors()
	case []chatMessage:
		var sb strings.Builder
		for _, cm := range msg {
			sb.WriteString(formatMessage(cm))
			sb.WriteString("\n")
		}
		m.viewport.SetContent(sb.String())
		m.viewport.GotoBottom()
		return m, m.subscribeToAnswers()
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - m.textarea.Height() - 3
		m.textarea.SetWidth(msg.Width)
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "esc", "ctrl+c":
			return m, tea.Quit
		case "enter":
			v := m.textarea.Value()

			if v == "" {
				// Don't send empty questions.
				return m, nil
			}

			m.textarea.Reset()
			m.questions <- v
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
	return fmt.Sprintf("%s\n\n%s",
		m.viewport.View(),
		m.textarea.View(),
	) + "\n\n"
}
