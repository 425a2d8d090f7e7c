// Package tui is the interactive chat front end over the ask pipeline.
package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"babyrag/internal/service"
)

// AskTimeout bounds one question, including generation.
const AskTimeout = 3 * time.Minute

// Asker is the TUI-facing subset of the service.
type Asker interface {
	Ask(ctx context.Context, question string, topK int) (service.Answer, error)
}

type exchange struct {
	question string
	answer   service.Answer
}

type answerMsg struct {
	question string
	answer   service.Answer
	err      error
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	asker    Asker
	topK     int
	input    textinput.Model
	viewport viewport.Model
	history  []exchange
	summary  string
	status   string
	cursor   int
	pending  bool
	ready    bool
}

// New creates a chat model. summary is shown under the header.
func New(asker Asker, summary string, topK int) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	return Model{
		asker:    asker,
		topK:     topK,
		input:    ti,
		viewport: viewport.New(0, 0),
		summary:  summary,
		status:   "Documents loaded. Ask away.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) ask(q string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), AskTimeout)
		defer cancel()
		ans, err := m.asker.Ask(ctx, q, m.topK)
		return answerMsg{question: q, answer: ans, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header+summary, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.viewport.SetContent(m.renderCurrent())
		return m, nil
	case answerMsg:
		m.pending = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}
		m.history = append(m.history, exchange{question: msg.question, answer: msg.answer})
		m.cursor = len(m.history) - 1
		m.status = fmt.Sprintf("Answered from %d sources", len(msg.answer.Sources))
		if msg.answer.Fake {
			m.status += " (fake mode)"
		}
		m.viewport.SetContent(m.renderCurrent())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.pending {
				return m, nil
			}
			m.pending = true
			m.input.SetValue("")
			m.status = fmt.Sprintf("Thinking about %q...", q)
			return m, m.ask(q)
		case "up":
			if len(m.history) > 0 {
				m.cursor = (m.cursor - 1 + len(m.history)) % len(m.history)
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		case "down":
			if len(m.history) > 0 {
				m.cursor = (m.cursor + 1) % len(m.history)
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("babyrag")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderCurrent() string {
	if len(m.history) == 0 {
		return "No answers yet."
	}
	ex := m.history[m.cursor]
	var b strings.Builder
	fmt.Fprintf(&b, "Q %d/%d: %s\n\n", m.cursor+1, len(m.history), ex.question)
	b.WriteString(highlightBestSentence(ex.answer.Answer, ex.question))
	b.WriteString("\n\n")
	b.WriteString(sourceStyle.Render(FormatSources(ex.answer.Sources)))
	return b.String()
}

// FormatSources renders retrieved chunk metadata as "source#chunk" lines.
func FormatSources(sources []map[string]any) string {
	if len(sources) == 0 {
		return "Sources: none"
	}
	lines := make([]string, 0, len(sources)+1)
	lines = append(lines, "Sources:")
	for i, s := range sources {
		lines = append(lines, fmt.Sprintf("  %d. %v#%v", i+1, s["source"], s["chunk"]))
	}
	return strings.Join(lines, "\n")
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	sourceStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	wordRe         = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`[^.!?]+(?:[.!?]+|$)`)
)

// highlightBestSentence emphasises the sentence sharing the most words with
// query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	var sentences []string
	for _, s := range sentenceRe.FindAllString(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}
	qTokens := tokenSet(query)
	if len(qTokens) == 0 || len(sentences) < 2 {
		return strings.Join(sentences, " ")
	}
	bestIdx, bestScore := 0, -1
	for i, s := range sentences {
		if score := overlap(qTokens, s); score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	sentences[bestIdx] = highlightStyle.Render(sentences[bestIdx])
	return strings.Join(sentences, " ")
}

func tokenSet(s string) map[string]struct{} {
	tokens := wordRe.FindAllString(strings.ToLower(s), -1)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func overlap(query map[string]struct{}, sentence string) int {
	score := 0
	for t := range tokenSet(sentence) {
		if _, ok := query[t]; ok {
			score++
		}
	}
	return score
}
