// Package tui is the interactive question-answering front end.
package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"energyrag/internal/domain"
	"energyrag/internal/service"
)

// AskPort is the TUI-facing subset of the RAG service.
type AskPort interface {
	AskWithEvidence(ctx context.Context, q domain.Query) (service.Answer, error)
}

type pane int

const (
	answerPane pane = iota
	evidencePane
)

// answerMsg carries the result of one asynchronous request. seq ties it to
// the request that produced it so stale replies can be ignored.
type answerMsg struct {
	seq    int
	answer service.Answer
	err    error
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	service  AskPort
	ctx      context.Context
	numDocs  int
	header   string
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	answer    *service.Answer
	lastQuery string
	status    string
	pane      pane
	cursor    int
	ready     bool

	busy   bool
	seq    int
	cancel context.CancelFunc
}

// New creates a TUI model. header is shown above the answer, typically the
// active models and index size.
func New(ctx context.Context, svc AskPort, numDocs int, header string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask an energy-efficiency question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		service:  svc,
		ctx:      ctx,
		numDocs:  numDocs,
		header:   header,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		status:   "Ready. Tab switches answer/evidence, Esc cancels, Ctrl+C quits.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header lines, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.refresh()
		return m, nil

	case answerMsg:
		if msg.seq != m.seq {
			return m, nil
		}
		m.busy = false
		m.cancel = nil
		if msg.err != nil {
			m.answer = nil
			m.status = "Error: " + service.UserMessage(msg.err)
		} else {
			a := msg.answer
			m.answer = &a
			m.cursor = 0
			m.status = fmt.Sprintf("Answered %q with %d snippets", m.lastQuery, len(a.Context.Items))
			if a.Repaired {
				m.status += " (after one repair)"
			}
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			m.stop()
			return m, tea.Quit
		case tea.KeyEsc:
			if m.busy {
				m.stop()
				m.seq++
				m.busy = false
				m.status = "Request cancelled."
			}
			return m, nil
		case tea.KeyTab:
			if m.pane == answerPane {
				m.pane = evidencePane
			} else {
				m.pane = answerPane
			}
			m.refresh()
			return m, nil
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			return m.ask(q)
		case "down":
			if m.pane == evidencePane && m.evidenceLen() > 0 {
				m.cursor = (m.cursor + 1) % m.evidenceLen()
				m.refresh()
				return m, nil
			}
		case "up":
			if m.pane == evidencePane && m.evidenceLen() > 0 {
				m.cursor = (m.cursor - 1 + m.evidenceLen()) % m.evidenceLen()
				m.refresh()
				return m, nil
			}
		case "pgdown", "pgup":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// ask starts a cancellable request in the background.
func (m Model) ask(q string) (tea.Model, tea.Cmd) {
	m.stop()
	ctx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	m.seq++
	m.busy = true
	m.lastQuery = q
	m.status = "Thinking..."

	seq, svc, numDocs := m.seq, m.service, m.numDocs
	run := func() tea.Msg {
		a, err := svc.AskWithEvidence(ctx, domain.Query{Text: q, NumDocs: numDocs})
		return answerMsg{seq: seq, answer: a, err: err}
	}
	return m, tea.Batch(m.spinner.Tick, run)
}

func (m *Model) stop() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m Model) evidenceLen() int {
	if m.answer == nil {
		return 0
	}
	return len(m.answer.Context.Items)
}

func (m *Model) refresh() {
	if m.pane == evidencePane {
		m.viewport.SetContent(m.renderEvidence())
	} else {
		m.viewport.SetContent(m.renderAnswer())
	}
	m.viewport.GotoTop()
}

// View renders the TUI layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	title := titleStyle.Render("Energy Efficiency Assistant")
	header := mutedStyle.Render(m.header)
	input := queryBoxStyle.Render(m.input.View())
	status := m.status
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	results := resultBoxStyle.Render(m.viewport.View())
	return title + "\n" + header + "\n" + results + "\n" + input + "\n" + statusStyle.Render(status)
}

func (m Model) renderAnswer() string {
	if m.answer == nil {
		return "No answer yet."
	}
	var b strings.Builder
	b.WriteString(m.answer.AnswerText)
	b.WriteString("\n\n")
	b.WriteString(sectionStyle.Render("Sources"))
	b.WriteString("\n")
	if len(m.answer.Citations) == 0 {
		b.WriteString(mutedStyle.Render("none"))
		b.WriteString("\n")
	}
	for i, c := range m.answer.Citations {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, c.DocumentTitle)
	}
	if m.answer.Caveats != "" {
		b.WriteString("\n")
		b.WriteString(sectionStyle.Render("Caveats"))
		b.WriteString("\n")
		b.WriteString(m.answer.Caveats)
		b.WriteString("\n")
	}
	if m.answer.Dropped > 0 {
		fmt.Fprintf(&b, "\n%s\n", mutedStyle.Render(fmt.Sprintf("%d snippets left out to fit the prompt budget", m.answer.Dropped)))
	}
	return b.String()
}

func (m Model) renderEvidence() string {
	if m.evidenceLen() == 0 {
		return "No evidence retrieved."
	}
	it := m.answer.Context.Items[m.cursor]
	title := fmt.Sprintf("Snippet %d/%d  %s  score=%.3f", m.cursor+1, m.evidenceLen(), it.Chunk.DocumentTitle, it.Score)
	body := highlightBestSentence(it.Chunk.Text, m.lastQuery)
	return sectionStyle.Render(title) + "\n\n" + body
}

var (
	titleStyle     = lipgloss.NewStyle().Bold(true)
	sectionStyle   = lipgloss.NewStyle().Bold(true).Underline(true)
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)
	sentenceRe     = regexp.MustCompile(`(?s).+?(?:[.!?](?:\s|$)|$)`)
)

// highlightBestSentence emphasises the sentence sharing the most words with query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{text}
	}
	qTokens := toTokenSet(query)
	best, bestScore := -1, 0
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			best, bestScore = i, score
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == best {
			sent = highlightStyle.Render(sent)
		}
		sentences[i] = sent
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := map[string]struct{}{}
	for _, t := range unicodeWordRe.FindAllString(strings.ToLower(sentence), -1) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
