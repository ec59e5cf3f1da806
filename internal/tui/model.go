package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragbot/internal/domain"
)

// RAGPort is the TUI-facing subset of the RAG service.
type RAGPort interface {
	Ingest(ctx context.Context, path string) (domain.IngestReport, error)
	ListRemote(ctx context.Context) ([]domain.RemoteFile, error)
	IngestRemote(ctx context.Context, id string) (domain.IngestReport, error)
	Answer(ctx context.Context, question string) (string, error)
	Summarize(ctx context.Context) (string, error)
	Reset(ctx context.Context) (bool, error)
}

// DriveAuth runs the OAuth consent flow for the remote drive.
type DriveAuth interface {
	URL() string
	Exchange(ctx context.Context, code string) error
	Authorized() bool
}

const helpText = `Commands:
  /upload <path>  ingest a PDF, DOCX or TXT file (replaces the knowledge base)
  /ask <question> ask about the document; plain text works too
  /summary        retell the main content of the document
  /reset          clear the knowledge base
  /drive          list files on Google Drive
  /auth <code>    finish Google Drive authorization
  /pick <id>      ingest a Google Drive file
  /help           show this help
  /quit           exit`

// replyMsg carries the outcome of a background command back to the loop.
type replyMsg struct {
	question string
	text     string
	err      error
}

type entry struct {
	user bool
	text string
}

// Model is the Bubble Tea model for the chat.
type Model struct {
	ctx      context.Context
	service  RAGPort
	auth     DriveAuth
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	history  []entry
	pending  int
	status   string
	ready    bool
}

// New creates a chat model. auth may be nil when no drive is configured.
func New(ctx context.Context, service RAGPort, auth DriveAuth) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question or type /help"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		ctx:      ctx,
		service:  service,
		auth:     auth,
		input:    ti,
		viewport: vp,
		spinner:  sp,
		history:  []entry{{text: "Hi! Upload a document with /upload <path>, then ask about it. /help lists commands."}},
		status:   "Ready.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := historyBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 // header, status, spacer
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.refresh()
		return m, nil
	case replyMsg:
		if m.pending > 0 {
			m.pending--
		}
		if msg.err != nil {
			m.history = append(m.history, entry{text: errorStyle.Render(describeError(msg.err))})
			m.status = "Failed."
		} else {
			m.history = append(m.history, entry{text: highlightBestSentence(msg.text, msg.question)})
			m.status = "Ready."
		}
		m.refresh()
		return m, nil
	case spinner.TickMsg:
		if m.pending == 0 {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			return m, tea.Quit
		case tea.KeyEnter:
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if line == "" {
				return m, nil
			}
			return m.submit(line)
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit handles one line of input. Work that may block runs as a tea.Cmd so
// the loop keeps accepting input.
func (m Model) submit(line string) (tea.Model, tea.Cmd) {
	m.history = append(m.history, entry{user: true, text: line})
	name, arg := parseCommand(line)

	var run func(ctx context.Context) (string, error)
	question := ""
	switch name {
	case "quit", "exit":
		return m, tea.Quit
	case "help", "start":
		m.history = append(m.history, entry{text: helpText})
	case "upload":
		if arg == "" {
			m.history = append(m.history, entry{text: "Usage: /upload <path>"})
			break
		}
		run = func(ctx context.Context) (string, error) {
			r, err := m.service.Ingest(ctx, arg)
			return formatReport(r), err
		}
	case "ask", "":
		if arg == "" {
			m.history = append(m.history, entry{text: "Usage: /ask <question>"})
			break
		}
		question = arg
		run = func(ctx context.Context) (string, error) { return m.service.Answer(ctx, arg) }
	case "summary":
		run = m.service.Summarize
	case "reset":
		run = func(ctx context.Context) (string, error) {
			existed, err := m.service.Reset(ctx)
			if err != nil || existed {
				return "Knowledge base cleared.", err
			}
			return "Knowledge base is already empty.", nil
		}
	case "drive":
		if m.auth != nil && !m.auth.Authorized() {
			m.history = append(m.history, entry{text: "Open this link, allow access and send the code with /auth <code>:\n" + m.auth.URL()})
			break
		}
		run = func(ctx context.Context) (string, error) {
			files, err := m.service.ListRemote(ctx)
			return formatFiles(files), err
		}
	case "auth":
		if m.auth == nil {
			m.history = append(m.history, entry{text: "Google Drive is not configured."})
			break
		}
		if arg == "" {
			m.history = append(m.history, entry{text: "Usage: /auth <code>"})
			break
		}
		run = func(ctx context.Context) (string, error) {
			if err := m.auth.Exchange(ctx, arg); err != nil {
				return "", err
			}
			return "Google Drive connected. Use /drive to list files.", nil
		}
	case "pick":
		if arg == "" {
			m.history = append(m.history, entry{text: "Usage: /pick <id>"})
			break
		}
		run = func(ctx context.Context) (string, error) {
			r, err := m.service.IngestRemote(ctx, arg)
			return formatReport(r), err
		}
	default:
		m.history = append(m.history, entry{text: fmt.Sprintf("Unknown command /%s. Type /help.", name)})
	}
	m.refresh()
	if run == nil {
		return m, nil
	}

	m.pending++
	m.status = "Working..."
	ctx := m.ctx
	work := func() tea.Msg {
		text, err := run(ctx)
		return replyMsg{question: question, text: text, err: err}
	}
	if m.pending == 1 {
		return m, tea.Batch(work, m.spinner.Tick)
	}
	return m, work
}

// parseCommand splits "/name args" into its parts. Text without a leading
// slash is a question with an empty name.
func parseCommand(line string) (name, arg string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return "", line
	}
	name, arg, _ = strings.Cut(line[1:], " ")
	return strings.ToLower(name), strings.TrimSpace(arg)
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("ragbot")
	status := statusStyle.Render(m.status)
	if m.pending > 0 {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" + historyBoxStyle.Render(m.viewport.View()) + "\n" + queryBoxStyle.Render(m.input.View()) + "\n" + status
}

func (m Model) renderHistory() string {
	width := max(10, m.viewport.Width-2)
	parts := make([]string, 0, len(m.history))
	for _, e := range m.history {
		if e.user {
			parts = append(parts, userStyle.Width(width).Render("you: "+e.text))
			continue
		}
		parts = append(parts, botStyle.Width(width).Render(e.text))
	}
	return strings.Join(parts, "\n\n")
}

func formatReport(r domain.IngestReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ingested %s: %d characters, %d chunks.", r.Document.Name, r.Chars, r.Chunks)
	if r.Chunks == 0 {
		b.WriteString(" The document has no text, so answers will have no context.")
	}
	if r.Digest != "" {
		b.WriteString("\nIn short: " + r.Digest)
	}
	return b.String()
}

func formatFiles(files []domain.RemoteFile) string {
	if len(files) == 0 {
		return "No PDF, DOCX or TXT files found on Google Drive."
	}
	var b strings.Builder
	b.WriteString("Files on Google Drive (ingest with /pick <id>):")
	for _, f := range files {
		fmt.Fprintf(&b, "\n  %s  %s", f.ID, f.Name)
	}
	return b.String()
}

// describeError turns failures into messages for the chat.
func describeError(err error) string {
	var herr *domain.HTTPError
	switch {
	case errors.As(err, &herr):
		return fmt.Sprintf("The language model request failed (status %d). %s", herr.Status, strings.TrimSpace(herr.Body))
	case errors.Is(err, domain.ErrUnsupportedFormat):
		return "Unsupported file. Upload a PDF, DOCX or TXT document. (" + err.Error() + ")"
	case errors.Is(err, domain.ErrCorruptFile), errors.Is(err, domain.ErrEncoding):
		return "Could not read the document: " + err.Error()
	case errors.Is(err, domain.ErrIndexIncompatible):
		return "The knowledge base was built with another embedding model. Use /reset and upload again."
	case errors.Is(err, domain.ErrDriveUnavailable):
		return "Google Drive is unavailable: " + err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "The operation timed out. Try again."
	}
	return "Error: " + err.Error()
}

var (
	headerStyle     = lipgloss.NewStyle().Bold(true)
	historyBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	botStyle        = lipgloss.NewStyle()
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	highlightStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe   = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`)
	sentenceRe      = regexp.MustCompile(`[^.!?\n]+[.!?]*`)
)

// highlightBestSentence emphasizes the sentence of text that shares the most
// words with query. Everything around it, line breaks and list markers
// included, is kept as is. Text is returned unchanged when query is empty.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" || strings.TrimSpace(query) == "" {
		return text
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return text
	}
	var spans [][]int
	for _, sp := range sentenceRe.FindAllStringIndex(text, -1) {
		if strings.TrimSpace(text[sp[0]:sp[1]]) != "" {
			spans = append(spans, sp)
		}
	}
	if len(spans) < 2 {
		return text
	}
	best, bestScore := -1, 0
	for i, sp := range spans {
		if score := tokenOverlapScore(qTokens, text[sp[0]:sp[1]]); score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return text
	}
	start, end := spans[best][0], spans[best][1]
	sent := text[start:end]
	start += len(sent) - len(strings.TrimLeftFunc(sent, unicode.IsSpace))
	end -= len(sent) - len(strings.TrimRightFunc(sent, unicode.IsSpace))
	return text[:start] + highlightStyle.Render(text[start:end]) + text[end:]
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
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
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

// Run starts the chat on the given terminal streams.
func Run(ctx context.Context, service RAGPort, auth DriveAuth, in io.Reader, out io.Writer) error {
	p := tea.NewProgram(New(ctx, service, auth), tea.WithAltScreen(), tea.WithContext(ctx), tea.WithInput(in), tea.WithOutput(out))
	_, err := p.Run()
	return err
}
