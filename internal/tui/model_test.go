package tui

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"ragbot/internal/domain"
)

type fakeService struct {
	asked    []string
	ingested []string
	answer   string
	err      error
	existed  bool
}

func (f *fakeService) Ingest(_ context.Context, path string) (domain.IngestReport, error) {
	f.ingested = append(f.ingested, path)
	return domain.IngestReport{Document: domain.Document{Name: "notes.txt"}, Chars: 31, Chunks: 1, Digest: "Mars is red."}, f.err
}

func (f *fakeService) ListRemote(context.Context) ([]domain.RemoteFile, error) {
	return []domain.RemoteFile{{ID: "f1", Name: "mars.txt"}}, f.err
}

func (f *fakeService) IngestRemote(_ context.Context, id string) (domain.IngestReport, error) {
	f.ingested = append(f.ingested, "drive:"+id)
	return domain.IngestReport{Document: domain.Document{Name: "mars.txt"}, Chunks: 2}, f.err
}

func (f *fakeService) Answer(_ context.Context, q string) (string, error) {
	f.asked = append(f.asked, q)
	return f.answer, f.err
}

func (f *fakeService) Summarize(context.Context) (string, error) { return "summary", f.err }

func (f *fakeService) Reset(context.Context) (bool, error) { return f.existed, f.err }

type fakeAuth struct {
	authorized bool
	code       string
}

func (a *fakeAuth) URL() string      { return "https://accounts.example/consent" }
func (a *fakeAuth) Authorized() bool { return a.authorized }
func (a *fakeAuth) Exchange(_ context.Context, code string) error {
	a.code = code
	a.authorized = true
	return nil
}

// send types line, presses enter and runs any resulting command to completion.
func send(t *testing.T, m Model, line string) Model {
	t.Helper()
	m.input.SetValue(line)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	for _, msg := range drain(cmd) {
		next, _ = m.Update(msg)
		m = next.(Model)
	}
	return m
}

// drain executes cmd and returns the replies it produced, skipping ticks.
func drain(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	switch msg := cmd().(type) {
	case tea.BatchMsg:
		var out []tea.Msg
		for _, c := range msg {
			out = append(out, drain(c)...)
		}
		return out
	case replyMsg:
		return []tea.Msg{msg}
	default:
		return nil
	}
}

func newModel(svc RAGPort, auth DriveAuth) Model {
	m := New(context.Background(), svc, auth)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(Model)
}

func last(m Model) string { return m.history[len(m.history)-1].text }

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line, name, arg string
	}{
		{"What is Mars?", "", "What is Mars?"},
		{"/ask  What is Mars? ", "ask", "What is Mars?"},
		{"/UPLOAD /tmp/a b.pdf", "upload", "/tmp/a b.pdf"},
		{"/summary", "summary", ""},
		{"/", "", ""},
	}
	for _, tt := range tests {
		name, arg := parseCommand(tt.line)
		if name != tt.name || arg != tt.arg {
			t.Errorf("parseCommand(%q) = %q, %q, want %q, %q", tt.line, name, arg, tt.name, tt.arg)
		}
	}
}

func TestChat_PlainTextAsks(t *testing.T) {
	svc := &fakeService{answer: "A thin CO2 atmosphere."}
	m := send(t, newModel(svc, nil), "What is Mars's atmosphere?")
	if len(svc.asked) != 1 || svc.asked[0] != "What is Mars's atmosphere?" {
		t.Fatalf("asked = %v", svc.asked)
	}
	if !strings.Contains(last(m), "A thin CO2 atmosphere.") {
		t.Fatalf("reply = %q", last(m))
	}
	if m.pending != 0 || m.status != "Ready." {
		t.Fatalf("pending = %d, status = %q", m.pending, m.status)
	}
}

func TestChat_Upload(t *testing.T) {
	svc := &fakeService{}
	m := send(t, newModel(svc, nil), "/upload /tmp/notes.txt")
	if len(svc.ingested) != 1 || svc.ingested[0] != "/tmp/notes.txt" {
		t.Fatalf("ingested = %v", svc.ingested)
	}
	if got := last(m); !strings.Contains(got, "1 chunks") || !strings.Contains(got, "Mars is red.") {
		t.Fatalf("reply = %q", got)
	}
}

func TestChat_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"http", &domain.HTTPError{Status: 500, Body: "boom"}, "status 500"},
		{"unsupported", domain.ErrUnsupportedFormat, "PDF, DOCX or TXT"},
		{"incompatible", domain.ErrIndexIncompatible, "/reset"},
		{"other", errors.New("disk on fire"), "disk on fire"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := send(t, newModel(&fakeService{err: tt.err}, nil), "/ask anything")
			if !strings.Contains(last(m), tt.want) {
				t.Fatalf("reply = %q, want mention of %q", last(m), tt.want)
			}
			if m.status != "Failed." {
				t.Fatalf("status = %q", m.status)
			}
		})
	}
}

func TestChat_Reset(t *testing.T) {
	m := send(t, newModel(&fakeService{existed: true}, nil), "/reset")
	if last(m) != "Knowledge base cleared." {
		t.Fatalf("reply = %q", last(m))
	}
	m = send(t, newModel(&fakeService{}, nil), "/reset")
	if last(m) != "Knowledge base is already empty." {
		t.Fatalf("reply = %q", last(m))
	}
}

func TestChat_DriveFlow(t *testing.T) {
	svc := &fakeService{}
	auth := &fakeAuth{}
	m := newModel(svc, auth)

	m = send(t, m, "/drive")
	if !strings.Contains(last(m), "https://accounts.example/consent") {
		t.Fatalf("expected consent link, got %q", last(m))
	}
	m = send(t, m, "/auth 4/abc")
	if auth.code != "4/abc" || !strings.Contains(last(m), "connected") {
		t.Fatalf("code = %q, reply = %q", auth.code, last(m))
	}
	m = send(t, m, "/drive")
	if !strings.Contains(last(m), "f1  mars.txt") {
		t.Fatalf("listing = %q", last(m))
	}
	m = send(t, m, "/pick f1")
	if len(svc.ingested) != 1 || svc.ingested[0] != "drive:f1" {
		t.Fatalf("ingested = %v", svc.ingested)
	}
}

func TestChat_LocalReplies(t *testing.T) {
	m := newModel(&fakeService{}, nil)
	for line, want := range map[string]string{
		"/help":    "/upload <path>",
		"/upload":  "Usage: /upload",
		"/auth x":  "not configured",
		"/weather": "Unknown command /weather",
	} {
		m = send(t, m, line)
		if !strings.Contains(last(m), want) {
			t.Errorf("%s reply = %q, want mention of %q", line, last(m), want)
		}
	}
	if m.pending != 0 {
		t.Fatalf("local replies should not start work, pending = %d", m.pending)
	}
}

func TestChat_Quit(t *testing.T) {
	m := newModel(&fakeService{}, nil)
	m.input.SetValue("/quit")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
}

func TestHighlightBestSentence(t *testing.T) {
	text := "Venus is hot. Mars has a thin atmosphere."
	if got := highlightBestSentence(text, ""); got != text {
		t.Fatalf("empty query changed text: %q", got)
	}
	got := highlightBestSentence(text, "mars atmosphere")
	if !strings.Contains(got, "Mars has a thin atmosphere.") || !strings.Contains(got, "Venus is hot.") {
		t.Fatalf("highlight lost text: %q", got)
	}
}

var ansiRe = regexp.MustCompile("\x1b\\[[0-9;]*m")

func TestHighlightBestSentence_KeepsLayout(t *testing.T) {
	text := "Facts:\n- Venus is hot.\n- Mars has a thin atmosphere.\n\n1. Jupiter is big!  Saturn has rings?"
	got := highlightBestSentence(text, "What is the atmosphere of Mars?")
	if plain := ansiRe.ReplaceAllString(got, ""); plain != text {
		t.Fatalf("layout changed:\n got %q\nwant %q", plain, text)
	}
	want := highlightStyle.Render("- Mars has a thin atmosphere.")
	if !strings.Contains(got, "\n"+want+"\n\n") {
		t.Fatalf("best sentence not highlighted in place: %q", got)
	}
	if got := highlightBestSentence(text, "comets"); got != text {
		t.Fatalf("no match changed text: %q", got)
	}
}
