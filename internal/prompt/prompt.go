package prompt

import (
	"fmt"
	"strings"
)

// Templates holds the wording for one deployment language.
type Templates struct {
	// Answer receives the context and the question, in that order.
	Answer string
	// Summary receives the context.
	Summary string
	// SummaryQuery is the fixed retrieval probe used to summarize.
	SummaryQuery string
	// Persona is the system instruction sent with every request.
	Persona string
}

var languages = map[string]Templates{
	"en": {
		Answer:       "Context:\n%s\n---\nQuestion: %s\nAnswer:",
		Summary:      "You are a model that briefly retells articles. Retell this clearly and precisely:\n%s",
		SummaryQuery: "main content of the document",
		Persona:      "You are a precise research assistant. Answer strictly from the provided context and reply in English.",
	},
	"ru": {
		Answer:       "Контекст:\n%s\n---\nВопрос: %s\nОтвет:",
		Summary:      "Ты нейросеть, которая кратко пересказывает статьи. Перескажи это понятно и точно:\n%s",
		SummaryQuery: "Основное содержание файла",
		Persona:      "Ты точный научный ассистент. Отвечай строго по предоставленному контексту и на русском языке.",
	},
}

// Languages lists the supported language codes.
func Languages() []string { return []string{"en", "ru"} }

// Assembler renders prompts for the answer and summarize operations.
type Assembler struct {
	t Templates
}

// New returns an assembler for lang. Unknown languages are rejected.
func New(lang string) (*Assembler, error) {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		lang = "en"
	}
	t, ok := languages[lang]
	if !ok {
		return nil, fmt.Errorf("unsupported prompt language %q (supported: %s)", lang, strings.Join(Languages(), ", "))
	}
	return &Assembler{t: t}, nil
}

func (a *Assembler) Answer(context, question string) string {
	return fmt.Sprintf(a.t.Answer, context, question)
}

func (a *Assembler) Summary(context string) string {
	return fmt.Sprintf(a.t.Summary, context)
}

func (a *Assembler) SummaryQuery() string { return a.t.SummaryQuery }

func (a *Assembler) Persona() string { return a.t.Persona }
