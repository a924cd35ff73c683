// Package prompt builds the instruction and context sent to the generator.
package prompt

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"

	"energyrag/internal/domain"
	"energyrag/internal/logger"
	"energyrag/internal/validator"
)

// NoResourceAnswer is the answer the model is told to give when nothing
// relevant was retrieved.
const NoResourceAnswer = "No relevant resource was found in the document corpus for this question."

const systemText = `You are an energy-efficiency research assistant.
Answer the question using ONLY the context snippets in the user message. Do not use outside knowledge.
Cite every document you rely on by its exact title, and include the chunk id shown with the snippet.
If the context does not fully answer the question, say so explicitly in "answer" and describe what is missing in "caveats".
Never invent titles, figures or sources.
Reply with a single JSON object that satisfies this JSON schema, with no prose and no code fences:
{{.Schema}}`

const userText = `{{if .Sources -}}
Context:
{{range $i, $s := .Sources}}
[{{inc $i}}] Title: {{$s.Chunk.DocumentTitle}}
Chunk id: {{$s.Chunk.ID}}
{{$s.Chunk.Text}}
{{end}}
{{- else -}}
Context: INSUFFICIENT CONTEXT. No document in the corpus matched this question.
{{- end}}

Question: {{.Query}}
{{- if not .Sources}}

State in "answer" exactly: "{{.NoResource}}" Do not answer from general knowledge. Return an empty "citations" array.
{{- end}}`

var funcs = template.FuncMap{"inc": func(i int) int { return i + 1 }}

// Assembler renders prompts within a character budget.
type Assembler struct {
	budget int
	system *template.Template
	user   *template.Template
}

// NewAssembler returns an assembler. A budget of zero or less disables the limit.
func NewAssembler(budget int) *Assembler {
	return &Assembler{
		budget: budget,
		system: template.Must(template.New("system").Parse(systemText)),
		user:   template.Must(template.New("user").Funcs(funcs).Parse(userText)),
	}
}

// Assemble builds the prompt for query. Snippets are kept in ranking order;
// while the prompt exceeds the budget the lowest-scoring snippet is dropped.
func (a *Assembler) Assemble(query string, rc domain.RetrievedContext) domain.Prompt {
	sources := append([]domain.ScoredChunk(nil), rc.Items...)
	domain.SortScored(sources)

	system := a.render(a.system, map[string]any{"Schema": validator.SchemaJSON()})
	p := domain.Prompt{System: system}
	for {
		p.User = a.render(a.user, map[string]any{
			"Sources":    sources,
			"Query":      query,
			"NoResource": NoResourceAnswer,
		})
		p.Sources = sources
		if a.budget <= 0 || Length(p) <= a.budget || len(sources) == 0 {
			break
		}
		sources = sources[:len(sources)-1]
		p.Dropped++
	}
	if p.Dropped > 0 {
		logger.Debug("prompt budget %d: dropped %d lowest-scoring snippets", a.budget, p.Dropped)
	}
	return p
}

// Repair returns a follow-up prompt asking the model to fix a rejected reply.
func (a *Assembler) Repair(p domain.Prompt, raw string, problems []string) domain.Prompt {
	var b strings.Builder
	b.WriteString(p.User)
	b.WriteString("\n\nYour previous reply was rejected for these reasons:\n")
	for _, pr := range problems {
		fmt.Fprintf(&b, "- %s\n", pr)
	}
	b.WriteString("\nPrevious reply:\n")
	b.WriteString(truncate(raw, 2000))
	b.WriteString("\n\nReturn only a corrected JSON object that satisfies the schema.")
	return domain.Prompt{System: p.System, User: b.String(), Sources: p.Sources, Dropped: p.Dropped}
}

// Length is the size of a prompt in characters.
func Length(p domain.Prompt) int {
	return utf8.RuneCountInString(p.System) + utf8.RuneCountInString(p.User)
}

func (a *Assembler) render(t *template.Template, data any) string {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		// templates are fixed; failure here is a programming error
		panic(fmt.Sprintf("render %s prompt: %v", t.Name(), err))
	}
	return buf.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
