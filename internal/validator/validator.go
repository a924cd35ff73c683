// Package validator turns a raw model reply into a StructuredAnswer whose
// citations are all traceable to the retrieved context.
package validator

import (
	"encoding/json"
	"fmt"
	"strings"

	"energyrag/internal/domain"
	"energyrag/internal/logger"
)

// Validate parses raw against the answer schema and filters citations
// against rc. Citations naming a title absent from rc are dropped; a chunk ID
// that does not belong to the cited document is replaced with that
// document's best-ranked chunk. Schema problems yield a *domain.ValidationError.
func Validate(raw string, rc domain.RetrievedContext) (domain.StructuredAnswer, error) {
	var answer domain.StructuredAnswer

	body, ok := extractJSON(raw)
	if !ok {
		return answer, invalid(raw, "reply does not contain a JSON object")
	}
	var instance any
	if err := json.Unmarshal([]byte(body), &instance); err != nil {
		return answer, invalid(raw, fmt.Sprintf("reply is not valid JSON: %v", err))
	}
	rs, err := resolvedSchema()
	if err != nil {
		return answer, fmt.Errorf("answer schema: %w", err)
	}
	if err := rs.Validate(instance); err != nil {
		return answer, invalid(raw, err.Error())
	}

	var parsed struct {
		Answer    string            `json:"answer"`
		Citations []domain.Citation `json:"citations"`
		Caveats   *string           `json:"caveats"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return answer, invalid(raw, fmt.Sprintf("reply does not match the answer shape: %v", err))
	}
	answer.AnswerText = strings.TrimSpace(parsed.Answer)
	if answer.AnswerText == "" {
		return answer, invalid(raw, "answer is empty")
	}
	if parsed.Caveats != nil {
		answer.Caveats = strings.TrimSpace(*parsed.Caveats)
	}
	answer.Citations = FilterCitations(parsed.Citations, rc)
	return answer, nil
}

func invalid(raw string, problems ...string) error {
	return &domain.ValidationError{Problems: problems, Raw: raw}
}

// FilterCitations keeps only citations whose title appears in rc, using the
// context's spelling of the title, and removes duplicates. The result is
// never nil.
func FilterCitations(citations []domain.Citation, rc domain.RetrievedContext) []domain.Citation {
	type doc struct {
		title  string
		top    string
		chunks map[string]struct{}
	}
	docs := make(map[string]*doc)
	for _, it := range rc.Items {
		key := titleKey(it.Chunk.DocumentTitle)
		d, ok := docs[key]
		if !ok {
			d = &doc{title: it.Chunk.DocumentTitle, top: it.Chunk.ID, chunks: map[string]struct{}{}}
			docs[key] = d
		}
		d.chunks[it.Chunk.ID] = struct{}{}
	}

	out := make([]domain.Citation, 0, len(citations))
	seen := make(map[domain.Citation]struct{})
	for _, c := range citations {
		d, ok := docs[titleKey(c.DocumentTitle)]
		if !ok {
			logger.Debug("dropping citation of unknown document %q", c.DocumentTitle)
			continue
		}
		id := strings.TrimSpace(c.ChunkID)
		if _, ok := d.chunks[id]; !ok {
			id = d.top
		}
		fixed := domain.Citation{DocumentTitle: d.title, ChunkID: id}
		if _, dup := seen[fixed]; dup {
			continue
		}
		seen[fixed] = struct{}{}
		out = append(out, fixed)
	}
	return out
}

func titleKey(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}

// extractJSON returns the outermost JSON object in s, ignoring code fences
// and any prose around it.
func extractJSON(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		if end := strings.LastIndex(s, "```"); end >= 0 {
			s = s[:end]
		}
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return "", false
	}
	return s[start : end+1], true
}
