// Package summarizer builds short extractive summaries of indexed documents.
package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

var (
	tokenPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+(?:[.,]\p{N}+)*`)
	// A sentence ends at terminal punctuation followed by space, or at a blank line.
	sentencePattern = regexp.MustCompile(`(?s).+?(?:[.!?](?:\s|$)|\n\s*\n|$)`)
)

// FrequencySummarizer ranks sentences by the normalized frequency of their
// content words and returns the best ones in document order.
type FrequencySummarizer struct {
	stopwords map[string]struct{}
	// MaxSentenceRunes skips run-on sentences, typically extraction debris
	// such as flattened tables.
	MaxSentenceRunes int
}

// NewFrequencySummarizer creates a frequency-based sentence ranker.
func NewFrequencySummarizer() *FrequencySummarizer {
	return &FrequencySummarizer{stopwords: defaultStopwords(), MaxSentenceRunes: 400}
}

type scored struct {
	idx   int
	score float64
}

// Summarize returns up to maxSentences sentences of text. A non-positive
// maxSentences falls back to 2.
func (s *FrequencySummarizer) Summarize(text string, maxSentences int) (string, error) {
	if maxSentences <= 0 {
		maxSentences = 2
	}
	sentences := s.sentences(text)
	if len(sentences) == 0 {
		return "", nil
	}

	freq := map[string]float64{}
	tokens := make([][]string, len(sentences))
	for i, sent := range sentences {
		tokens[i] = s.contentTokens(sent)
		for _, tok := range tokens[i] {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}

	ranked := make([]scored, 0, len(sentences))
	for i, toks := range tokens {
		if len(toks) == 0 {
			continue
		}
		sum := 0.0
		for _, tok := range toks {
			sum += freq[tok] / maxF
		}
		ranked = append(ranked, scored{idx: i, score: sum / math.Sqrt(float64(len(toks)))})
	}
	if len(ranked) == 0 {
		return sentences[0], nil
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if maxSentences > len(ranked) {
		maxSentences = len(ranked)
	}

	selected := make([]int, 0, maxSentences)
	for _, r := range ranked[:maxSentences] {
		selected = append(selected, r.idx)
	}
	sort.Ints(selected)
	out := make([]string, len(selected))
	for i, idx := range selected {
		out[i] = sentences[idx]
	}
	return strings.Join(out, " "), nil
}

// sentences splits text and drops duplicates and over-long fragments.
func (s *FrequencySummarizer) sentences(text string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, raw := range sentencePattern.FindAllString(text, -1) {
		sent := strings.Join(strings.Fields(raw), " ")
		if sent == "" {
			continue
		}
		if s.MaxSentenceRunes > 0 && utf8.RuneCountInString(sent) > s.MaxSentenceRunes {
			continue
		}
		key := strings.ToLower(sent)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, sent)
	}
	return out
}

func (s *FrequencySummarizer) contentTokens(sentence string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(sentence), -1)
	out := raw[:0]
	for _, tok := range raw {
		if _, stop := s.stopwords[tok]; !stop {
			out = append(out, tok)
		}
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "its", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "should", "now",
		"also", "may", "not", "no", "has", "have", "had", "which", "there", "their", "they", "we", "our", "you", "your",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
