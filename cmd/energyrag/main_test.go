package main

import (
	"bytes"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"

	"energyrag/internal/config"
	"energyrag/internal/domain"
	"energyrag/internal/service"
)

func sorted(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

func TestRegistriesCoverConfiguredProviders(t *testing.T) {
	assert.Equal(t, sorted(config.EmbeddingProviders), embeddingRegistry().Names())
	assert.Equal(t, sorted(config.LLMProviders), generationRegistry().Names())
}

func TestExampleConfigBuildsOfflineEmbedder(t *testing.T) {
	cfg := config.Example()
	emb, err := embeddingRegistry().New(cfg.Embeddings["offline"])
	assert.NoError(t, err)
	assert.Equal(t, 512, emb.Dimensions())
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, domain.IndexReport{
		Documents: []domain.DocumentReport{{Title: "Boiler Tuning", Chunks: 3, Summary: "Tune burners."}},
		Failures:  []domain.DocumentFailure{{SourcePath: "scan.pdf", Error: "no text"}},
		Chunks:    3,
	})
	out := buf.String()
	assert.Contains(t, out, "Indexed 1 documents (3 chunks, 0 duplicate chunks)")
	assert.Contains(t, out, "Tune burners.")
	assert.Contains(t, out, "scan.pdf: no text")
}

func TestPrintAnswer(t *testing.T) {
	var buf bytes.Buffer
	printAnswer(&buf, service.Answer{StructuredAnswer: domain.StructuredAnswer{
		AnswerText: "Insulate the loft.",
		Citations:  []domain.Citation{{DocumentTitle: "Home Insulation"}},
	}}, false)
	assert.Contains(t, buf.String(), "Insulate the loft.")
	assert.Contains(t, buf.String(), "[1] Home Insulation")
	assert.NotContains(t, buf.String(), "Evidence")
}

func TestPrintAnswerWithEvidence(t *testing.T) {
	var buf bytes.Buffer
	hp := domain.Chunk{DocumentTitle: "Heat Pumps", Text: "COP of 3 to 4."}
	printAnswer(&buf, service.Answer{
		StructuredAnswer: domain.StructuredAnswer{AnswerText: "Use a heat pump."},
		Context: domain.RetrievedContext{Items: []domain.ScoredChunk{
			{Chunk: hp, Score: 0.8},
			{Chunk: domain.Chunk{DocumentTitle: "Boilers", Text: "Condensing boilers."}, Score: 0.5},
			{Chunk: hp, Score: 0.4},
		}},
	}, true)
	out := buf.String()
	assert.Contains(t, out, "Evidence from 2 documents: Heat Pumps; Boilers")
	assert.Contains(t, out, "[3] Heat Pumps (score 0.400)")
}
