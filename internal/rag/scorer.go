package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/efebarandurmaz/lectern/internal/llm"
)

// Metric names produced by scorers.
const (
	MetricFaithfulness    = "faithfulness"
	MetricAnswerRelevancy = "answer_relevancy"
)

// Record is one evaluation sample: a question, the generated answer, and
// the retrieved context it was conditioned on.
type Record struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Contexts []string `json:"contexts"`
}

// Scorer computes quality metrics for evaluation records. A metric the
// scorer cannot determine is omitted from the record's map, never invented.
type Scorer interface {
	Score(ctx context.Context, records []Record) ([]map[string]float64, error)
}

const judgeSystemPrompt = `You are a strict evaluator of retrieval-augmented answers.
Given a question, the retrieved context, and a generated answer, score two metrics:
- faithfulness: are the answer's claims supported by the context? (0.0 = fabricated, 1.0 = fully grounded)
- answer_relevancy: does the answer address the question? (0.0 = off-topic, 1.0 = directly on point)
Respond with JSON only: {"faithfulness": <float>, "answer_relevancy": <float>}`

// LLMScorer scores records by asking a judge model for a JSON verdict. The
// judge model is configured independently from the generation model.
type LLMScorer struct {
	provider    llm.Provider
	temperature float64
}

// NewLLMScorer creates a scorer backed by the given provider.
func NewLLMScorer(provider llm.Provider, temperature float64) *LLMScorer {
	return &LLMScorer{provider: provider, temperature: temperature}
}

// Score evaluates each record with one judge call. Metrics missing from the
// judge's verdict are left out of the result map.
func (s *LLMScorer) Score(ctx context.Context, records []Record) ([]map[string]float64, error) {
	results := make([]map[string]float64, len(records))
	for i, rec := range records {
		metrics, err := s.scoreOne(ctx, rec)
		if err != nil {
			return nil, err
		}
		results[i] = metrics
	}
	return results, nil
}

func (s *LLMScorer) scoreOne(ctx context.Context, rec Record) (map[string]float64, error) {
	prompt := &llm.Prompt{
		SystemPrompt: judgeSystemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: fmt.Sprintf(
				"Question:\n%s\n\nContext:\n%s\n\nAnswer:\n%s",
				rec.Question, strings.Join(rec.Contexts, "\n---\n"), rec.Answer,
			)},
		},
	}

	temp := s.temperature
	resp, err := s.provider.Complete(ctx, prompt, &llm.RequestOptions{Temperature: &temp})
	if err != nil {
		return nil, fmt.Errorf("judge call: %w", err)
	}

	raw := llm.ExtractJSON(resp.Content)
	if raw == "" {
		return nil, fmt.Errorf("judge returned no JSON verdict: %q", resp.Content)
	}

	var verdict struct {
		Faithfulness    *float64 `json:"faithfulness"`
		AnswerRelevancy *float64 `json:"answer_relevancy"`
	}
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return nil, fmt.Errorf("parsing judge verdict: %w", err)
	}

	metrics := make(map[string]float64, 2)
	if verdict.Faithfulness != nil {
		metrics[MetricFaithfulness] = clamp01(*verdict.Faithfulness)
	}
	if verdict.AnswerRelevancy != nil {
		metrics[MetricAnswerRelevancy] = clamp01(*verdict.AnswerRelevancy)
	}
	return metrics, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
