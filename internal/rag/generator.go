package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/efebarandurmaz/lectern/internal/llm"
	"github.com/efebarandurmaz/lectern/internal/observability"
	"github.com/efebarandurmaz/lectern/internal/vector"
)

const answerSystemPrompt = `You are a helpful assistant that answers questions using only the provided context.
If the context does not contain the answer, say so plainly instead of guessing.`

// Generator orchestrates retrieval-augmented answering: retrieve top-k
// chunks, generate an answer conditioned on them, optionally evaluate it.
type Generator struct {
	store       vector.Store
	provider    llm.Provider
	evaluator   *Evaluator // nil disables evaluation entirely
	topK        int
	temperature float64
}

// GeneratorConfig configures a Generator.
type GeneratorConfig struct {
	TopK        int
	Temperature float64
}

// NewGenerator creates a Generator. The evaluator may be nil when
// evaluation is disabled by configuration.
func NewGenerator(store vector.Store, provider llm.Provider, evaluator *Evaluator, cfg GeneratorConfig) *Generator {
	topK := cfg.TopK
	if topK <= 0 {
		topK = 4
	}
	return &Generator{
		store:       store,
		provider:    provider,
		evaluator:   evaluator,
		topK:        topK,
		temperature: cfg.Temperature,
	}
}

// Retrieve returns the top-k chunks most similar to the question. k <= 0
// uses the configured default.
func (g *Generator) Retrieve(ctx context.Context, question string, k int) ([]vector.Chunk, error) {
	if k <= 0 {
		k = g.topK
	}
	return g.store.Search(ctx, question, k)
}

// Generate produces an answer conditioned on the given chunks. A failure
// here is terminal for the request: there is no answer to return.
func (g *Generator) Generate(ctx context.Context, question string, contexts []vector.Chunk) (string, error) {
	ctx, span := observability.StartPipelineSpan(ctx, "generate")
	defer span.End()

	var b strings.Builder
	b.WriteString("Context:\n\n")
	for i, c := range contexts {
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, c.Content)
	}
	fmt.Fprintf(&b, "Question: %s", question)

	temp := g.temperature
	resp, err := g.provider.Complete(ctx, &llm.Prompt{
		SystemPrompt: answerSystemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: b.String()}},
	}, &llm.RequestOptions{Temperature: &temp})
	if err != nil {
		observability.RecordError(span, err)
		return "", fmt.Errorf("generating answer: %w", err)
	}
	observability.RecordLLMMetrics(span, resp.InputTokens, resp.OutputTokens)

	answer := llm.StripThinkingTags(resp.Content)
	if answer == "" {
		err := fmt.Errorf("generation returned an empty answer")
		observability.RecordError(span, err)
		return "", err
	}
	return answer, nil
}

// QueryWithSources retrieves context for the question and generates an
// answer, returning the attributed sources in retrieval order.
func (g *Generator) QueryWithSources(ctx context.Context, question string) (string, []Source, error) {
	ctx, span := observability.StartPipelineSpan(ctx, "retrieve")
	chunks, err := g.Retrieve(ctx, question, 0)
	if err != nil {
		observability.RecordError(span, err)
		span.End()
		return "", nil, fmt.Errorf("retrieving context: %w", err)
	}
	span.End()

	answer, err := g.Generate(ctx, question, chunks)
	if err != nil {
		return "", nil, err
	}

	sources := make([]Source, len(chunks))
	for i, c := range chunks {
		sources[i] = Source{Content: c.Content, Metadata: c.Metadata}
	}
	return answer, sources, nil
}

// Query runs the full pipeline. Evaluation runs only when requested and
// configured, and its failure or timeout never fails the request: the
// answer already produced is returned with the error recorded on the
// evaluation result.
func (g *Generator) Query(ctx context.Context, question string, includeSources, enableEvaluation bool) (*QueryResult, error) {
	answer, sources, err := g.QueryWithSources(ctx, question)
	if err != nil {
		return nil, err
	}

	result := &QueryResult{
		Question: question,
		Answer:   answer,
	}
	if includeSources {
		result.Sources = sources
	}

	if enableEvaluation && g.evaluator != nil {
		contexts := make([]string, len(sources))
		for i, s := range sources {
			contexts[i] = s.Content
		}
		evaluation := g.evaluator.Evaluate(ctx, question, answer, contexts)
		result.Evaluation = &evaluation
	}

	return result, nil
}
