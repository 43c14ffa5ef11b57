package rag

import (
	"context"
	"fmt"
	"time"
)

// Evaluator scores generated answers against their retrieved context,
// bounded by a wall-clock timeout. It never fails: any scorer error or
// timeout degrades to a fallback result with the error recorded.
type Evaluator struct {
	scorer  Scorer
	timeout time.Duration
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(scorer Scorer, timeout time.Duration) *Evaluator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Evaluator{scorer: scorer, timeout: timeout}
}

type scoreOutcome struct {
	metrics map[string]float64
	err     error
}

// Evaluate scores one (question, answer, contexts) record. On timeout the
// in-flight scorer call is abandoned, not awaited.
func (e *Evaluator) Evaluate(ctx context.Context, question, answer string, contexts []string) EvaluationResult {
	start := time.Now()

	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	// Buffered so the abandoned goroutine can deliver after a timeout
	// without leaking.
	outcomeCh := make(chan scoreOutcome, 1)
	go func() {
		metrics, err := e.scorer.Score(cctx, []Record{{
			Question: question,
			Answer:   answer,
			Contexts: contexts,
		}})
		if err != nil {
			outcomeCh <- scoreOutcome{err: err}
			return
		}
		if len(metrics) != 1 {
			outcomeCh <- scoreOutcome{err: fmt.Errorf("scorer returned %d results for 1 record", len(metrics))}
			return
		}
		outcomeCh <- scoreOutcome{metrics: metrics[0]}
	}()

	select {
	case outcome := <-outcomeCh:
		if outcome.err != nil {
			if cctx.Err() == context.DeadlineExceeded {
				return fallbackResult(fmt.Sprintf("Evaluation timeout after %gs", e.timeout.Seconds()))
			}
			return fallbackResult(outcome.err.Error())
		}
		if len(outcome.metrics) == 0 {
			return fallbackResult("scorer returned no metrics")
		}
		return successResult(outcome.metrics, time.Since(start))
	case <-cctx.Done():
		if cctx.Err() == context.DeadlineExceeded {
			return fallbackResult(fmt.Sprintf("Evaluation timeout after %gs", e.timeout.Seconds()))
		}
		return fallbackResult(cctx.Err().Error())
	}
}

func successResult(metrics map[string]float64, elapsed time.Duration) EvaluationResult {
	var result EvaluationResult
	if v, ok := metrics[MetricFaithfulness]; ok {
		result.Faithfulness = &v
	}
	if v, ok := metrics[MetricAnswerRelevancy]; ok {
		result.AnswerRelevancy = &v
	}
	ms := float64(elapsed.Microseconds()) / 1000.0
	result.EvaluationTimeMs = &ms
	return result
}

func fallbackResult(msg string) EvaluationResult {
	return EvaluationResult{Error: &msg}
}
