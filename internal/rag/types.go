package rag

// Source is one retrieved chunk attributed in a response, in retrieval
// order.
type Source struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// EvaluationResult carries answer-quality scores. Invariant: Error is
// non-nil exactly when both scores and the timing are nil.
type EvaluationResult struct {
	Faithfulness     *float64 `json:"faithfulness"`
	AnswerRelevancy  *float64 `json:"answer_relevancy"`
	EvaluationTimeMs *float64 `json:"evaluation_time_ms"`
	Error            *string  `json:"error"`
}

// QueryResult is the full answer to one question. Sources is nil unless
// requested; Evaluation is nil unless evaluation ran.
type QueryResult struct {
	Question   string            `json:"question"`
	Answer     string            `json:"answer"`
	Sources    []Source          `json:"sources"`
	Evaluation *EvaluationResult `json:"evaluation"`
}
