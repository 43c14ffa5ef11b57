// Package server provides the HTTP API, health endpoints, and graceful
// shutdown for the question answering service.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/efebarandurmaz/lectern/internal/chunker"
	"github.com/efebarandurmaz/lectern/internal/observability"
	"github.com/efebarandurmaz/lectern/internal/rag"
	"github.com/efebarandurmaz/lectern/internal/vector"
)

// maxQuestionLen bounds question length in characters, not bytes.
const maxQuestionLen = 1000

// maxUploadBytes caps the multipart form memory buffer.
const maxUploadBytes = 32 << 20

// Answerer runs the full question answering pipeline. Satisfied by
// rag.Generator.
type Answerer interface {
	Query(ctx context.Context, question string, includeSources, enableEvaluation bool) (*rag.QueryResult, error)
}

// Config holds API server configuration.
type Config struct {
	ListenAddr string // e.g. ":8000"
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{ListenAddr: ":8000"}
}

// Server is the API HTTP server.
type Server struct {
	config   *Config
	chunker  *chunker.Chunker
	store    vector.Store
	answerer Answerer
	health   *HealthServer
	metrics  *observability.Metrics
	server   *http.Server
}

// NewServer creates the API server. The health server and metrics registry
// may be nil; their endpoints are then not mounted.
func NewServer(config *Config, ch *chunker.Chunker, store vector.Store, answerer Answerer, health *HealthServer, metrics *observability.Metrics) *Server {
	s := &Server{
		config:   config,
		chunker:  ch,
		store:    store,
		answerer: answerer,
		health:   health,
		metrics:  metrics,
	}

	mux := http.NewServeMux()

	// API routes
	mux.HandleFunc("/documents/upload", s.handleUpload)
	mux.HandleFunc("/documents/info", s.handleInfo)
	mux.HandleFunc("/documents/list", s.handleList)
	mux.HandleFunc("/documents/collection", s.handleDeleteCollection)
	mux.HandleFunc("/query", s.handleQuery)
	mux.HandleFunc("/query/search", s.handleSearch)

	if health != nil {
		probes := health.Handler()
		mux.Handle("/health", probes)
		mux.Handle("/ready", probes)
		mux.Handle("/live", probes)
	}
	if metrics != nil {
		mux.Handle("/metrics", metrics.Handler())
	}

	// Wrap with CORS and logging middleware
	handler := corsMiddleware(loggingMiddleware(mux))

	s.server = &http.Server{
		Addr:         config.ListenAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // generation and evaluation are slow
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the composed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start begins serving the API.
func (s *Server) Start() error {
	slog.Info("Starting API server", "addr", s.config.ListenAddr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	slog.Info("Stopping API server")
	return s.server.Shutdown(ctx)
}

type uploadResponse struct {
	Message       string   `json:"message"`
	Filename      string   `json:"filename"`
	ChunksCreated int      `json:"chunks_created"`
	DocumentIDs   []string `json:"document_ids"`
}

// handleUpload handles POST /documents/upload
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ctx, span := observability.StartPipelineSpan(r.Context(), "upload")
	defer span.End()

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Missing file field")
		return
	}
	defer file.Close()

	chunks, err := s.chunker.Process(file, header.Filename)
	if err != nil {
		observability.RecordError(span, err)
		if errors.Is(err, chunker.ErrUnsupportedFormat) || errors.Is(err, chunker.ErrEmptyContent) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to process document: "+err.Error())
		return
	}

	ids, err := s.store.Add(ctx, chunks)
	if err != nil {
		observability.RecordError(span, err)
		respondError(w, http.StatusInternalServerError, "Failed to store document: "+err.Error())
		return
	}

	if s.metrics != nil {
		s.metrics.Inc("lectern_documents_uploaded_total")
	}
	slog.Info("Document uploaded", "filename", header.Filename, "chunks", len(chunks))

	respondJSON(w, http.StatusOK, uploadResponse{
		Message:       "File uploaded and processed successfully",
		Filename:      header.Filename,
		ChunksCreated: len(chunks),
		DocumentIDs:   ids,
	})
}

type infoResponse struct {
	CollectionName string `json:"collection_name"`
	TotalDocuments uint64 `json:"total_documents"`
	VectorsCount   uint64 `json:"vectors_count"`
	Status         string `json:"status"`
}

// handleInfo handles GET /documents/info
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	info, err := s.store.CollectionInfo(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to read collection info: "+err.Error())
		return
	}

	// Vectors are indexed asynchronously; fall back to the point count
	// until the index catches up.
	vectors := info.IndexedVectorsCount
	if vectors == 0 {
		vectors = info.PointsCount
	}

	respondJSON(w, http.StatusOK, infoResponse{
		CollectionName: info.Name,
		TotalDocuments: info.PointsCount,
		VectorsCount:   vectors,
		Status:         info.Status,
	})
}

type listResponse struct {
	Documents []string `json:"documents"`
	Count     int      `json:"count"`
}

// handleList handles GET /documents/list
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	sources, err := s.store.UniqueSources(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list documents: "+err.Error())
		return
	}
	if sources == nil {
		sources = []string{}
	}

	respondJSON(w, http.StatusOK, listResponse{Documents: sources, Count: len(sources)})
}

// handleDeleteCollection handles DELETE /documents/collection
func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := s.store.DeleteCollection(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to delete collection: "+err.Error())
		return
	}

	slog.Info("Collection deleted")
	respondJSON(w, http.StatusOK, map[string]string{"message": "Collection deleted successfully"})
}

type queryRequest struct {
	Question         string `json:"question"`
	IncludeSources   *bool  `json:"include_sources"`
	EnableEvaluation bool   `json:"enable_evaluation"`
}

type queryResponse struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	// Pointer so a requested-but-empty source list still serializes as [].
	Sources          *[]rag.Source         `json:"sources,omitempty"`
	Evaluation       *rag.EvaluationResult `json:"evaluation,omitempty"`
	ProcessingTimeMs float64               `json:"processing_time_ms"`
}

// handleQuery handles POST /query
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if msg := validateQuestion(req.Question); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	includeSources := true
	if req.IncludeSources != nil {
		includeSources = *req.IncludeSources
	}

	start := time.Now()
	result, err := s.answerer.Query(r.Context(), req.Question, includeSources, req.EnableEvaluation)
	if err != nil {
		if s.metrics != nil {
			s.metrics.Inc("lectern_queries_failed_total")
		}
		respondError(w, http.StatusInternalServerError, "Query failed: "+err.Error())
		return
	}

	if s.metrics != nil {
		s.metrics.Inc("lectern_queries_total")
		s.metrics.ObserveDuration("lectern_query_duration_seconds", start)
	}

	resp := queryResponse{
		Question:         result.Question,
		Answer:           result.Answer,
		Evaluation:       result.Evaluation,
		ProcessingTimeMs: float64(time.Since(start).Microseconds()) / 1000.0,
	}
	if includeSources {
		sources := result.Sources
		if sources == nil {
			sources = []rag.Source{}
		}
		resp.Sources = &sources
	}

	respondJSON(w, http.StatusOK, resp)
}

type searchRequest struct {
	Question string `json:"question"`
	K        int    `json:"k"`
}

type searchResult struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
	Score    float32        `json:"score"`
}

type searchResponse struct {
	Query   string         `json:"query"`
	Results []searchResult `json:"results"`
	Count   int            `json:"count"`
}

// handleSearch handles POST /query/search
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if msg := validateQuestion(req.Question); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	scored, err := s.store.SearchWithScores(r.Context(), req.Question, req.K)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Search failed: "+err.Error())
		return
	}

	results := make([]searchResult, len(scored))
	for i, sc := range scored {
		results[i] = searchResult{
			Content:  sc.Chunk.Content,
			Metadata: sc.Chunk.Metadata,
			Score:    sc.Score,
		}
	}

	respondJSON(w, http.StatusOK, searchResponse{
		Query:   req.Question,
		Results: results,
		Count:   len(results),
	})
}

// validateQuestion returns a message when the question is unusable, "" when
// it is fine. Length is counted in characters.
func validateQuestion(q string) string {
	if strings.TrimSpace(q) == "" {
		return "Question is required"
	}
	if utf8.RuneCountInString(q) > maxQuestionLen {
		return fmt.Sprintf("Question exceeds %d characters", maxQuestionLen)
	}
	return ""
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// respondError writes a JSON error body with the given status.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// corsMiddleware adds CORS headers for browser clients
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}
