// Package handler exposes the interactive session over HTTP. Every mutating
// endpoint returns the full session snapshot so the caller always renders
// from consistent state.
package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/embeddinglab/wordvec-lab/internal/history"
	"github.com/embeddinglab/wordvec-lab/internal/query"
	"github.com/embeddinglab/wordvec-lab/internal/rankcache"
	"github.com/embeddinglab/wordvec-lab/internal/session"
	"github.com/embeddinglab/wordvec-lab/pkg/apperrors"
	"github.com/embeddinglab/wordvec-lab/pkg/config"
	"github.com/embeddinglab/wordvec-lab/pkg/logger"
)

const maxBodyBytes = 8 << 20

type Handler struct {
	session *session.Session
	cache   *rankcache.Cache
	history *history.Store
	logger  *slog.Logger
}

func New(sess *session.Session, cache *rankcache.Cache, hist *history.Store) *Handler {
	return &Handler{
		session: sess,
		cache:   cache,
		history: hist,
		logger:  slog.Default().With("component", "session-handler"),
	}
}

// Register wires every endpoint onto the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/corpus", h.SetCorpus)
	mux.HandleFunc("POST /api/v1/corpus/sentence", h.AppendSentence)
	mux.HandleFunc("POST /api/v1/init", h.Init)
	mux.HandleFunc("POST /api/v1/train", h.Train)
	mux.HandleFunc("POST /api/v1/train/continue", h.TrainContinue)
	mux.HandleFunc("POST /api/v1/query", h.SetQueryIn)
	mux.HandleFunc("POST /api/v1/query/status", h.UpdateQueryStatus)
	mux.HandleFunc("GET /api/v1/state", h.State)
	mux.HandleFunc("GET /api/v1/validate", h.Validate)
	mux.HandleFunc("GET /api/v1/rankings", h.Rankings)
	mux.HandleFunc("GET /api/v1/history", h.History)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

type corpusRequest struct {
	Text string `json:"text"`
}

func (h *Handler) SetCorpus(w http.ResponseWriter, r *http.Request) {
	var req corpusRequest
	if !h.decode(w, r, &req) {
		return
	}
	snap := h.session.SetCorpus(req.Text)
	h.writeJSON(w, http.StatusOK, snap)
}

type sentenceRequest struct {
	Sentence string `json:"sentence"`
}

func (h *Handler) AppendSentence(w http.ResponseWriter, r *http.Request) {
	var req sentenceRequest
	if !h.decode(w, r, &req) {
		return
	}
	count, err := h.session.AppendSentence(req.Sentence)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"num_sentences": count})
}

// initRequest carries per-session hyperparameter overrides. Absent fields
// keep the configured defaults, which is why decoding happens over a
// pre-filled struct.
type initRequest struct {
	HiddenSize int     `json:"hidden_size"`
	Alpha      float64 `json:"alpha"`
	MinAlpha   float64 `json:"min_alpha"`
	Window     int     `json:"window"`
	MinCount   int     `json:"min_count"`
	Negative   int     `json:"negative"`
	Iter       int     `json:"iter"`
	SkipGram   bool    `json:"skip_gram"`
	CBOWMean   bool    `json:"cbow_mean"`
	Seed       int64   `json:"seed"`
}

func (h *Handler) Init(w http.ResponseWriter, r *http.Request) {
	d := h.session.Defaults()
	req := initRequest{
		HiddenSize: d.HiddenSize,
		Alpha:      d.Alpha,
		MinAlpha:   d.MinAlpha,
		Window:     d.Window,
		MinCount:   d.MinCount,
		Negative:   d.Negative,
		Iter:       d.Iter,
		SkipGram:   d.SkipGram,
		CBOWMean:   d.CBOWMean,
		Seed:       d.Seed,
	}
	if !h.decode(w, r, &req) {
		return
	}
	cfg := config.TrainingConfig{
		HiddenSize: req.HiddenSize,
		Alpha:      req.Alpha,
		MinAlpha:   req.MinAlpha,
		Window:     req.Window,
		MinCount:   req.MinCount,
		Negative:   req.Negative,
		Iter:       req.Iter,
		SkipGram:   req.SkipGram,
		CBOWMean:   req.CBOWMean,
		Seed:       req.Seed,
	}
	snap, err := h.session.Init(cfg)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.invalidateCache(r)
	h.writeJSON(w, http.StatusOK, snap)
}

// trainRequest bounds a burst. Iterations at or below zero means the burst
// runs deadline-only, same as train/continue.
type trainRequest struct {
	Iterations int  `json:"iterations"`
	Watched    bool `json:"watched"`
}

func (h *Handler) Train(w http.ResponseWriter, r *http.Request) {
	var req trainRequest
	if !h.decode(w, r, &req) {
		return
	}
	snap, err := h.session.Train(req.Iterations, req.Watched)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) TrainContinue(w http.ResponseWriter, r *http.Request) {
	snap, err := h.session.TrainContinue()
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

type queryRequest struct {
	Terms []string `json:"terms"`
}

func (h *Handler) SetQueryIn(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !h.decode(w, r, &req) {
		return
	}
	snap, err := h.session.SetQueryIn(req.Terms)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

type statusRequest struct {
	Term   string `json:"term"`
	Status string `json:"status"`
}

func (h *Handler) UpdateQueryStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Term == "" {
		h.writeError(w, http.StatusBadRequest, "term is required")
		return
	}
	snap, err := h.session.UpdateQueryStatus(req.Term, req.Status)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.session.Snapshot())
}

func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("term")
	if term == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'term' is required")
		return
	}
	signed := false
	if s := r.URL.Query().Get("signed"); s != "" {
		parsed, err := strconv.ParseBool(s)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "query parameter 'signed' must be a boolean")
			return
		}
		signed = parsed
	}
	h.writeJSON(w, http.StatusOK, h.session.ValidateTerm(term, signed))
}

// Rankings serves an ad-hoc ranking for a comma-separated signed term list
// without touching session query state. Results are cached per training
// version when Redis is configured.
func (h *Handler) Rankings(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	raw := r.URL.Query().Get("terms")
	if raw == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'terms' is required")
		return
	}
	terms := splitTerms(raw)

	signed := make([]query.SignedTerm, 0, len(terms))
	for _, t := range terms {
		signed = append(signed, query.ParseSigned(t))
	}
	queryKey := query.Key(signed)

	var ranking *query.Ranking
	var version int
	var err error
	cacheHit := false

	if h.cache != nil {
		version = h.session.Snapshot().InstanceCount
		ranking, cacheHit, err = h.cache.GetOrCompute(ctx, queryKey, version, func() (*query.Ranking, error) {
			rk, _, peekErr := h.session.PeekRanking(terms)
			return rk, peekErr
		})
	} else {
		ranking, version, err = h.session.PeekRanking(terms)
	}
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	log.Info("ranking served",
		"terms", raw,
		"records", len(ranking.Records),
		"cache_hit", cacheHit,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"version": version,
		"ranking": ranking,
	})
}

// History returns the persisted rank trajectory of one term under one query.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeAppError(w, r, fmt.Errorf("%w: rank history store", apperrors.ErrStoreDisabled))
		return
	}
	queryKey := r.URL.Query().Get("query")
	term := r.URL.Query().Get("term")
	if queryKey == "" || term == "" {
		h.writeError(w, http.StatusBadRequest, "query parameters 'query' and 'term' are required")
		return
	}
	entries, err := h.history.TermHistory(r.Context(), queryKey, term)
	if err != nil {
		h.logger.Error("history lookup failed", "query", queryKey, "term", term, "error", err)
		h.writeError(w, http.StatusInternalServerError, "history lookup failed")
		return
	}
	if entries == nil {
		entries = []query.HistoryEntry{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"query":   queryKey,
		"term":    term,
		"history": entries,
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) invalidateCache(r *http.Request) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation after init failed", "error", err)
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func splitTerms(raw string) []string {
	var terms []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
	}
	h.writeError(w, status, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
