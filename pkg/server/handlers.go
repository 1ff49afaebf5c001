package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/zen-systems/modelcompare/pkg/adapter"
	"github.com/zen-systems/modelcompare/pkg/compare"
	"github.com/zen-systems/modelcompare/pkg/store"
	"github.com/zen-systems/modelcompare/pkg/stream"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type compareRequest struct {
	Prompt string `json:"prompt"`
}

// CompareResponse is the body of POST /api/compare.
type CompareResponse struct {
	ComparisonID string            `json:"comparisonId"`
	Responses    []compare.Outcome `json:"responses"`
	Metrics      compare.Metrics   `json:"metrics"`
}

// Pagination describes one page of a listing.
type Pagination struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

// ListResponse is the body of GET /api/comparisons.
type ListResponse struct {
	Comparisons []store.Comparison `json:"comparisons"`
	Pagination  Pagination         `json:"pagination"`
}

type createComparisonRequest struct {
	Prompt    string             `json:"prompt"`
	Responses []adapter.Response `json:"responses"`
	// Metrics are recomputed from Responses when omitted.
	Metrics *compare.Metrics `json:"metrics"`
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	prompt, ok := s.readPrompt(w, r)
	if !ok {
		return
	}
	logger := s.requestLogger(r)

	ctx, cancel := s.compareContext(r.Context())
	defer cancel()

	result, err := s.comparer.Compare(ctx, prompt)
	if errors.Is(err, compare.ErrEmptyPrompt) {
		writeError(w, http.StatusBadRequest, msgPromptRequired)
		return
	}
	if err != nil {
		logger.Error("comparison failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	saved, err := s.persist(r.Context(), result)
	if err != nil {
		logger.Error("persist comparison", zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	writeJSON(w, http.StatusOK, CompareResponse{
		ComparisonID: saved.ID,
		Responses:    result.Outcomes,
		Metrics:      result.Metrics,
	})
}

func (s *Server) handleCompareStream(w http.ResponseWriter, r *http.Request) {
	prompt, ok := s.readPrompt(w, r)
	if !ok {
		return
	}
	logger := s.requestLogger(r)

	ctx, cancel := s.compareContext(r.Context())
	defer cancel()

	w.Header().Set("Content-Type", stream.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	result, err := s.comparer.Stream(ctx, prompt, stream.NewEncoder(w))
	if err != nil {
		// Headers are already out; the client sees a stream without end.
		logger.Error("streamed comparison failed", zap.Error(err))
		return
	}

	if saved, err := s.persist(r.Context(), result); err != nil {
		logger.Error("persist streamed comparison", zap.Error(err))
	} else {
		logger.Debug("streamed comparison saved", zap.String("comparison_id", saved.ID))
	}
}

func (s *Server) handleListComparisons(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	page, limit = store.NormalizePage(page, limit)

	comparisons, total, err := s.gateway.List(r.Context(), page, limit)
	if err != nil {
		s.requestLogger(r).Error("list comparisons", zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgListFailed)
		return
	}
	if comparisons == nil {
		comparisons = []store.Comparison{}
	}

	writeJSON(w, http.StatusOK, ListResponse{
		Comparisons: comparisons,
		Pagination: Pagination{
			Total:      total,
			Page:       page,
			Limit:      limit,
			TotalPages: (total + limit - 1) / limit,
		},
	})
}

func (s *Server) handleCreateComparison(w http.ResponseWriter, r *http.Request) {
	var req createComparisonRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, msgPromptRequired)
		return
	}

	metrics := compare.Aggregate(req.Responses)
	if req.Metrics != nil {
		metrics = *req.Metrics
	}

	saved, err := s.gateway.Create(r.Context(), req.Prompt, req.Responses, metrics)
	if err != nil {
		s.requestLogger(r).Error("create comparison", zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgCreateFailed)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleGetComparison(w http.ResponseWriter, r *http.Request) {
	c, err := s.gateway.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, msgNotFound)
		return
	}
	if err != nil {
		s.requestLogger(r).Error("get comparison", zap.String("id", r.PathValue("id")), zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgGetFailed)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// readPrompt decodes {prompt} and answers 400 itself when it is unusable.
func (s *Server) readPrompt(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req compareRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return "", false
	}
	if strings.TrimSpace(req.Prompt) == "" {
		s.requestLogger(r).Warn("missing prompt in request")
		writeError(w, http.StatusBadRequest, msgPromptRequired)
		return "", false
	}
	return req.Prompt, true
}

// persist stores the successful responses, ignoring client cancellation.
func (s *Server) persist(ctx context.Context, result *compare.Result) (*store.Comparison, error) {
	return s.gateway.Create(context.WithoutCancel(ctx), result.Prompt, result.Successful(), result.Metrics)
}

func (s *Server) compareContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.opts.CompareTimeout > 0 {
		return context.WithTimeout(parent, s.opts.CompareTimeout)
	}
	return context.WithCancel(parent)
}

func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	return s.logger.With(zap.String("request_id", RequestID(r.Context())))
}
