package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/nlquery/nlquery/internal/execute"
	"github.com/nlquery/nlquery/internal/pipeline"
	"github.com/nlquery/nlquery/internal/safety"
	"github.com/nlquery/nlquery/internal/schema"
	"github.com/nlquery/nlquery/internal/translate"
)

type queryRequest struct {
	Question       string          `json:"question"`
	DryRun         bool            `json:"dry_run"`
	AllowMutations bool            `json:"allow_mutations"`
	History        []queryExchange `json:"history,omitempty"`
}

type queryExchange struct {
	Question string `json:"question"`
	SQL      string `json:"sql"`
}

type queryResponse struct {
	Status         string                `json:"status"`
	SQL            string                `json:"sql"`
	Classification safety.Classification `json:"classification"`
	RejectedReason string                `json:"rejected_reason,omitempty"`
	Columns        []string              `json:"columns,omitempty"`
	Rows           [][]any               `json:"rows,omitempty"`
	RowCount       int                   `json:"row_count,omitempty"`
	RowsAffected   int64                 `json:"rows_affected,omitempty"`
	DurationMS     int64                 `json:"duration_ms,omitempty"`
	Truncated      bool                  `json:"truncated,omitempty"`
}

func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Runner == nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "PIPELINE_UNAVAILABLE", "query pipeline is not configured", false, nil)
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "request body must be valid JSON", false, nil)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "question is required", false, nil)
		return
	}

	history := make([]translate.Exchange, 0, len(req.History))
	for _, exchange := range req.History {
		history = append(history, translate.Exchange{Question: exchange.Question, SQL: exchange.SQL})
	}

	outcome, err := deps.Runner.Run(r.Context(), pipeline.Request{
		Question:       strings.TrimSpace(req.Question),
		History:        history,
		DryRun:         req.DryRun,
		AllowMutations: req.AllowMutations,
	})
	if err != nil {
		writeRunError(w, r, err)
		return
	}

	response := queryResponse{
		Status:         string(outcome.Status),
		SQL:            outcome.SQL,
		Classification: outcome.Classification,
		RejectedReason: outcome.RejectedReason,
	}
	if outcome.Result != nil {
		response.Columns = outcome.Result.Columns
		response.Rows = outcome.Result.Rows
		response.RowCount = outcome.Result.RowCount
		response.RowsAffected = outcome.Result.RowsAffected
		response.DurationMS = outcome.Result.Duration.Milliseconds()
		response.Truncated = outcome.Result.Truncated
	}

	status := http.StatusOK
	if outcome.Status == pipeline.StatusRejected {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, response)
}

func writeRunError(w http.ResponseWriter, r *http.Request, err error) {
	var translateErr *translate.Error
	if errors.As(err, &translateErr) {
		retryable := translateErr.Kind == translate.KindTimeout ||
			translateErr.Kind == translate.KindRateLimited ||
			translateErr.Kind == translate.KindUnavailable
		writeError(r.Context(), w, http.StatusBadGateway, "TRANSLATION_FAILED", err.Error(), retryable,
			map[string]any{"kind": string(translateErr.Kind)})
		return
	}
	var execErr *execute.Error
	if errors.As(err, &execErr) {
		if execErr.Kind == execute.KindTimeout {
			writeError(r.Context(), w, http.StatusGatewayTimeout, "EXECUTION_TIMEOUT", err.Error(), true, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "EXECUTION_FAILED", err.Error(), false,
			map[string]any{"kind": string(execErr.Kind)})
		return
	}
	var introspectErr *schema.IntrospectionError
	if errors.As(err, &introspectErr) {
		writeError(r.Context(), w, http.StatusInternalServerError, "INTROSPECTION_FAILED", err.Error(), false, nil)
		return
	}
	writeError(r.Context(), w, http.StatusInternalServerError, "QUERY_FAILED", err.Error(), false, nil)
}
