package handler

import (
	"context"
	"net/http"
	"strconv"

	json "github.com/goccy/go-json"
	logger "github.com/sirupsen/logrus"

	"signalmirror/src/auth"
	"signalmirror/src/model"
	"signalmirror/src/repository"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

type executionSearcher interface {
	Search(ctx context.Context, options repository.ExecutionSearchOptions) ([]model.Execution, error)
}

// SearchExecutionsHandler lists executions newest first.
// Supports pagination and filters (signalId, accountId, status).
func SearchExecutionsHandler(repo executionSearcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.GetOperatorFromContext(r.Context()); !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		query := r.URL.Query()

		signalID, ok := optionalUint(w, query.Get("signalId"), "signalId")
		if !ok {
			return
		}
		accountID, ok := optionalUint(w, query.Get("accountId"), "accountId")
		if !ok {
			return
		}

		var status *string
		if statusParam := query.Get("status"); statusParam != "" {
			switch statusParam {
			case model.ExecutionStatusPending, model.ExecutionStatusSuccess,
				model.ExecutionStatusFailed, model.ExecutionStatusRetrying:
				status = &statusParam
			default:
				http.Error(w, "invalid status", http.StatusBadRequest)
				return
			}
		}

		limit, offset, ok := pagination(w, r)
		if !ok {
			return
		}

		executions, err := repo.Search(r.Context(), repository.ExecutionSearchOptions{
			SignalID:  signalID,
			AccountID: accountID,
			Status:    status,
			Limit:     limit,
			Offset:    offset,
		})
		if err != nil {
			logger.WithError(err).Error("failed to search executions")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, executions)
	}
}

// DefaultSearchExecutionsHandler wires the handler to the read-only database.
func DefaultSearchExecutionsHandler() http.HandlerFunc {
	return SearchExecutionsHandler(repository.NewExecutionRepository().WithDB(readDB()))
}

func optionalUint(w http.ResponseWriter, raw, name string) (*uint, bool) {
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return nil, false
	}
	value := uint(id)
	return &value, true
}

func pagination(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	page := 1
	if pageParam := r.URL.Query().Get("page"); pageParam != "" {
		parsedPage, err := strconv.Atoi(pageParam)
		if err != nil || parsedPage <= 0 {
			http.Error(w, "invalid page", http.StatusBadRequest)
			return 0, 0, false
		}
		page = parsedPage
	}

	pageSize := defaultPageSize
	if sizeParam := r.URL.Query().Get("pageSize"); sizeParam != "" {
		parsedSize, err := strconv.Atoi(sizeParam)
		if err != nil || parsedSize <= 0 || parsedSize > maxPageSize {
			http.Error(w, "invalid pageSize", http.StatusBadRequest)
			return 0, 0, false
		}
		pageSize = parsedSize
	}

	return pageSize, (page - 1) * pageSize, true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WithError(err).Error("failed to encode response")
	}
}
