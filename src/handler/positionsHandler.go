package handler

import (
	"context"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"signalmirror/src/auth"
	"signalmirror/src/model"
	"signalmirror/src/repository"
)

type positionSearcher interface {
	Search(ctx context.Context, options repository.PositionSearchOptions) ([]model.Position, error)
}

// SearchPositionsHandler lists positions, filtered by accountId and status.
func SearchPositionsHandler(repo positionSearcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.GetOperatorFromContext(r.Context()); !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		accountID, ok := optionalUint(w, r.URL.Query().Get("accountId"), "accountId")
		if !ok {
			return
		}

		var status *string
		if statusParam := r.URL.Query().Get("status"); statusParam != "" {
			if statusParam != model.PositionStatusActive && statusParam != model.PositionStatusClosed {
				http.Error(w, "invalid status", http.StatusBadRequest)
				return
			}
			status = &statusParam
		}

		limit, offset, ok := pagination(w, r)
		if !ok {
			return
		}

		positions, err := repo.Search(r.Context(), repository.PositionSearchOptions{
			AccountID: accountID,
			Status:    status,
			Limit:     limit,
			Offset:    offset,
		})
		if err != nil {
			logger.WithError(err).Error("failed to search positions")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, positions)
	}
}

func DefaultSearchPositionsHandler() http.HandlerFunc {
	return SearchPositionsHandler(repository.NewPositionRepository().WithDB(readDB()))
}
