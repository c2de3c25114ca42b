package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalmirror/src/auth"
	"signalmirror/src/controller"
	"signalmirror/src/database"
	"signalmirror/src/model"
	"signalmirror/src/repository"
)

type tradeLogFinder interface {
	FindBySignal(ctx context.Context, signalID uint) ([]model.TradeLog, error)
}

type mirrorStatusFinder interface {
	FindBySignalID(ctx context.Context, signalID uint) (*model.MirrorStatus, error)
}

type mirrorEnqueuer interface {
	Enqueue(ctx context.Context, signalID uint) (bool, error)
}

// TradeLogsHandler returns every venue call recorded for the signal in {id}.
func TradeLogsHandler(repo tradeLogFinder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.GetOperatorFromContext(r.Context()); !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		signalID, ok := signalIDParam(w, r)
		if !ok {
			return
		}

		logs, err := repo.FindBySignal(r.Context(), signalID)
		if err != nil {
			logger.WithError(err).WithField("signal_id", signalID).Error("failed to load trade logs")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, logs)
	}
}

func DefaultTradeLogsHandler() http.HandlerFunc {
	return TradeLogsHandler(repository.NewTradeLogRepository().WithDB(readDB()))
}

// MirrorStatusHandler returns the intake token of the signal in {id}, 404
// when the signal was never claimed.
func MirrorStatusHandler(repo mirrorStatusFinder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.GetOperatorFromContext(r.Context()); !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		signalID, ok := signalIDParam(w, r)
		if !ok {
			return
		}

		status, err := repo.FindBySignalID(r.Context(), signalID)
		if err != nil {
			logger.WithError(err).WithField("signal_id", signalID).Error("failed to load mirror status")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if status == nil {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}

		writeJSON(w, http.StatusOK, status)
	}
}

func DefaultMirrorStatusHandler() http.HandlerFunc {
	return MirrorStatusHandler(repository.NewMirrorStatusRepository().WithDB(readDB()))
}

// MirrorSignalHandler queues a mirror task for the signal in {id}. It answers
// 202 when a task was queued and 200 when one is already waiting.
func MirrorSignalHandler(queue mirrorEnqueuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		operator, ok := auth.GetOperatorFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		signalID, ok := signalIDParam(w, r)
		if !ok {
			return
		}

		queued, err := queue.Enqueue(r.Context(), signalID)
		if err != nil {
			logger.WithError(err).WithField("signal_id", signalID).Error("failed to enqueue mirror task")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		logger.WithFields(map[string]interface{}{
			"signal_id": signalID,
			"queued":    queued,
			"remote":    operator.RemoteAddr,
		}).Info("Manual mirror requested")

		if !queued {
			writeJSON(w, http.StatusOK, map[string]interface{}{"signal_id": signalID, "status": "already queued"})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]interface{}{"signal_id": signalID, "status": "queued"})
	}
}

func DefaultMirrorSignalHandler() http.HandlerFunc {
	return MirrorSignalHandler(controller.NewSweeper(nil, database.MainDB, controller.GetConfig()))
}

func signalIDParam(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		http.Error(w, "invalid signal id", http.StatusBadRequest)
		return 0, false
	}
	return uint(id), true
}

func readDB() *gorm.DB {
	if database.ReadOnlyDB != nil {
		return database.ReadOnlyDB
	}
	return database.MainDB
}
