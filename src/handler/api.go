package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	logger "github.com/sirupsen/logrus"

	"newstrader/src/model"
	"newstrader/src/repository"
)

type signalLister interface {
	FindLatest(ctx context.Context, limit int) ([]model.Signal, error)
}

type tradeLister interface {
	FindLatest(ctx context.Context, limit int) ([]model.Trade, error)
}

type snapshotReader interface {
	FindByDate(ctx context.Context, date string) (*model.DailyPerformance, error)
}

func parseLimit(r *http.Request, fallback int) int {
	if param := r.URL.Query().Get("limit"); param != "" {
		if n, err := strconv.Atoi(param); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// LatestSignalsHandler lists the most recent signals, newest first.
func LatestSignalsHandler(repo signalLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		signals, err := repo.FindLatest(r.Context(), parseLimit(r, 20))
		if err != nil {
			logger.WithError(err).Error("failed to list signals")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, signals)
	}
}

// LatestTradesHandler lists the most recent trades, newest first.
func LatestTradesHandler(repo tradeLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trades, err := repo.FindLatest(r.Context(), parseLimit(r, 20))
		if err != nil {
			logger.WithError(err).Error("failed to list trades")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, trades)
	}
}

// PortfolioTodayHandler returns today's performance snapshot, or 404 before
// the first rollup of the day.
func PortfolioTodayHandler(repo snapshotReader, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date := time.Now().In(loc).Format("2006-01-02")

		snapshot, err := repo.FindByDate(r.Context(), date)
		if err != nil {
			logger.WithError(err).Error("failed to fetch today's snapshot")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if snapshot == nil {
			http.Error(w, "no snapshot for today", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, snapshot)
	}
}

// DefaultLatestSignalsHandler wires the handler to the production repository.
func DefaultLatestSignalsHandler() http.HandlerFunc {
	return LatestSignalsHandler(repository.NewSignalRepository())
}

// DefaultLatestTradesHandler wires the handler to the production repository.
func DefaultLatestTradesHandler() http.HandlerFunc {
	return LatestTradesHandler(repository.NewTradeRepository())
}
