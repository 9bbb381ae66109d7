package server

import (
	"log/slog"
	"net/http"

	"github.com/playperu/hiddencatch/internal/game"
)

func handleAdminDeleteGame(logger *slog.Logger, games *game.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "gameID")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid game id")
			return
		}
		if err := games.DeleteGame(r.Context(), id); err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		logger.Info("admin deleted game", "game_id", id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleAdminDeletePuzzle(logger *slog.Logger, games *game.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "puzzleID")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid puzzle id")
			return
		}
		if err := games.DeletePuzzle(r.Context(), id); err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		logger.Info("admin deleted puzzle", "puzzle_id", id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleAdminRetrySlot(logger *slog.Logger, games *game.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "slotID")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid slot id")
			return
		}
		resp, err := games.RetrySlot(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		logger.Info("admin retried slot", "slot_id", id)
		writeJSON(w, http.StatusAccepted, resp)
	}
}
