package server

import (
	"log/slog"
	"net/http"

	"github.com/playperu/hiddencatch/internal/game"
)

func handleCheckAnswer(logger *slog.Logger, games *game.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stage, err := pathInt(r, "stageNumber")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid stage number")
			return
		}

		var req game.CheckAnswerRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		resp, err := games.CheckAnswer(r.Context(), gameIDFrom(r), stage, req.X, req.Y)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleCompleteStage(logger *slog.Logger, games *game.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stage, err := pathInt(r, "stageNumber")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid stage number")
			return
		}

		resp, err := games.CompleteStage(r.Context(), gameIDFrom(r), stage)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
