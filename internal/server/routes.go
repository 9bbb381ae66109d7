package server

import (
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"
)

func addRoutes(r chi.Router, logger *slog.Logger, deps Deps) {
	games := deps.Games

	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("HiddenCatch API", "/openapi.json", "/docs"))

	r.Route("/api", func(r chi.Router) {
		r.Post("/games", handleCreateGame(logger, games))

		r.Route("/games/{gameID}", func(r chi.Router) {
			r.Use(gameIDMiddleware)
			r.Get("/", handleGameDetail(logger, games))
			r.Post("/finish", handleFinishGame(logger, games))

			r.Get("/uploads", handleUploadStatus(logger, games))
			r.Post("/uploads/complete", handleUploadComplete(logger, games))
			r.Put("/uploads/{slot}", handleUpload(logger, games))

			r.Post("/stages/{stageNumber}/check", handleCheckAnswer(logger, games))
			r.Post("/stages/{stageNumber}/complete", handleCompleteStage(logger, games))

			r.Get("/events", handleEvents(logger, games, deps.Broker))
			r.Get("/ws", handleLiveWS(logger, games, deps.Broker))

			r.Get("/images/{name}", handleGameImage(logger, games, deps.Images))
		})

		// Admin routes exist only when a password hash is configured.
		if deps.Admin.enabled() {
			r.Route("/admin", func(r chi.Router) {
				r.Use(adminAuthMiddleware(deps.Admin))
				r.Delete("/games/{gameID}", handleAdminDeleteGame(logger, games))
				r.Delete("/puzzles/{puzzleID}", handleAdminDeletePuzzle(logger, games))
				r.Post("/slots/{slotID}/retry", handleAdminRetrySlot(logger, games))
			})
		} else {
			logger.Warn("admin routes disabled: ADMIN_PASSWORD_HASH not set")
		}
	})

	if deps.SPADir != "" {
		if info, err := os.Stat(deps.SPADir); err == nil && info.IsDir() {
			logger.Info("serving SPA", "dir", deps.SPADir)
			r.NotFound(handleSPA(deps.SPADir))
		}
	}
}
