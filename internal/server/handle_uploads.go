package server

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/playperu/hiddencatch/internal/game"
)

// maxUploadBytes caps a single raw image upload.
const maxUploadBytes = 20 << 20

// UploadCompleteRequest is the request body for POST /api/games/{gameID}/uploads/complete.
type UploadCompleteRequest struct {
	Slot int `json:"slot"`
}

func handleUpload(logger *slog.Logger, games *game.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slot, err := pathInt(r, "slot")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid slot")
			return
		}

		contentType := r.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "image/png"
		}
		if mt, _, err := mime.ParseMediaType(contentType); err != nil || !isImageType(mt) {
			writeError(w, http.StatusUnsupportedMediaType, "body must be an image")
			return
		}

		body := http.MaxBytesReader(w, r.Body, maxUploadBytes)
		defer body.Close()
		data, err := io.ReadAll(body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "image too large")
				return
			}
			writeError(w, http.StatusBadRequest, "reading body failed")
			return
		}

		resp, err := games.UploadImage(r.Context(), gameIDFrom(r), slot, data, contentType)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusAccepted, resp)
	}
}

func isImageType(mt string) bool {
	switch mt {
	case "image/png", "image/jpeg", "image/webp", "image/gif":
		return true
	}
	return false
}

func handleUploadComplete(logger *slog.Logger, games *game.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UploadCompleteRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Slot <= 0 {
			writeError(w, http.StatusBadRequest, "slot is required")
			return
		}

		resp, err := games.MarkUploadComplete(r.Context(), gameIDFrom(r), req.Slot)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusAccepted, resp)
	}
}

func handleUploadStatus(logger *slog.Logger, games *game.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := games.UploadStatus(r.Context(), gameIDFrom(r))
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
