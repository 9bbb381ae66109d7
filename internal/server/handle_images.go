package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/hiddencatch/internal/game"
)

// ImageSource reads stored images. Buckets that cannot sign URLs are served
// through this route instead.
type ImageSource interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Attributes(ctx context.Context, key string) (contentType string, size int64, err error)
}

// handleGameImage serves the puzzle images of one game. Uploads that no
// puzzle uses yet are not served.
func handleGameImage(logger *slog.Logger, games *game.Service, images ImageSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := games.PuzzleImageKey(r.Context(), gameIDFrom(r), chi.URLParam(r, "name"))
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		contentType, _, err := images.Attributes(r.Context(), key)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		data, err := images.Get(r.Context(), key)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		if contentType == "" {
			contentType = http.DetectContentType(data)
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Header().Set("Cache-Control", "private, max-age=300")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
