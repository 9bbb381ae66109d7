package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"github.com/playperu/hiddencatch/internal/game"
)

// wsMessage frames every websocket payload so clients can tell the initial
// snapshot apart from live events.
type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// handleLiveWS is the websocket counterpart of handleEvents. Client messages
// are ignored; the connection only carries server pushes.
func handleLiveWS(logger *slog.Logger, games *game.Service, broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := gameIDFrom(r)

		// Reject unknown games before upgrading.
		snapshot, err := games.UploadStatus(r.Context(), gameID)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Error("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()

		ch := broker.Subscribe(gameID)
		defer broker.Unsubscribe(gameID, ch)

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Hour)
		defer cancel()
		ctx = conn.CloseRead(ctx)

		data, _ := json.Marshal(snapshot)
		if err := writeWS(ctx, conn, "snapshot", data); err != nil {
			logger.Debug("websocket write failed", "game_id", gameID, "error", err)
			return
		}

		ping := time.NewTicker(30 * time.Second)
		defer ping.Stop()

		for {
			select {
			case <-ctx.Done():
				conn.Close(websocket.StatusNormalClosure, "")
				return
			case data := <-ch:
				if err := writeWS(ctx, conn, "state", data); err != nil {
					logger.Debug("websocket write failed", "game_id", gameID, "error", err)
					return
				}
			case <-ping.C:
				if err := conn.Ping(ctx); err != nil {
					logger.Debug("websocket ping failed", "game_id", gameID, "error", err)
					return
				}
			}
		}
	}
}

func writeWS(ctx context.Context, conn *websocket.Conn, typ string, data []byte) error {
	msg, err := json.Marshal(wsMessage{Type: typ, Data: data})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, msg)
}
