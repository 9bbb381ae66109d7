package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/playperu/hiddencatch/internal/game"
	"github.com/playperu/hiddencatch/internal/handler/health"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

type gamePath struct {
	GameID int64 `path:"gameID"`
}

type createGameBody struct {
	game.CreateGameRequest
}

type finishGameBody struct {
	GameID int64 `path:"gameID"`
	game.FinishGameRequest
}

type uploadBody struct {
	GameID      int64  `path:"gameID"`
	Slot        int    `path:"slot"`
	ContentType string `header:"Content-Type" enum:"image/png,image/jpeg,image/webp,image/gif"`
}

type uploadCompleteBody struct {
	GameID int64 `path:"gameID"`
	UploadCompleteRequest
}

type stagePath struct {
	GameID      int64 `path:"gameID"`
	StageNumber int   `path:"stageNumber"`
}

type checkAnswerBody struct {
	GameID      int64 `path:"gameID"`
	StageNumber int   `path:"stageNumber"`
	game.CheckAnswerRequest
}

type imagePath struct {
	GameID int64  `path:"gameID"`
	Name   string `path:"name"`
}

type puzzlePath struct {
	PuzzleID int64 `path:"puzzleID"`
}

type slotPath struct {
	SlotID int64 `path:"slotID"`
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "HiddenCatch API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Backend API for the HiddenCatch spot-the-difference game.")

	// GET /healthz
	getHealthz, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	getHealthz.SetSummary("Health check")
	getHealthz.SetDescription("Returns the health status of backend dependencies.")
	getHealthz.AddRespStructure(map[string]health.Result{}, openapi.WithHTTPStatus(http.StatusOK))
	getHealthz.AddRespStructure(map[string]health.Result{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getHealthz)

	// POST /api/games
	createGame, _ := r.NewOperationContext(http.MethodPost, "/api/games")
	createGame.SetSummary("Create game")
	createGame.SetDescription("Creates a game with one stage and one upload slot per requested image.")
	createGame.AddReqStructure(createGameBody{})
	createGame.AddRespStructure(game.CreateGameResponse{}, openapi.WithHTTPStatus(http.StatusCreated))
	createGame.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	_ = r.AddOperation(createGame)

	// GET /api/games/{gameID}
	getGame, _ := r.NewOperationContext(http.MethodGet, "/api/games/{gameID}")
	getGame.SetSummary("Get game")
	getGame.SetDescription("Returns status, score and the current stage's puzzle when it is ready.")
	getGame.AddReqStructure(gamePath{})
	getGame.AddRespStructure(game.GameDetailResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getGame.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getGame)

	// POST /api/games/{gameID}/finish
	finishGame, _ := r.NewOperationContext(http.MethodPost, "/api/games/{gameID}/finish")
	finishGame.SetSummary("Finish game")
	finishGame.SetDescription("Ends the game and returns the final score. Repeated calls return the same result.")
	finishGame.AddReqStructure(finishGameBody{})
	finishGame.AddRespStructure(game.FinishGameResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	finishGame.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(finishGame)

	// GET /api/games/{gameID}/uploads
	getUploads, _ := r.NewOperationContext(http.MethodGet, "/api/games/{gameID}/uploads")
	getUploads.SetSummary("Upload status")
	getUploads.SetDescription("Returns the game status and the analysis status of every upload slot.")
	getUploads.AddReqStructure(gamePath{})
	getUploads.AddRespStructure(game.UploadStatusResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getUploads.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getUploads)

	// PUT /api/games/{gameID}/uploads/{slot}
	putUpload, _ := r.NewOperationContext(http.MethodPut, "/api/games/{gameID}/uploads/{slot}")
	putUpload.SetSummary("Upload image")
	putUpload.SetDescription("Stores the raw request body as the slot's image and queues analysis.")
	putUpload.AddReqStructure(uploadBody{})
	putUpload.AddRespStructure(game.UploadStatusResponse{}, openapi.WithHTTPStatus(http.StatusAccepted))
	putUpload.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	putUpload.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	putUpload.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusRequestEntityTooLarge))
	_ = r.AddOperation(putUpload)

	// POST /api/games/{gameID}/uploads/complete
	completeUpload, _ := r.NewOperationContext(http.MethodPost, "/api/games/{gameID}/uploads/complete")
	completeUpload.SetSummary("Mark upload complete")
	completeUpload.SetDescription("Confirms a direct upload to a presigned URL and queues analysis.")
	completeUpload.AddReqStructure(uploadCompleteBody{})
	completeUpload.AddRespStructure(game.UploadStatusResponse{}, openapi.WithHTTPStatus(http.StatusAccepted))
	completeUpload.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	completeUpload.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(completeUpload)

	// POST /api/games/{gameID}/stages/{stageNumber}/check
	checkAnswer, _ := r.NewOperationContext(http.MethodPost, "/api/games/{gameID}/stages/{stageNumber}/check")
	checkAnswer.SetSummary("Check answer")
	checkAnswer.SetDescription("Tests a tap in image pixel coordinates against the stage's differences.")
	checkAnswer.AddReqStructure(checkAnswerBody{})
	checkAnswer.AddRespStructure(game.CheckAnswerResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	checkAnswer.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	checkAnswer.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(checkAnswer)

	// POST /api/games/{gameID}/stages/{stageNumber}/complete
	completeStage, _ := r.NewOperationContext(http.MethodPost, "/api/games/{gameID}/stages/{stageNumber}/complete")
	completeStage.SetSummary("Complete stage")
	completeStage.SetDescription("Finishes the stage and advances the game. Returns the next puzzle when it is ready.")
	completeStage.AddReqStructure(stagePath{})
	completeStage.AddRespStructure(game.StageResultResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	completeStage.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	completeStage.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(completeStage)

	// GET /api/games/{gameID}/events
	getEvents, _ := r.NewOperationContext(http.MethodGet, "/api/games/{gameID}/events")
	getEvents.SetSummary("SSE event stream")
	getEvents.SetDescription("Server-Sent Events stream of slot, stage and score updates. Starts with a snapshot event.")
	getEvents.AddReqStructure(gamePath{})
	getEvents.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK),
		openapi.WithContentType("text/event-stream"))
	_ = r.AddOperation(getEvents)

	// GET /api/games/{gameID}/ws
	getWS, _ := r.NewOperationContext(http.MethodGet, "/api/games/{gameID}/ws")
	getWS.SetSummary("WebSocket event stream")
	getWS.SetDescription("Upgrades to a WebSocket that pushes the same events as the SSE stream.")
	getWS.AddReqStructure(gamePath{})
	getWS.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusSwitchingProtocols),
		openapi.WithContentType("application/json"))
	_ = r.AddOperation(getWS)

	// GET /api/games/{gameID}/images/{name}
	getImage, _ := r.NewOperationContext(http.MethodGet, "/api/games/{gameID}/images/{name}")
	getImage.SetSummary("Get puzzle image")
	getImage.SetDescription("Serves an original or modified puzzle image of the game when the bucket cannot issue signed URLs.")
	getImage.AddReqStructure(imagePath{})
	getImage.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK),
		openapi.WithContentType("image/png"))
	getImage.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getImage)

	// DELETE /api/admin/games/{gameID}
	deleteGame, _ := r.NewOperationContext(http.MethodDelete, "/api/admin/games/{gameID}")
	deleteGame.SetSummary("Delete game")
	deleteGame.SetDescription("Deletes a game with its stages, hits and slots. Requires basic auth.")
	deleteGame.AddReqStructure(gamePath{})
	deleteGame.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusNoContent))
	deleteGame.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	deleteGame.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(deleteGame)

	// DELETE /api/admin/puzzles/{puzzleID}
	deletePuzzle, _ := r.NewOperationContext(http.MethodDelete, "/api/admin/puzzles/{puzzleID}")
	deletePuzzle.SetSummary("Delete puzzle")
	deletePuzzle.SetDescription("Deletes a puzzle and its differences. Stages and hits keep their rows. Requires basic auth.")
	deletePuzzle.AddReqStructure(puzzlePath{})
	deletePuzzle.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusNoContent))
	deletePuzzle.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	deletePuzzle.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(deletePuzzle)

	// POST /api/admin/slots/{slotID}/retry
	retrySlot, _ := r.NewOperationContext(http.MethodPost, "/api/admin/slots/{slotID}/retry")
	retrySlot.SetSummary("Retry slot analysis")
	retrySlot.SetDescription("Queues a fresh analysis run for an uploaded slot. Requires basic auth.")
	retrySlot.AddReqStructure(slotPath{})
	retrySlot.AddRespStructure(game.UploadStatusResponse{}, openapi.WithHTTPStatus(http.StatusAccepted))
	retrySlot.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	retrySlot.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(retrySlot)

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
