package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"gocloud.dev/blob/memblob"
	"golang.org/x/crypto/bcrypt"

	"github.com/playperu/hiddencatch/internal/database"
	"github.com/playperu/hiddencatch/internal/game"
	"github.com/playperu/hiddencatch/internal/geometry"
	"github.com/playperu/hiddencatch/internal/hiddencatch"
	"github.com/playperu/hiddencatch/internal/migrations"
	"github.com/playperu/hiddencatch/internal/objstore"
	"github.com/playperu/hiddencatch/internal/queue"
	"github.com/playperu/hiddencatch/internal/store"
)

const (
	testAdminUser     = "admin"
	testAdminPassword = "s3cret"
)

type testAPI struct {
	router chi.Router
	store  *store.Store
	broker *Broker
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := migrations.Run(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.New(db)
	blobs := objstore.New(memblob.OpenBucket(nil), time.Minute)
	broker := NewBroker()
	svc := game.NewService(st, blobs, queue.NewMemory(64, logger), broker, game.Options{Logger: logger})

	return &testAPI{
		router: NewRouter(logger, Deps{
			Games:  svc,
			Images: blobs,
			Broker: broker,
			Admin:  AdminCredentials{User: testAdminUser, PasswordHash: string(hash)},
		}, nil),
		store:  st,
		broker: broker,
	}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) createGame(t *testing.T, slots int) int64 {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/games", map[string]any{
		"mode":                 "single",
		"requested_slot_count": slots,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create game: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp game.CreateGameResponse
	decode(t, rec, &resp)
	return resp.GameID
}

// makeReady attaches a playable puzzle to a stage, as a finished pipeline run would.
func (a *testAPI) makeReady(t *testing.T, gameID int64, stageNumber int, rects ...geometry.Rect) {
	t.Helper()
	err := a.store.Update(context.Background(), func(tx *store.Tx) error {
		g, err := tx.Game(gameID)
		if err != nil {
			return err
		}
		p := hiddencatch.Puzzle{
			OriginalImageKey: game.SlotKey(gameID, stageNumber),
			ModifiedImageKey: fmt.Sprintf("games/%d/slot-%d-modified.png", gameID, stageNumber),
			Width:            800,
			Height:           600,
			IsCompleted:      true,
		}
		if err := tx.CreatePuzzle(&p); err != nil {
			return err
		}
		diffs := make([]hiddencatch.Difference, len(rects))
		for i, r := range rects {
			diffs[i] = hiddencatch.Difference{Index: i + 1, Rect: r, Label: fmt.Sprintf("object %d", i+1)}
		}
		if _, err := tx.ReplaceDifferences(p.ID, diffs); err != nil {
			return err
		}
		st := g.Stage(stageNumber)
		st.PuzzleID = &p.ID
		st.Status = hiddencatch.StageStatusPlaying
		total := len(rects)
		st.TotalDifferenceCount = &total
		if err := tx.UpdateStage(st); err != nil {
			return err
		}
		g.Status = game.DeriveStatus(&g)
		return tx.UpdateGame(&g)
	})
	if err != nil {
		t.Fatalf("make ready: %v", err)
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestCreateAndGetGame(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/games", map[string]any{
		"mode":                 "single",
		"requested_slot_count": 2,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body = %s", rec.Code, http.StatusCreated, rec.Body.String())
	}

	var created game.CreateGameResponse
	decode(t, rec, &created)
	if len(created.UploadSlots) != 2 {
		t.Fatalf("upload slots = %d, want 2", len(created.UploadSlots))
	}
	if want := fmt.Sprintf("games/%d/slot-1.png", created.GameID); created.UploadSlots[0].StorageKey != want {
		t.Errorf("storage key = %q, want %q", created.UploadSlots[0].StorageKey, want)
	}
	if created.Status != hiddencatch.GameStatusWaitingUpload {
		t.Errorf("status = %q, want waiting_upload", created.Status)
	}

	rec = api.do(t, http.MethodGet, fmt.Sprintf("/api/games/%d", created.GameID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want %d", rec.Code, http.StatusOK)
	}
	var detail game.GameDetailResponse
	decode(t, rec, &detail)
	if detail.TotalStages != 2 || detail.CurrentStage != 1 {
		t.Errorf("stages = %d/%d, want 1/2", detail.CurrentStage, detail.TotalStages)
	}
	if detail.Puzzle != nil {
		t.Errorf("puzzle = %+v, want nil before analysis", detail.Puzzle)
	}
}

func TestCreateGameInvalid(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{"mode":`},
		{"unknown mode", `{"mode":"team"}`},
		{"too many slots", `{"mode":"single","requested_slot_count":11}`},
		{"bad time limit", `{"mode":"single","time_limit_seconds":-5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/games", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			api.router.ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestGameNotFound(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		path string
		want int
	}{
		{"/api/games/999", http.StatusNotFound},
		{"/api/games/999/uploads", http.StatusNotFound},
		{"/api/games/abc", http.StatusBadRequest},
		{"/api/games/0", http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := api.do(t, http.MethodGet, tt.path, nil)
		if rec.Code != tt.want {
			t.Errorf("GET %s: status = %d, want %d", tt.path, rec.Code, tt.want)
		}
		var body ErrorResponse
		decode(t, rec, &body)
		if body.Error == "" {
			t.Errorf("GET %s: empty error message", tt.path)
		}
	}
}

func TestUploadImage(t *testing.T) {
	api := newTestAPI(t)
	id := api.createGame(t, 2)
	image := []byte("\x89PNG\r\n\x1a\nnot-really-a-png")

	req := httptest.NewRequest(http.MethodPut, fmt.Sprintf("/api/games/%d/uploads/1", id), bytes.NewReader(image))
	req.Header.Set("Content-Type", "image/png")
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d; body = %s", rec.Code, http.StatusAccepted, rec.Body.String())
	}

	var status game.UploadStatusResponse
	decode(t, rec, &status)
	if status.Status != hiddencatch.GameStatusWaitingPuzzle {
		t.Errorf("game status = %q, want waiting_puzzle", status.Status)
	}
	slot := status.SlotStatuses[0]
	if !slot.Uploaded || slot.AnalysisStatus != hiddencatch.AnalysisPending {
		t.Errorf("slot = %+v, want uploaded and pending", slot)
	}

	// No puzzle uses the upload yet, so the API does not serve it.
	rec = api.do(t, http.MethodGet, fmt.Sprintf("/api/games/%d/images/slot-1.png", id), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("image status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestUploadRejections(t *testing.T) {
	api := newTestAPI(t)
	id := api.createGame(t, 1)

	tests := []struct {
		name        string
		path        string
		contentType string
		body        string
		want        int
	}{
		{"not an image", fmt.Sprintf("/api/games/%d/uploads/1", id), "text/plain", "hello", http.StatusUnsupportedMediaType},
		{"empty body", fmt.Sprintf("/api/games/%d/uploads/1", id), "image/png", "", http.StatusBadRequest},
		{"unknown slot", fmt.Sprintf("/api/games/%d/uploads/7", id), "image/png", "png", http.StatusNotFound},
		{"bad slot", fmt.Sprintf("/api/games/%d/uploads/x", id), "image/png", "png", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rec := httptest.NewRecorder()
			api.router.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestUploadComplete(t *testing.T) {
	api := newTestAPI(t)
	id := api.createGame(t, 1)

	rec := api.do(t, http.MethodPost, fmt.Sprintf("/api/games/%d/uploads/complete", id), UploadCompleteRequest{Slot: 1})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}

	rec = api.do(t, http.MethodPost, fmt.Sprintf("/api/games/%d/uploads/complete", id), map[string]int{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing slot: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = api.do(t, http.MethodGet, fmt.Sprintf("/api/games/%d/uploads", id), nil)
	var status game.UploadStatusResponse
	decode(t, rec, &status)
	if len(status.SlotStatuses) != 1 || !status.SlotStatuses[0].Uploaded {
		t.Errorf("slot statuses = %+v", status.SlotStatuses)
	}
}

func TestCheckAnswerAndCompleteStage(t *testing.T) {
	api := newTestAPI(t)
	id := api.createGame(t, 2)
	api.makeReady(t, id, 1,
		geometry.Rect{X: 100, Y: 100, Width: 50, Height: 50},
		geometry.Rect{X: 400, Y: 300, Width: 80, Height: 40},
	)
	check := fmt.Sprintf("/api/games/%d/stages/1/check", id)

	rec := api.do(t, http.MethodPost, check, game.CheckAnswerRequest{X: 120, Y: 130})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body = %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var hit game.CheckAnswerResponse
	decode(t, rec, &hit)
	if !hit.IsCorrect || hit.CurrentScore != game.ScorePerHit || hit.FoundDifferenceCount != 1 {
		t.Fatalf("hit = %+v", hit)
	}
	if hit.NewlyHitDifference == nil || hit.NewlyHitDifference.Index != 1 {
		t.Errorf("newly hit = %+v, want index 1", hit.NewlyHitDifference)
	}

	rec = api.do(t, http.MethodPost, check, game.CheckAnswerRequest{X: 150, Y: 150})
	var again game.CheckAnswerResponse
	decode(t, rec, &again)
	if again.IsCorrect || !again.IsAlreadyFound || again.CurrentScore != game.ScorePerHit {
		t.Errorf("second tap = %+v, want already found", again)
	}

	rec = api.do(t, http.MethodPost, check, game.CheckAnswerRequest{X: 5, Y: 5})
	var miss game.CheckAnswerResponse
	decode(t, rec, &miss)
	if miss.IsCorrect || miss.IsAlreadyFound {
		t.Errorf("miss = %+v", miss)
	}

	// Stage 2 has no puzzle yet.
	rec = api.do(t, http.MethodPost, fmt.Sprintf("/api/games/%d/stages/2/check", id), game.CheckAnswerRequest{X: 1, Y: 1})
	if rec.Code != http.StatusConflict {
		t.Errorf("stage 2 check: status = %d, want %d", rec.Code, http.StatusConflict)
	}

	rec = api.do(t, http.MethodPost, fmt.Sprintf("/api/games/%d/stages/1/complete", id), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete: status = %d, want %d; body = %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var result game.StageResultResponse
	decode(t, rec, &result)
	if result.Status != hiddencatch.GameStatusWaitingNextStage || result.NextPuzzle != nil {
		t.Errorf("result = %+v, want waiting_next_stage without puzzle", result)
	}

	rec = api.do(t, http.MethodPost, fmt.Sprintf("/api/games/%d/finish", id), game.FinishGameRequest{})
	if rec.Code != http.StatusOK {
		t.Fatalf("finish: status = %d, want %d", rec.Code, http.StatusOK)
	}
	var finished game.FinishGameResponse
	decode(t, rec, &finished)
	if finished.Status != hiddencatch.GameStatusFinished || finished.FinalScore != game.ScorePerHit {
		t.Errorf("finish = %+v", finished)
	}
	if finished.FoundDifferenceCount != 1 || finished.TotalDifferenceCount != 2 {
		t.Errorf("counts = %d/%d, want 1/2", finished.FoundDifferenceCount, finished.TotalDifferenceCount)
	}
}

func TestGameDetailServesPuzzleURLs(t *testing.T) {
	api := newTestAPI(t)
	id := api.createGame(t, 1)
	image := []byte("\x89PNG\r\n\x1a\noriginal")
	req := httptest.NewRequest(http.MethodPut, fmt.Sprintf("/api/games/%d/uploads/1", id), bytes.NewReader(image))
	req.Header.Set("Content-Type", "image/png")
	api.router.ServeHTTP(httptest.NewRecorder(), req)
	api.makeReady(t, id, 1, geometry.Rect{X: 10, Y: 10, Width: 20, Height: 20})

	rec := api.do(t, http.MethodGet, fmt.Sprintf("/api/games/%d", id), nil)
	var detail game.GameDetailResponse
	decode(t, rec, &detail)
	if detail.Status != hiddencatch.GameStatusPlaying {
		t.Fatalf("status = %q, want playing", detail.Status)
	}
	if detail.Puzzle == nil {
		t.Fatal("puzzle = nil, want ready puzzle")
	}
	if want := fmt.Sprintf("/api/games/%d/images/slot-1-modified.png", id); detail.Puzzle.ModifiedImageURL != want {
		t.Errorf("modified url = %q, want %q", detail.Puzzle.ModifiedImageURL, want)
	}
	if detail.Puzzle.TotalDifferenceCount != 1 {
		t.Errorf("total = %d, want 1", detail.Puzzle.TotalDifferenceCount)
	}

	// Local buckets cannot sign, so the API serves the puzzle's images.
	rec = api.do(t, http.MethodGet, detail.Puzzle.OriginalImageURL, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("original image status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := rec.Header().Get("Content-Type"); got != "image/png" {
		t.Errorf("content-type = %q, want image/png", got)
	}
	if !bytes.Equal(rec.Body.Bytes(), image) {
		t.Errorf("image body differs from upload")
	}

	// Referenced but never written.
	if rec := api.do(t, http.MethodGet, detail.Puzzle.ModifiedImageURL, nil); rec.Code != http.StatusNotFound {
		t.Errorf("modified image status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestImageRouteScopedToGame(t *testing.T) {
	api := newTestAPI(t)
	ready := api.createGame(t, 1)
	api.makeReady(t, ready, 1, geometry.Rect{X: 10, Y: 10, Width: 20, Height: 20})
	other := api.createGame(t, 1)

	tests := []struct {
		name string
		path string
	}{
		{"name no puzzle uses", fmt.Sprintf("/api/games/%d/images/missing.png", ready)},
		{"game without puzzle", fmt.Sprintf("/api/games/%d/images/slot-1.png", other)},
		{"other game's image", fmt.Sprintf("/api/games/%d/images/slot-1-modified.png", other)},
		{"unknown game", "/api/games/999/images/slot-1.png"},
		{"path traversal", fmt.Sprintf("/api/games/%d/images/..%%2Fsecret", ready)},
		{"old unscoped route", fmt.Sprintf("/api/images/games/%d/slot-1.png", ready)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, http.MethodGet, tt.path, nil)
			if rec.Code != http.StatusNotFound {
				t.Errorf("GET %s: status = %d, want %d", tt.path, rec.Code, http.StatusNotFound)
			}
		})
	}
}
