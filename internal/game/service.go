// Package game runs the game lifecycle: creating games with upload slots,
// recording uploads, matching answers, completing stages and finishing games.
// Every operation runs in one transaction while holding the game's lock.
package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/playperu/hiddencatch/internal/hiddencatch"
	"github.com/playperu/hiddencatch/internal/keylock"
	"github.com/playperu/hiddencatch/internal/objstore"
	"github.com/playperu/hiddencatch/internal/queue"
	"github.com/playperu/hiddencatch/internal/store"
)

const (
	ModeSingle = "single"
	ModeMulti  = "multi"

	MaxSlotCount = 10
)

// BlobStore is the slice of object storage the service needs.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	SignedURL(ctx context.Context, key, method string, expiry time.Duration) (string, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, job queue.Job) error
}

type Notifier interface {
	Publish(gameID int64, ev hiddencatch.Event)
}

type Options struct {
	DefaultSlotCount int
	DefaultTimeLimit int // seconds
	PresignTTL       time.Duration
	// Locks serializes work per game id. It must be shared with the pipeline.
	Locks  *keylock.Map[int64]
	Logger *slog.Logger
}

type Service struct {
	store  *store.Store
	blobs  BlobStore
	jobs   Enqueuer
	notify Notifier
	opts   Options
	now    func() time.Time
}

func NewService(st *store.Store, blobs BlobStore, jobs Enqueuer, notify Notifier, opts Options) *Service {
	if opts.DefaultSlotCount <= 0 {
		opts.DefaultSlotCount = 5
	}
	if opts.DefaultTimeLimit <= 0 {
		opts.DefaultTimeLimit = 300
	}
	if opts.Locks == nil {
		opts.Locks = &keylock.Map[int64]{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{store: st, blobs: blobs, jobs: jobs, notify: notify, opts: opts, now: time.Now}
}

// SlotKey is the storage key of an upload slot's original image.
func SlotKey(gameID int64, slot int) string {
	return fmt.Sprintf("games/%d/slot-%d.png", gameID, slot)
}

func (s *Service) CreateGame(ctx context.Context, req CreateGameRequest) (CreateGameResponse, error) {
	if req.Mode == "" {
		req.Mode = ModeSingle
	}
	if req.Mode != ModeSingle && req.Mode != ModeMulti {
		return CreateGameResponse{}, fmt.Errorf("mode %q: %w", req.Mode, hiddencatch.ErrInvalidInput)
	}
	count := req.RequestedSlotCount
	if count == 0 {
		count = s.opts.DefaultSlotCount
	}
	if count < 1 || count > MaxSlotCount {
		return CreateGameResponse{}, fmt.Errorf("slot count %d not in 1..%d: %w", count, MaxSlotCount, hiddencatch.ErrInvalidInput)
	}
	timeLimit := s.opts.DefaultTimeLimit
	if req.TimeLimitSeconds != nil {
		if *req.TimeLimitSeconds <= 0 {
			return CreateGameResponse{}, fmt.Errorf("time limit %d: %w", *req.TimeLimitSeconds, hiddencatch.ErrInvalidInput)
		}
		timeLimit = *req.TimeLimitSeconds
	}

	g := hiddencatch.Game{
		Mode:             req.Mode,
		Difficulty:       req.Difficulty,
		Status:           hiddencatch.GameStatusWaitingUpload,
		TimeLimitSeconds: &timeLimit,
	}
	var slots []hiddencatch.UploadSlot
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		if err := tx.CreateGame(&g); err != nil {
			return err
		}
		for n := 1; n <= count; n++ {
			st := hiddencatch.GameStage{GameID: g.ID, StageNumber: n, Status: hiddencatch.StageStatusWaitingUpload}
			if err := tx.CreateStage(&st); err != nil {
				return err
			}
			slot := hiddencatch.UploadSlot{GameID: g.ID, SlotNumber: n, StageID: &st.ID, StorageKey: SlotKey(g.ID, n)}
			if err := tx.CreateSlot(&slot); err != nil {
				return err
			}
			slots = append(slots, slot)
		}
		return nil
	})
	if err != nil {
		return CreateGameResponse{}, err
	}

	resp := CreateGameResponse{
		GameID:           g.ID,
		Mode:             g.Mode,
		Difficulty:       g.Difficulty,
		Status:           g.Status,
		TimeLimitSeconds: timeLimit,
		SlotStatuses:     slotStatuses(slots),
	}
	for _, slot := range slots {
		target := UploadTarget{Slot: slot.SlotNumber, StorageKey: slot.StorageKey}
		u, err := s.blobs.SignedURL(ctx, slot.StorageKey, http.MethodPut, s.opts.PresignTTL)
		switch {
		case err == nil:
			exp := s.now().Add(s.presignTTL()).UTC()
			target.PresignedURL, target.ExpiresAt = u, &exp
		case !errors.Is(err, objstore.ErrSigningUnsupported):
			return CreateGameResponse{}, err
		}
		resp.UploadSlots = append(resp.UploadSlots, target)
	}

	s.opts.Logger.Info("game created", "game_id", g.ID, "mode", g.Mode, "slots", count)
	return resp, nil
}

func (s *Service) presignTTL() time.Duration {
	if s.opts.PresignTTL > 0 {
		return s.opts.PresignTTL
	}
	return 15 * time.Minute
}

// UploadImage stores an image for a slot and then marks the upload complete.
// The game stays locked from the check to the commit, so a stage that turns
// playable in between cannot have its image replaced.
func (s *Service) UploadImage(ctx context.Context, gameID int64, slotNumber int, data []byte, contentType string) (UploadStatusResponse, error) {
	if len(data) == 0 {
		return UploadStatusResponse{}, fmt.Errorf("empty upload: %w", hiddencatch.ErrInvalidInput)
	}

	unlock := s.opts.Locks.Lock(gameID)
	defer unlock()

	var key string
	err := s.store.View(ctx, func(tx *store.Tx) error {
		g, err := tx.Game(gameID)
		if err != nil {
			return err
		}
		slot, err := tx.SlotByNumber(gameID, slotNumber)
		if err != nil {
			return err
		}
		if err := checkReuploadable(&g, slot); err != nil {
			return err
		}
		key = slot.StorageKey
		return nil
	})
	if err != nil {
		return UploadStatusResponse{}, err
	}

	if err := s.blobs.Put(ctx, key, data, contentType); err != nil {
		return UploadStatusResponse{}, err
	}
	return s.markUploadComplete(ctx, gameID, slotNumber)
}

// MarkUploadComplete records that a slot's image is in storage and queues its
// analysis. Calling it again restarts the analysis; the earlier run is
// discarded when it tries to commit.
func (s *Service) MarkUploadComplete(ctx context.Context, gameID int64, slotNumber int) (UploadStatusResponse, error) {
	unlock := s.opts.Locks.Lock(gameID)
	defer unlock()
	return s.markUploadComplete(ctx, gameID, slotNumber)
}

// markUploadComplete expects the game lock to be held.
func (s *Service) markUploadComplete(ctx context.Context, gameID int64, slotNumber int) (UploadStatusResponse, error) {
	var (
		g    hiddencatch.Game
		slot hiddencatch.UploadSlot
	)
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		var err error
		if g, err = tx.Game(gameID); err != nil {
			return err
		}
		if slot, err = tx.SlotByNumber(gameID, slotNumber); err != nil {
			return err
		}
		return s.queueSlot(tx, &g, &slot)
	})
	if err != nil {
		return UploadStatusResponse{}, err
	}

	if err := s.enqueue(ctx, slot); err != nil {
		return UploadStatusResponse{}, err
	}
	s.notify.Publish(gameID, hiddencatch.Event{
		Type:       hiddencatch.EventSlot,
		SlotNumber: slot.SlotNumber,
		Status:     string(slot.AnalysisStatus),
	})
	return s.uploadStatus(ctx, gameID)
}

// checkReuploadable rejects uploads for stages whose puzzle is already in
// play.
func checkReuploadable(g *hiddencatch.Game, slot hiddencatch.UploadSlot) error {
	if g.Status == hiddencatch.GameStatusFinished {
		return fmt.Errorf("game %d is finished: %w", g.ID, hiddencatch.ErrInvalidInput)
	}
	if st := g.Stage(slot.SlotNumber); st != nil && st.Ready() {
		return fmt.Errorf("stage %d is already %s: %w", st.StageNumber, st.Status, hiddencatch.ErrInvalidInput)
	}
	return nil
}

// queueSlot resets a slot to pending under a new run version and moves its
// stage to waiting_puzzle.
func (s *Service) queueSlot(tx *store.Tx, g *hiddencatch.Game, slot *hiddencatch.UploadSlot) error {
	if err := checkReuploadable(g, *slot); err != nil {
		return err
	}
	slot.Uploaded = true
	slot.AnalysisStatus = hiddencatch.AnalysisPending
	slot.AnalysisError = ""
	slot.RunVersion++
	if err := tx.UpdateSlot(slot); err != nil {
		return err
	}

	st := g.Stage(slot.SlotNumber)
	if st == nil {
		return fmt.Errorf("slot %d has no stage: %w", slot.SlotNumber, hiddencatch.ErrInconsistentState)
	}
	st.Status = hiddencatch.StageStatusWaitingPuzzle
	if err := tx.UpdateStage(st); err != nil {
		return err
	}
	g.Status = DeriveStatus(g)
	return tx.UpdateGame(g)
}

// enqueue hands the slot to the pipeline. When the queue is unavailable the
// slot is marked failed so it can be retried.
func (s *Service) enqueue(ctx context.Context, slot hiddencatch.UploadSlot) error {
	enqErr := s.jobs.Enqueue(ctx, queue.Job{SlotID: slot.ID, Version: slot.RunVersion})
	if enqErr == nil {
		return nil
	}
	s.opts.Logger.Error("enqueue failed", "slot_id", slot.ID, "version", slot.RunVersion, "error", enqErr)

	markErr := s.store.Update(ctx, func(tx *store.Tx) error {
		cur, err := tx.Slot(slot.ID)
		if err != nil {
			return err
		}
		if cur.RunVersion != slot.RunVersion {
			return nil
		}
		now := tx.Now()
		cur.AnalysisStatus = hiddencatch.AnalysisFailed
		cur.AnalysisError = "queue unavailable: " + enqErr.Error()
		cur.LastAnalyzedAt = &now
		return tx.UpdateSlot(&cur)
	})
	return errors.Join(fmt.Errorf("enqueueing slot %d: %w", slot.ID, enqErr), markErr)
}

func (s *Service) UploadStatus(ctx context.Context, gameID int64) (UploadStatusResponse, error) {
	return s.uploadStatus(ctx, gameID)
}

func (s *Service) uploadStatus(ctx context.Context, gameID int64) (UploadStatusResponse, error) {
	var resp UploadStatusResponse
	err := s.store.View(ctx, func(tx *store.Tx) error {
		g, err := tx.Game(gameID)
		if err != nil {
			return err
		}
		slots, err := tx.Slots(gameID)
		if err != nil {
			return err
		}
		resp = UploadStatusResponse{GameID: g.ID, Status: g.Status, SlotStatuses: slotStatuses(slots)}
		return nil
	})
	return resp, err
}

func slotStatuses(slots []hiddencatch.UploadSlot) []SlotStatus {
	out := make([]SlotStatus, 0, len(slots))
	for _, sl := range slots {
		out = append(out, SlotStatus{
			Slot:           sl.SlotNumber,
			StorageKey:     sl.StorageKey,
			Uploaded:       sl.Uploaded,
			AnalysisStatus: sl.AnalysisStatus,
			AnalysisError:  sl.AnalysisError,
			LastAnalyzedAt: sl.LastAnalyzedAt,
		})
	}
	return out
}

func (s *Service) GameDetail(ctx context.Context, gameID int64) (GameDetailResponse, error) {
	var (
		resp   GameDetailResponse
		puzzle *hiddencatch.Puzzle
	)
	err := s.store.View(ctx, func(tx *store.Tx) error {
		g, err := tx.Game(gameID)
		if err != nil {
			return err
		}
		resp = GameDetailResponse{
			GameID:           g.ID,
			Mode:             g.Mode,
			Difficulty:       g.Difficulty,
			Status:           g.Status,
			CreatedAt:        g.CreatedAt,
			UpdatedAt:        g.UpdatedAt,
			TimeLimitSeconds: g.TimeLimitSeconds,
			CurrentScore:     g.CurrentScore,
			TotalStages:      len(g.Stages),
			FoundDifferences: []FoundDifference{},
		}
		cur := CurrentStage(&g)
		if cur == nil {
			return nil
		}
		resp.CurrentStage = cur.StageNumber
		resp.FoundDifferenceCount = cur.FoundDifferenceCount
		resp.TotalDifferenceCount = cur.TotalDifferenceCount
		if !cur.Ready() || cur.PuzzleID == nil {
			return nil
		}
		p, err := tx.Puzzle(*cur.PuzzleID)
		if err != nil {
			return err
		}
		puzzle = &p
		resp.FoundDifferences = foundDifferences(cur.Hits, p.Differences)
		return nil
	})
	if err != nil {
		return resp, err
	}
	if puzzle != nil {
		if resp.Puzzle, err = s.puzzleView(ctx, gameID, puzzle); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// ImageURL returns a signed GET URL for key, or the game's API image path
// when the bucket cannot sign.
func (s *Service) ImageURL(ctx context.Context, gameID int64, key string) (string, error) {
	u, err := s.blobs.SignedURL(ctx, key, http.MethodGet, s.opts.PresignTTL)
	if errors.Is(err, objstore.ErrSigningUnsupported) {
		name := strings.TrimPrefix(key, gamePrefix(gameID))
		return fmt.Sprintf("/api/games/%d/images/%s", gameID, name), nil
	}
	return u, err
}

func gamePrefix(gameID int64) string {
	return fmt.Sprintf("games/%d/", gameID)
}

// PuzzleImageKey resolves an image name under a game to its storage key. Only
// the original and modified images of the game's puzzles resolve.
func (s *Service) PuzzleImageKey(ctx context.Context, gameID int64, name string) (string, error) {
	key := gamePrefix(gameID) + name
	err := s.store.View(ctx, func(tx *store.Tx) error {
		g, err := tx.Game(gameID)
		if err != nil {
			return err
		}
		for _, st := range g.Stages {
			if st.PuzzleID == nil {
				continue
			}
			p, err := tx.Puzzle(*st.PuzzleID)
			if err != nil {
				return err
			}
			if key == p.OriginalImageKey || key == p.ModifiedImageKey {
				return nil
			}
		}
		return fmt.Errorf("image %q of game %d: %w", name, gameID, hiddencatch.ErrNotFound)
	})
	return key, err
}

func (s *Service) puzzleView(ctx context.Context, gameID int64, p *hiddencatch.Puzzle) (*PuzzleView, error) {
	modified, err := s.ImageURL(ctx, gameID, p.ModifiedImageKey)
	if err != nil {
		return nil, err
	}
	original, err := s.ImageURL(ctx, gameID, p.OriginalImageKey)
	if err != nil {
		return nil, err
	}
	return &PuzzleView{
		PuzzleID:             p.ID,
		ModifiedImageURL:     modified,
		OriginalImageURL:     original,
		Width:                p.Width,
		Height:               p.Height,
		TotalDifferenceCount: len(p.Differences),
	}, nil
}

// CheckAnswer tests a tap at (x, y) against the stage's differences.
func (s *Service) CheckAnswer(ctx context.Context, gameID int64, stageNumber int, x, y float64) (CheckAnswerResponse, error) {
	unlock := s.opts.Locks.Lock(gameID)
	defer unlock()

	var resp CheckAnswerResponse
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		g, err := tx.Game(gameID)
		if err != nil {
			return err
		}
		st := g.Stage(stageNumber)
		if st == nil {
			return fmt.Errorf("stage %d of game %d: %w", stageNumber, gameID, hiddencatch.ErrNotFound)
		}
		if g.Status == hiddencatch.GameStatusFinished || st.Status != hiddencatch.StageStatusPlaying {
			return fmt.Errorf("stage %d is %s: %w", stageNumber, st.Status, hiddencatch.ErrNotReady)
		}
		if st.PuzzleID == nil {
			return fmt.Errorf("stage %d has no puzzle: %w", stageNumber, hiddencatch.ErrNotReady)
		}
		p, err := tx.Puzzle(*st.PuzzleID)
		if err != nil {
			return err
		}

		out := applyHit(&g, st, p.Differences, x, y, tx.Now())
		if out.hit != nil {
			if err := tx.InsertHit(out.hit); err != nil {
				return err
			}
			st.Hits[len(st.Hits)-1].ID = out.hit.ID
			if err := tx.UpdateStage(st); err != nil {
				return err
			}
			if err := tx.UpdateGame(&g); err != nil {
				return err
			}
		}

		resp = CheckAnswerResponse{
			IsCorrect:            out.isCorrect,
			IsAlreadyFound:       out.isAlreadyFound,
			CurrentScore:         g.CurrentScore,
			FoundDifferenceCount: st.FoundDifferenceCount,
			TotalDifferenceCount: st.TotalDifferenceCount,
			GameStatus:           g.Status,
			FoundDifferences:     foundDifferences(st.Hits, p.Differences),
		}
		if out.hit != nil {
			found := resp.FoundDifferences[len(resp.FoundDifferences)-1]
			resp.NewlyHitDifference = &found
		}
		return nil
	})
	if err != nil {
		return resp, err
	}

	if resp.IsCorrect {
		s.notify.Publish(gameID, hiddencatch.Event{
			Type:                 hiddencatch.EventHit,
			StageNumber:          stageNumber,
			FoundDifferenceCount: resp.FoundDifferenceCount,
			CurrentScore:         resp.CurrentScore,
		})
	}
	return resp, nil
}

// CompleteStage finishes a stage and advances the game to the next one.
func (s *Service) CompleteStage(ctx context.Context, gameID int64, stageNumber int) (StageResultResponse, error) {
	unlock := s.opts.Locks.Lock(gameID)
	defer unlock()

	var (
		resp       StageResultResponse
		nextPuzzle *hiddencatch.Puzzle
	)
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		g, err := tx.Game(gameID)
		if err != nil {
			return err
		}
		next, err := completeStage(&g, stageNumber, tx.Now())
		if err != nil {
			return err
		}
		st := g.Stage(stageNumber)
		if err := tx.UpdateStage(st); err != nil {
			return err
		}
		if next != nil {
			if err := tx.UpdateStage(next); err != nil {
				return err
			}
			if next.PuzzleID != nil {
				p, err := tx.Puzzle(*next.PuzzleID)
				if err != nil {
					return err
				}
				nextPuzzle = &p
			}
		}
		if err := tx.UpdateGame(&g); err != nil {
			return err
		}

		resp = StageResultResponse{
			GameID:               g.ID,
			StageNumber:          stageNumber,
			TotalStages:          len(g.Stages),
			Status:               g.Status,
			CurrentScore:         g.CurrentScore,
			FoundDifferenceCount: st.FoundDifferenceCount,
			TotalDifferenceCount: st.TotalDifferenceCount,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, hiddencatch.ErrInconsistentState) {
			s.opts.Logger.Error("stage completion found inconsistent game", "game_id", gameID, "stage", stageNumber, "error", err)
		}
		return resp, err
	}

	if nextPuzzle != nil {
		if resp.NextPuzzle, err = s.puzzleView(ctx, gameID, nextPuzzle); err != nil {
			return resp, err
		}
	}
	s.notify.Publish(gameID, hiddencatch.Event{
		Type:        hiddencatch.EventStage,
		StageNumber: stageNumber,
		Status:      string(resp.Status),
	})
	return resp, nil
}

// FinishGame ends the game. Finishing a finished game returns the same
// summary again.
func (s *Service) FinishGame(ctx context.Context, gameID int64, req FinishGameRequest) (FinishGameResponse, error) {
	unlock := s.opts.Locks.Lock(gameID)
	defer unlock()

	var resp FinishGameResponse
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		g, err := tx.Game(gameID)
		if err != nil {
			return err
		}
		if g.Status != hiddencatch.GameStatusFinished {
			g.Status = hiddencatch.GameStatusFinished
			if err := tx.UpdateGame(&g); err != nil {
				return err
			}
		}
		resp = FinishGameResponse{
			GameID:     g.ID,
			Status:     g.Status,
			Difficulty: g.Difficulty,
			FinalScore: g.CurrentScore,
		}
		for _, st := range g.Stages {
			resp.FoundDifferenceCount += st.FoundDifferenceCount
			if st.TotalDifferenceCount != nil {
				resp.TotalDifferenceCount += *st.TotalDifferenceCount
			}
		}
		return nil
	})
	if err != nil {
		return resp, err
	}

	attrs := []any{"game_id", gameID, "score", resp.FinalScore}
	if req.PlayTimeMilliseconds != nil {
		attrs = append(attrs, "play_time_ms", *req.PlayTimeMilliseconds)
	}
	s.opts.Logger.Info("game finished", attrs...)
	s.notify.Publish(gameID, hiddencatch.Event{Type: hiddencatch.EventGame, Status: string(resp.Status), CurrentScore: resp.FinalScore})
	return resp, nil
}
