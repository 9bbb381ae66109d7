// Package pipeline turns an uploaded photo into a playable puzzle in two
// steps. Detect finds objects, builds the difference set and persists a
// self-contained DetectionResult on the slot. Edit consumes only that result
// to paint the differences and marks the stage playable.
//
// Every commit checks the slot's run version, so a run superseded by a newer
// upload is dropped instead of overwriting fresher data.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/playperu/hiddencatch/internal/diffset"
	"github.com/playperu/hiddencatch/internal/hiddencatch"
	"github.com/playperu/hiddencatch/internal/keylock"
	"github.com/playperu/hiddencatch/internal/queue"
	"github.com/playperu/hiddencatch/internal/store"
)

type Detector interface {
	Detect(ctx context.Context, image []byte, width, height int) ([]diffset.Object, error)
}

type Editor interface {
	Edit(ctx context.Context, image, mask []byte, prompt string) ([]byte, error)
}

type Blobs interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

type Notifier interface {
	Publish(gameID int64, ev hiddencatch.Event)
}

// DetectionResult is the hand-off between the detect and edit steps.
type DetectionResult struct {
	SlotID      int64            `json:"slot_id"`
	Version     int64            `json:"version"`
	GameID      int64            `json:"game_id"`
	StageNumber int              `json:"stage_number"`
	PuzzleID    int64            `json:"puzzle_id"`
	OriginalKey string           `json:"original_key"`
	Width       int              `json:"width"`
	Height      int              `json:"height"`
	Detections  []diffset.Object `json:"detections"`
	Regions     []diffset.Region `json:"regions"`
}

// errStale marks a run whose slot is gone, has moved to a newer version or
// has already completed this one.
var errStale = errors.New("stale run")

type Pipeline struct {
	store     *store.Store
	blobs     Blobs
	detector  Detector
	editor    Editor
	notify    Notifier
	gameLocks *keylock.Map[int64]
	slotLocks keylock.Map[int64]
	logger    *slog.Logger
}

// New builds a pipeline. gameLocks must be the map the game service uses.
func New(st *store.Store, blobs Blobs, detector Detector, editor Editor, notify Notifier, gameLocks *keylock.Map[int64], logger *slog.Logger) *Pipeline {
	return &Pipeline{
		store:     st,
		blobs:     blobs,
		detector:  detector,
		editor:    editor,
		notify:    notify,
		gameLocks: gameLocks,
		logger:    logger,
	}
}

// Process runs both steps for a job. Failures are recorded on the slot and
// also returned for logging.
func (p *Pipeline) Process(ctx context.Context, job queue.Job) error {
	unlock := p.slotLocks.Lock(job.SlotID)
	defer unlock()

	log := p.logger.With("slot_id", job.SlotID, "version", job.Version)
	start := time.Now()

	res, err := p.detect(ctx, job)
	if err == nil {
		log = log.With("game_id", res.GameID, "regions", len(res.Regions))
		err = p.edit(ctx, job, res)
	}
	switch {
	case errors.Is(err, errStale):
		log.Info("dropping superseded run")
		return nil
	case err != nil:
		p.fail(ctx, job, err, log)
		return err
	}

	log.Info("puzzle ready", "duration", time.Since(start))
	return nil
}

// withSlot runs fn in a transaction under the slot's game lock, after
// checking the slot is still at the job's version.
func (p *Pipeline) withSlot(ctx context.Context, job queue.Job, fn func(tx *store.Tx, slot *hiddencatch.UploadSlot) error) error {
	var gameID int64
	err := p.store.View(ctx, func(tx *store.Tx) error {
		slot, err := tx.Slot(job.SlotID)
		if err != nil {
			return err
		}
		gameID = slot.GameID
		return nil
	})
	if errors.Is(err, hiddencatch.ErrNotFound) {
		return errStale
	}
	if err != nil {
		return err
	}

	unlock := p.gameLocks.Lock(gameID)
	defer unlock()

	return p.store.Update(ctx, func(tx *store.Tx) error {
		slot, err := tx.Slot(job.SlotID)
		if errors.Is(err, hiddencatch.ErrNotFound) {
			return errStale
		}
		if err != nil {
			return err
		}
		if slot.RunVersion != job.Version {
			return errStale
		}
		return fn(tx, &slot)
	})
}

func (p *Pipeline) fail(ctx context.Context, job queue.Job, cause error, log *slog.Logger) {
	log.Warn("analysis failed", "error", cause)
	ctx = context.WithoutCancel(ctx)

	var slot hiddencatch.UploadSlot
	err := p.withSlot(ctx, job, func(tx *store.Tx, s *hiddencatch.UploadSlot) error {
		now := tx.Now()
		s.AnalysisStatus = hiddencatch.AnalysisFailed
		s.AnalysisError = cause.Error()
		s.LastAnalyzedAt = &now
		slot = *s
		return tx.UpdateSlot(s)
	})
	if err != nil {
		if !errors.Is(err, errStale) {
			log.Error("recording failure", "error", err)
		}
		return
	}
	p.notify.Publish(slot.GameID, hiddencatch.Event{
		Type:       hiddencatch.EventSlot,
		SlotNumber: slot.SlotNumber,
		Status:     string(slot.AnalysisStatus),
	})
}
