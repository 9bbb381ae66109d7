// Package hiddencatch holds the domain types shared by the store, the game
// service and the analysis pipeline.
package hiddencatch

import (
	"encoding/json"
	"time"

	"github.com/playperu/hiddencatch/internal/geometry"
)

type GameStatus string

const (
	GameStatusWaitingUpload    GameStatus = "waiting_upload"
	GameStatusWaitingPuzzle    GameStatus = "waiting_puzzle"
	GameStatusWaitingNextStage GameStatus = "waiting_next_stage"
	GameStatusPlaying          GameStatus = "playing"
	GameStatusFinished         GameStatus = "finished"
)

type StageStatus string

const (
	StageStatusWaitingUpload StageStatus = "waiting_upload"
	StageStatusWaitingPuzzle StageStatus = "waiting_puzzle"
	StageStatusPlaying       StageStatus = "playing"
	StageStatusFinished      StageStatus = "finished"
)

type AnalysisStatus string

const (
	AnalysisPending    AnalysisStatus = "pending"
	AnalysisProcessing AnalysisStatus = "processing"
	AnalysisCompleted  AnalysisStatus = "completed"
	AnalysisFailed     AnalysisStatus = "failed"
)

type Game struct {
	ID               int64
	Mode             string
	Difficulty       string
	Status           GameStatus
	TimeLimitSeconds *int
	CurrentScore     int
	CreatedAt        time.Time
	UpdatedAt        *time.Time
	Stages           []GameStage // ordered by StageNumber
}

// Stage returns a pointer into g.Stages for the given 1-based number.
func (g *Game) Stage(number int) *GameStage {
	for i := range g.Stages {
		if g.Stages[i].StageNumber == number {
			return &g.Stages[i]
		}
	}
	return nil
}

type GameStage struct {
	ID                   int64
	GameID               int64
	PuzzleID             *int64
	StageNumber          int
	Status               StageStatus
	FoundDifferenceCount int
	TotalDifferenceCount *int
	StartedAt            *time.Time
	CompletedAt          *time.Time
	Hits                 []GameStageHit
}

// Ready reports whether the stage's puzzle can be played.
func (s GameStage) Ready() bool {
	return s.Status == StageStatusPlaying || s.Status == StageStatusFinished
}

type GameStageHit struct {
	ID           int64
	StageID      int64
	DifferenceID *int64 // nil once the difference has been deleted
	HitAt        time.Time
}

type Puzzle struct {
	ID               int64
	Difficulty       string
	OriginalImageKey string
	ModifiedImageKey string
	Width            int
	Height           int
	IsCompleted      bool
	Differences      []Difference // ordered by Index
}

type Difference struct {
	ID       int64
	PuzzleID int64
	Index    int // 1-based
	Rect     geometry.Rect
	Label    string
}

type UploadSlot struct {
	ID              int64
	GameID          int64
	SlotNumber      int
	StageID         *int64
	StorageKey      string
	Uploaded        bool
	AnalysisStatus  AnalysisStatus
	AnalysisError   string
	DetectedObjects json.RawMessage
	LastAnalyzedAt  *time.Time
	RunVersion      int64
}
