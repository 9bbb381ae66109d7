package game

import (
	"time"

	"github.com/playperu/hiddencatch/internal/hiddencatch"
)

type CreateGameRequest struct {
	Mode               string `json:"mode"`
	Difficulty         string `json:"difficulty,omitempty"`
	TimeLimitSeconds   *int   `json:"time_limit_seconds,omitempty"`
	RequestedSlotCount int    `json:"requested_slot_count,omitempty"`
}

type UploadTarget struct {
	Slot         int        `json:"slot"`
	StorageKey   string     `json:"storage_key"`
	PresignedURL string     `json:"presigned_url,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

type SlotStatus struct {
	Slot           int                        `json:"slot"`
	StorageKey     string                     `json:"storage_key"`
	Uploaded       bool                       `json:"uploaded"`
	AnalysisStatus hiddencatch.AnalysisStatus `json:"analysis_status"`
	AnalysisError  string                     `json:"analysis_error,omitempty"`
	LastAnalyzedAt *time.Time                 `json:"last_analyzed_at,omitempty"`
}

type CreateGameResponse struct {
	GameID           int64                  `json:"game_id"`
	Mode             string                 `json:"mode"`
	Difficulty       string                 `json:"difficulty,omitempty"`
	Status           hiddencatch.GameStatus `json:"status"`
	TimeLimitSeconds int                    `json:"time_limit_seconds"`
	UploadSlots      []UploadTarget         `json:"upload_slots"`
	SlotStatuses     []SlotStatus           `json:"slot_statuses"`
}

type UploadStatusResponse struct {
	GameID       int64                  `json:"game_id"`
	Status       hiddencatch.GameStatus `json:"status"`
	SlotStatuses []SlotStatus           `json:"slot_statuses"`
}

type PuzzleView struct {
	PuzzleID             int64  `json:"puzzle_id"`
	ModifiedImageURL     string `json:"modified_image_url"`
	OriginalImageURL     string `json:"original_image_url"`
	Width                int    `json:"width"`
	Height               int    `json:"height"`
	TotalDifferenceCount int    `json:"total_difference_count"`
}

type GameDetailResponse struct {
	GameID               int64                  `json:"game_id"`
	Mode                 string                 `json:"mode"`
	Difficulty           string                 `json:"difficulty,omitempty"`
	Status               hiddencatch.GameStatus `json:"status"`
	CreatedAt            time.Time              `json:"created_at"`
	UpdatedAt            *time.Time             `json:"updated_at,omitempty"`
	TimeLimitSeconds     *int                   `json:"time_limit_seconds,omitempty"`
	CurrentScore         int                    `json:"current_score"`
	CurrentStage         int                    `json:"current_stage"`
	TotalStages          int                    `json:"total_stages"`
	FoundDifferenceCount int                    `json:"found_difference_count"`
	TotalDifferenceCount *int                   `json:"total_difference_count"`
	Puzzle               *PuzzleView            `json:"puzzle"`
	FoundDifferences     []FoundDifference      `json:"found_differences"`
}

type CheckAnswerRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type CheckAnswerResponse struct {
	IsCorrect            bool                   `json:"is_correct"`
	IsAlreadyFound       bool                   `json:"is_already_found"`
	CurrentScore         int                    `json:"current_score"`
	FoundDifferenceCount int                    `json:"found_difference_count"`
	TotalDifferenceCount *int                   `json:"total_difference_count"`
	GameStatus           hiddencatch.GameStatus `json:"game_status"`
	NewlyHitDifference   *FoundDifference       `json:"newly_hit_difference"`
	FoundDifferences     []FoundDifference      `json:"found_differences"`
}

type StageResultResponse struct {
	GameID               int64                  `json:"game_id"`
	StageNumber          int                    `json:"stage_number"`
	TotalStages          int                    `json:"total_stages"`
	Status               hiddencatch.GameStatus `json:"status"`
	CurrentScore         int                    `json:"current_score"`
	FoundDifferenceCount int                    `json:"found_difference_count"`
	TotalDifferenceCount *int                   `json:"total_difference_count"`
	NextPuzzle           *PuzzleView            `json:"next_puzzle"`
}

type FinishGameRequest struct {
	PlayTimeMilliseconds *int64 `json:"play_time_milliseconds,omitempty"`
}

type FinishGameResponse struct {
	GameID               int64                  `json:"game_id"`
	Status               hiddencatch.GameStatus `json:"status"`
	Difficulty           string                 `json:"difficulty,omitempty"`
	FinalScore           int                    `json:"final_score"`
	FoundDifferenceCount int                    `json:"found_difference_count"`
	TotalDifferenceCount int                    `json:"total_difference_count"`
}
