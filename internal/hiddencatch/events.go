package hiddencatch

// Event types published to game subscribers.
const (
	EventSlot  = "slot"
	EventStage = "stage"
	EventHit   = "hit"
	EventGame  = "game"
)

// Event is a live update about one game.
type Event struct {
	Type                 string `json:"type"`
	SlotNumber           int    `json:"slot_number,omitempty"`
	StageNumber          int    `json:"stage_number,omitempty"`
	Status               string `json:"status,omitempty"`
	FoundDifferenceCount int    `json:"found_difference_count,omitempty"`
	CurrentScore         int    `json:"current_score,omitempty"`
}
