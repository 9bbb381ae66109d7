package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/playperu/hiddencatch/internal/hiddencatch"
)

func (t *Tx) CreateSlot(s *hiddencatch.UploadSlot) error {
	if s.AnalysisStatus == "" {
		s.AnalysisStatus = hiddencatch.AnalysisPending
	}
	err := t.queryRow(`
		INSERT INTO game_upload_slots (game_id, slot_number, stage_id, storage_key, uploaded, analysis_status)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`, s.GameID, s.SlotNumber, nullInt64(s.StageID), s.StorageKey, boolInt(s.Uploaded), string(s.AnalysisStatus)).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("inserting slot %d of game %d: %w", s.SlotNumber, s.GameID, err)
	}
	return nil
}

const slotColumns = `id, game_id, slot_number, stage_id, storage_key, uploaded, analysis_status,
	analysis_error, detected_objects, last_analyzed_at, run_version`

func scanSlot(row rowScanner) (hiddencatch.UploadSlot, error) {
	var (
		s                            hiddencatch.UploadSlot
		stageID                      sql.NullInt64
		uploaded                     int
		analysisErr, detected, lastA sql.NullString
	)
	err := row.Scan(&s.ID, &s.GameID, &s.SlotNumber, &stageID, &s.StorageKey, &uploaded, &s.AnalysisStatus,
		&analysisErr, &detected, &lastA, &s.RunVersion)
	if err != nil {
		return s, err
	}
	s.StageID = int64Ptr(stageID)
	s.Uploaded = uploaded != 0
	s.AnalysisError = analysisErr.String
	if detected.Valid {
		s.DetectedObjects = json.RawMessage(detected.String)
	}
	if s.LastAnalyzedAt, err = parseNullTime(lastA); err != nil {
		return s, err
	}
	return s, nil
}

func (t *Tx) Slot(id int64) (hiddencatch.UploadSlot, error) {
	s, err := scanSlot(t.queryRow(`SELECT `+slotColumns+` FROM game_upload_slots WHERE id = ?`, id))
	if err != nil {
		return s, notFound(err, "slot", id)
	}
	return s, nil
}

func (t *Tx) SlotByNumber(gameID int64, number int) (hiddencatch.UploadSlot, error) {
	s, err := scanSlot(t.queryRow(`
		SELECT `+slotColumns+` FROM game_upload_slots WHERE game_id = ? AND slot_number = ?
	`, gameID, number))
	if err != nil {
		return s, notFound(err, "slot", fmt.Sprintf("%d/%d", gameID, number))
	}
	return s, nil
}

// Slots lists a game's upload slots ordered by slot number.
func (t *Tx) Slots(gameID int64) ([]hiddencatch.UploadSlot, error) {
	rows, err := t.query(`
		SELECT `+slotColumns+` FROM game_upload_slots WHERE game_id = ? ORDER BY slot_number
	`, gameID)
	if err != nil {
		return nil, fmt.Errorf("listing slots of game %d: %w", gameID, err)
	}
	defer rows.Close()

	var slots []hiddencatch.UploadSlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

func (t *Tx) UpdateSlot(s *hiddencatch.UploadSlot) error {
	var analysisErr, detected sql.NullString
	if s.AnalysisError != "" {
		analysisErr = sql.NullString{String: s.AnalysisError, Valid: true}
	}
	if len(s.DetectedObjects) > 0 {
		detected = sql.NullString{String: string(s.DetectedObjects), Valid: true}
	}
	res, err := t.exec(`
		UPDATE game_upload_slots
		SET stage_id = ?, storage_key = ?, uploaded = ?, analysis_status = ?, analysis_error = ?,
			detected_objects = ?, last_analyzed_at = ?, run_version = ?
		WHERE id = ?
	`, nullInt64(s.StageID), s.StorageKey, boolInt(s.Uploaded), string(s.AnalysisStatus), analysisErr,
		detected, nullTime(s.LastAnalyzedAt), s.RunVersion, s.ID)
	if err != nil {
		return fmt.Errorf("updating slot %d: %w", s.ID, err)
	}
	return requireRow(res, "slot", s.ID)
}
