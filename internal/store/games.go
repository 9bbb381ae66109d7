package store

import (
	"database/sql"
	"fmt"

	"github.com/playperu/hiddencatch/internal/hiddencatch"
)

// CreateGame inserts g and fills in its ID and CreatedAt. Stages are not
// written; use CreateStage.
func (t *Tx) CreateGame(g *hiddencatch.Game) error {
	g.CreatedAt = t.Now()
	err := t.queryRow(`
		INSERT INTO games (mode, difficulty, status, time_limit_seconds, current_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`, g.Mode, g.Difficulty, string(g.Status), nullInt(g.TimeLimitSeconds), g.CurrentScore, formatTime(g.CreatedAt)).Scan(&g.ID)
	if err != nil {
		return fmt.Errorf("inserting game: %w", err)
	}
	return nil
}

// Game loads a game with its stages (ordered by number) and their hits.
func (t *Tx) Game(id int64) (hiddencatch.Game, error) {
	var (
		g         hiddencatch.Game
		timeLimit sql.NullInt64
		createdAt string
		updatedAt sql.NullString
	)
	err := t.queryRow(`
		SELECT id, mode, difficulty, status, time_limit_seconds, current_score, created_at, updated_at
		FROM games WHERE id = ?
	`, id).Scan(&g.ID, &g.Mode, &g.Difficulty, &g.Status, &timeLimit, &g.CurrentScore, &createdAt, &updatedAt)
	if err != nil {
		return g, notFound(err, "game", id)
	}
	g.TimeLimitSeconds = intPtr(timeLimit)
	if g.CreatedAt, err = parseTime(createdAt); err != nil {
		return g, err
	}
	if g.UpdatedAt, err = parseNullTime(updatedAt); err != nil {
		return g, err
	}

	g.Stages, err = t.stages(id)
	if err != nil {
		return g, err
	}
	return g, nil
}

// UpdateGame writes the mutable game columns and stamps updated_at.
func (t *Tx) UpdateGame(g *hiddencatch.Game) error {
	now := t.Now()
	g.UpdatedAt = &now
	res, err := t.exec(`
		UPDATE games
		SET difficulty = ?, status = ?, time_limit_seconds = ?, current_score = ?, updated_at = ?
		WHERE id = ?
	`, g.Difficulty, string(g.Status), nullInt(g.TimeLimitSeconds), g.CurrentScore, formatTime(now), g.ID)
	if err != nil {
		return fmt.Errorf("updating game %d: %w", g.ID, err)
	}
	return requireRow(res, "game", g.ID)
}

// DeleteGame removes a game together with its hits, stages and upload slots.
// Puzzles referenced by the stages are kept.
func (t *Tx) DeleteGame(id int64) error {
	if _, err := t.exec(`
		DELETE FROM game_stage_hits
		WHERE stage_id IN (SELECT id FROM game_stages WHERE game_id = ?)
	`, id); err != nil {
		return fmt.Errorf("deleting hits of game %d: %w", id, err)
	}
	if _, err := t.exec(`DELETE FROM game_upload_slots WHERE game_id = ?`, id); err != nil {
		return fmt.Errorf("deleting slots of game %d: %w", id, err)
	}
	if _, err := t.exec(`DELETE FROM game_stages WHERE game_id = ?`, id); err != nil {
		return fmt.Errorf("deleting stages of game %d: %w", id, err)
	}
	res, err := t.exec(`DELETE FROM games WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting game %d: %w", id, err)
	}
	return requireRow(res, "game", id)
}

func (t *Tx) CreateStage(s *hiddencatch.GameStage) error {
	err := t.queryRow(`
		INSERT INTO game_stages (game_id, puzzle_id, stage_number, status, found_difference_count, total_difference_count)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`, s.GameID, nullInt64(s.PuzzleID), s.StageNumber, string(s.Status), s.FoundDifferenceCount, nullInt(s.TotalDifferenceCount)).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("inserting stage %d of game %d: %w", s.StageNumber, s.GameID, err)
	}
	return nil
}

const stageColumns = `id, game_id, puzzle_id, stage_number, status, found_difference_count,
	total_difference_count, started_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStage(row rowScanner) (hiddencatch.GameStage, error) {
	var (
		s                    hiddencatch.GameStage
		puzzleID, total      sql.NullInt64
		startedAt, completed sql.NullString
	)
	err := row.Scan(&s.ID, &s.GameID, &puzzleID, &s.StageNumber, &s.Status, &s.FoundDifferenceCount,
		&total, &startedAt, &completed)
	if err != nil {
		return s, err
	}
	s.PuzzleID = int64Ptr(puzzleID)
	s.TotalDifferenceCount = intPtr(total)
	if s.StartedAt, err = parseNullTime(startedAt); err != nil {
		return s, err
	}
	if s.CompletedAt, err = parseNullTime(completed); err != nil {
		return s, err
	}
	return s, nil
}

// Stage loads a single stage with its hits.
func (t *Tx) Stage(id int64) (hiddencatch.GameStage, error) {
	s, err := scanStage(t.queryRow(`SELECT `+stageColumns+` FROM game_stages WHERE id = ?`, id))
	if err != nil {
		return s, notFound(err, "stage", id)
	}
	s.Hits, err = t.hits(s.ID)
	return s, err
}

func (t *Tx) stages(gameID int64) ([]hiddencatch.GameStage, error) {
	rows, err := t.query(`SELECT `+stageColumns+` FROM game_stages WHERE game_id = ? ORDER BY stage_number`, gameID)
	if err != nil {
		return nil, fmt.Errorf("listing stages of game %d: %w", gameID, err)
	}
	defer rows.Close()

	var stages []hiddencatch.GameStage
	for rows.Next() {
		s, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		stages = append(stages, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range stages {
		if stages[i].Hits, err = t.hits(stages[i].ID); err != nil {
			return nil, err
		}
	}
	return stages, nil
}

func (t *Tx) UpdateStage(s *hiddencatch.GameStage) error {
	res, err := t.exec(`
		UPDATE game_stages
		SET puzzle_id = ?, status = ?, found_difference_count = ?, total_difference_count = ?,
			started_at = ?, completed_at = ?
		WHERE id = ?
	`, nullInt64(s.PuzzleID), string(s.Status), s.FoundDifferenceCount, nullInt(s.TotalDifferenceCount),
		nullTime(s.StartedAt), nullTime(s.CompletedAt), s.ID)
	if err != nil {
		return fmt.Errorf("updating stage %d: %w", s.ID, err)
	}
	return requireRow(res, "stage", s.ID)
}

// InsertHit appends a hit and fills in its ID.
func (t *Tx) InsertHit(h *hiddencatch.GameStageHit) error {
	err := t.queryRow(`
		INSERT INTO game_stage_hits (stage_id, difference_id, hit_at)
		VALUES (?, ?, ?)
		RETURNING id
	`, h.StageID, nullInt64(h.DifferenceID), formatTime(h.HitAt)).Scan(&h.ID)
	if err != nil {
		return fmt.Errorf("inserting hit for stage %d: %w", h.StageID, err)
	}
	return nil
}

func (t *Tx) hits(stageID int64) ([]hiddencatch.GameStageHit, error) {
	rows, err := t.query(`
		SELECT id, stage_id, difference_id, hit_at
		FROM game_stage_hits WHERE stage_id = ? ORDER BY id
	`, stageID)
	if err != nil {
		return nil, fmt.Errorf("listing hits of stage %d: %w", stageID, err)
	}
	defer rows.Close()

	var hits []hiddencatch.GameStageHit
	for rows.Next() {
		var (
			h      hiddencatch.GameStageHit
			diffID sql.NullInt64
			hitAt  string
		)
		if err := rows.Scan(&h.ID, &h.StageID, &diffID, &hitAt); err != nil {
			return nil, err
		}
		h.DifferenceID = int64Ptr(diffID)
		if h.HitAt, err = parseTime(hitAt); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func requireRow(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, hiddencatch.ErrNotFound)
	}
	return nil
}
