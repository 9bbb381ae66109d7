package store

import (
	"database/sql"
	"fmt"

	"github.com/playperu/hiddencatch/internal/hiddencatch"
)

func (t *Tx) CreatePuzzle(p *hiddencatch.Puzzle) error {
	err := t.queryRow(`
		INSERT INTO puzzles (difficulty, original_image_key, modified_image_key, width, height, is_completed)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`, p.Difficulty, p.OriginalImageKey, p.ModifiedImageKey, p.Width, p.Height, boolInt(p.IsCompleted)).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("inserting puzzle: %w", err)
	}
	return nil
}

// Puzzle loads a puzzle with its differences ordered by index.
func (t *Tx) Puzzle(id int64) (hiddencatch.Puzzle, error) {
	var (
		p         hiddencatch.Puzzle
		completed int
	)
	err := t.queryRow(`
		SELECT id, difficulty, original_image_key, modified_image_key, width, height, is_completed
		FROM puzzles WHERE id = ?
	`, id).Scan(&p.ID, &p.Difficulty, &p.OriginalImageKey, &p.ModifiedImageKey, &p.Width, &p.Height, &completed)
	if err != nil {
		return p, notFound(err, "puzzle", id)
	}
	p.IsCompleted = completed != 0

	p.Differences, err = t.differences(id)
	return p, err
}

func (t *Tx) UpdatePuzzle(p *hiddencatch.Puzzle) error {
	res, err := t.exec(`
		UPDATE puzzles
		SET difficulty = ?, original_image_key = ?, modified_image_key = ?, width = ?, height = ?, is_completed = ?
		WHERE id = ?
	`, p.Difficulty, p.OriginalImageKey, p.ModifiedImageKey, p.Width, p.Height, boolInt(p.IsCompleted), p.ID)
	if err != nil {
		return fmt.Errorf("updating puzzle %d: %w", p.ID, err)
	}
	return requireRow(res, "puzzle", p.ID)
}

func (t *Tx) differences(puzzleID int64) ([]hiddencatch.Difference, error) {
	rows, err := t.query(`
		SELECT id, puzzle_id, idx, x, y, width, height, label
		FROM differences WHERE puzzle_id = ? ORDER BY idx
	`, puzzleID)
	if err != nil {
		return nil, fmt.Errorf("listing differences of puzzle %d: %w", puzzleID, err)
	}
	defer rows.Close()

	var diffs []hiddencatch.Difference
	for rows.Next() {
		var (
			d     hiddencatch.Difference
			label sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.PuzzleID, &d.Index, &d.Rect.X, &d.Rect.Y, &d.Rect.Width, &d.Rect.Height, &label); err != nil {
			return nil, err
		}
		d.Label = label.String
		diffs = append(diffs, d)
	}
	return diffs, rows.Err()
}

// ReplaceDifferences supersedes a puzzle's difference set. Hits pointing at
// the old set keep their row with a null difference id. The returned slice
// carries the new IDs.
func (t *Tx) ReplaceDifferences(puzzleID int64, diffs []hiddencatch.Difference) ([]hiddencatch.Difference, error) {
	if err := t.detachHits(puzzleID); err != nil {
		return nil, err
	}
	if _, err := t.exec(`DELETE FROM differences WHERE puzzle_id = ?`, puzzleID); err != nil {
		return nil, fmt.Errorf("deleting differences of puzzle %d: %w", puzzleID, err)
	}

	out := make([]hiddencatch.Difference, len(diffs))
	for i, d := range diffs {
		d.PuzzleID = puzzleID
		var label sql.NullString
		if d.Label != "" {
			label = sql.NullString{String: d.Label, Valid: true}
		}
		err := t.queryRow(`
			INSERT INTO differences (puzzle_id, idx, x, y, width, height, label)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			RETURNING id
		`, puzzleID, d.Index, d.Rect.X, d.Rect.Y, d.Rect.Width, d.Rect.Height, label).Scan(&d.ID)
		if err != nil {
			return nil, fmt.Errorf("inserting difference %d of puzzle %d: %w", d.Index, puzzleID, err)
		}
		out[i] = d
	}
	return out, nil
}

// DeletePuzzle removes a puzzle and its differences. Stages that showed the
// puzzle and hits that matched its differences are kept with null references.
func (t *Tx) DeletePuzzle(id int64) error {
	if _, err := t.exec(`UPDATE game_stages SET puzzle_id = NULL WHERE puzzle_id = ?`, id); err != nil {
		return fmt.Errorf("detaching stages from puzzle %d: %w", id, err)
	}
	if err := t.detachHits(id); err != nil {
		return err
	}
	if _, err := t.exec(`DELETE FROM differences WHERE puzzle_id = ?`, id); err != nil {
		return fmt.Errorf("deleting differences of puzzle %d: %w", id, err)
	}
	res, err := t.exec(`DELETE FROM puzzles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting puzzle %d: %w", id, err)
	}
	return requireRow(res, "puzzle", id)
}

// PuzzleGameIDs lists the games with a stage showing the puzzle, ascending.
func (t *Tx) PuzzleGameIDs(puzzleID int64) ([]int64, error) {
	rows, err := t.query(`
		SELECT DISTINCT game_id FROM game_stages WHERE puzzle_id = ? ORDER BY game_id
	`, puzzleID)
	if err != nil {
		return nil, fmt.Errorf("listing games of puzzle %d: %w", puzzleID, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (t *Tx) detachHits(puzzleID int64) error {
	_, err := t.exec(`
		UPDATE game_stage_hits SET difference_id = NULL
		WHERE difference_id IN (SELECT id FROM differences WHERE puzzle_id = ?)
	`, puzzleID)
	if err != nil {
		return fmt.Errorf("detaching hits from puzzle %d: %w", puzzleID, err)
	}
	return nil
}
