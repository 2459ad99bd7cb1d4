package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/paifgx/quizdom-sub003/internal/domain"
)

// ResultJournal persists finished game results as JSONB rows.
type ResultJournal struct {
	pool *pgxpool.Pool
}

func NewResultJournal(pool *pgxpool.Pool) *ResultJournal {
	return &ResultJournal{pool: pool}
}

func (j *ResultJournal) Record(ctx context.Context, result domain.GameResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = j.pool.Exec(ctx,
		`INSERT INTO games (id, data, finished_at) VALUES ($1, $2::jsonb, $3)
		 ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data, finished_at=EXCLUDED.finished_at`,
		result.SessionID, data, result.FinishedAt)
	if err != nil {
		return fmt.Errorf("record result: %w", err)
	}
	return nil
}

func (j *ResultJournal) Load(ctx context.Context, sessionID string) (domain.GameResult, error) {
	var raw []byte
	err := j.pool.QueryRow(ctx, `SELECT data FROM games WHERE id=$1`, sessionID).Scan(&raw)
	if err != nil {
		return domain.GameResult{}, fmt.Errorf("load result: %w", err)
	}
	var result domain.GameResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return domain.GameResult{}, fmt.Errorf("unmarshal result: %w", err)
	}
	return result, nil
}
