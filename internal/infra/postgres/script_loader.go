package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"dialogue-lesson-service/internal/domain"
)

// ScriptLoader loads lesson script JSONB from Postgres.
type ScriptLoader struct {
	pool *pgxpool.Pool
}

func NewScriptLoader(pool *pgxpool.Pool) *ScriptLoader {
	return &ScriptLoader{pool: pool}
}

func (l *ScriptLoader) LoadScript(ctx context.Context, lessonID string) (domain.LessonScript, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM lesson_scripts WHERE id=$1`, lessonID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LessonScript{}, domain.ErrScriptNotFound
	}
	if err != nil {
		return domain.LessonScript{}, fmt.Errorf("load script: %w", err)
	}
	var script domain.LessonScript
	if err := json.Unmarshal(raw, &script); err != nil {
		return domain.LessonScript{}, fmt.Errorf("unmarshal script: %w", err)
	}
	if script.ID == "" {
		script.ID = lessonID
	}
	return script, nil
}

// SaveScript inserts or replaces a lesson script.
func (l *ScriptLoader) SaveScript(ctx context.Context, script domain.LessonScript) error {
	if err := script.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(script)
	if err != nil {
		return fmt.Errorf("marshal script: %w", err)
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO lesson_scripts (id, data) VALUES ($1, $2::jsonb)
		 ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`,
		script.ID, string(data))
	if err != nil {
		return fmt.Errorf("save script: %w", err)
	}
	return nil
}
