package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"dialogue-lesson-service/internal/domain"
)

// ProgressStore upserts lesson progress rows keyed by (user_id, lesson_id).
type ProgressStore struct {
	pool *pgxpool.Pool
}

func NewProgressStore(pool *pgxpool.Pool) *ProgressStore {
	return &ProgressStore{pool: pool}
}

func (s *ProgressStore) UpsertProgress(ctx context.Context, p domain.Progress) error {
	step, err := json.Marshal(p.CurrentStepSnapshot)
	if err != nil {
		return fmt.Errorf("encode step: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO lesson_progress (user_id, lesson_id, day, lesson, level, step, completed, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)
		 ON CONFLICT (user_id, lesson_id) DO UPDATE SET
		   day = EXCLUDED.day,
		   lesson = EXCLUDED.lesson,
		   level = EXCLUDED.level,
		   step = EXCLUDED.step,
		   completed = lesson_progress.completed OR EXCLUDED.completed,
		   updated_at = EXCLUDED.updated_at`,
		p.UserID, p.LessonID, p.Day, p.Lesson, p.Level, string(step), p.Completed, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

// GetProgress returns the stored progress, or pgx.ErrNoRows wrapped when none exists.
func (s *ProgressStore) GetProgress(ctx context.Context, userID, lessonID string) (domain.Progress, error) {
	p := domain.Progress{UserID: userID, LessonID: lessonID}
	var step []byte
	err := s.pool.QueryRow(ctx,
		`SELECT day, lesson, level, step, completed, updated_at
		 FROM lesson_progress WHERE user_id=$1 AND lesson_id=$2`, userID, lessonID,
	).Scan(&p.Day, &p.Lesson, &p.Level, &step, &p.Completed, &p.UpdatedAt)
	if err != nil {
		return domain.Progress{}, fmt.Errorf("get progress: %w", err)
	}
	if len(step) > 0 && string(step) != "null" {
		var ptr domain.StepPointer
		if err := json.Unmarshal(step, &ptr); err != nil {
			return domain.Progress{}, fmt.Errorf("decode step: %w", err)
		}
		p.CurrentStepSnapshot = &ptr
	}
	return p, nil
}
