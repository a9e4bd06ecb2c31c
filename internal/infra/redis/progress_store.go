package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"dialogue-lesson-service/internal/domain"
)

// ProgressStore keeps lesson progress in a hash per learner and lesson:
// HSET lesson:progress:{userID}:{lessonID} day lesson level step completed updated_at
type ProgressStore struct {
	client *redis.Client
}

func NewProgressStore(client *redis.Client) *ProgressStore {
	return &ProgressStore{client: client}
}

func (s *ProgressStore) UpsertProgress(ctx context.Context, p domain.Progress) error {
	step, err := json.Marshal(p.CurrentStepSnapshot)
	if err != nil {
		return fmt.Errorf("encode step: %w", err)
	}
	key := s.key(p.UserID, p.LessonID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"day", p.Day,
			"lesson", p.Lesson,
			"level", p.Level,
			"step", step,
			"updated_at", p.UpdatedAt.UTC().Format(time.RFC3339Nano),
		)
		// A completed lesson stays completed.
		if p.Completed {
			pipe.HSet(ctx, key, "completed", "1")
		} else {
			pipe.HSetNX(ctx, key, "completed", "0")
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

// GetProgress reads the stored progress of userID in lessonID.
func (s *ProgressStore) GetProgress(ctx context.Context, userID, lessonID string) (domain.Progress, error) {
	fields, err := s.client.HGetAll(ctx, s.key(userID, lessonID)).Result()
	if err != nil {
		return domain.Progress{}, fmt.Errorf("get progress: %w", err)
	}
	if len(fields) == 0 {
		return domain.Progress{}, redis.Nil
	}

	p := domain.Progress{UserID: userID, LessonID: lessonID, Level: fields["level"], Completed: fields["completed"] == "1"}
	p.Day, _ = strconv.Atoi(fields["day"])
	p.Lesson, _ = strconv.Atoi(fields["lesson"])
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, fields["updated_at"])
	if raw := fields["step"]; raw != "" && raw != "null" {
		var step domain.StepPointer
		if err := json.Unmarshal([]byte(raw), &step); err == nil {
			p.CurrentStepSnapshot = &step
		}
	}
	return p, nil
}

func (s *ProgressStore) key(userID, lessonID string) string {
	return "lesson:progress:" + userID + ":" + lessonID
}
