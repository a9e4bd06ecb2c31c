package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"dialogue-lesson-service/internal/domain"
	"dialogue-lesson-service/internal/infra/memory"
)

// ScriptRepository caches lesson scripts in Redis as JSON and falls back to a loader on cache miss.
// Scripts are stored as: SET lesson:script:{lessonID} {json}
type ScriptRepository struct {
	client *redis.Client
	loader memory.ScriptLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewScriptRepository(client *redis.Client, loader memory.ScriptLoader, ttl time.Duration) *ScriptRepository {
	return &ScriptRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *ScriptRepository) GetScript(ctx context.Context, lessonID string) (domain.LessonScript, error) {
	key := r.key(lessonID)
	if script, ok := r.cached(ctx, key); ok {
		return script, nil
	}

	result, err, _ := r.sf.Do(lessonID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if script, ok := r.cached(ctx, key); ok {
			return script, nil
		}

		script, err := r.loader.LoadScript(ctx, lessonID)
		if err != nil {
			return domain.LessonScript{}, err
		}
		if raw, err := json.Marshal(script); err == nil {
			_ = r.client.Set(ctx, key, raw, r.ttlWithJitter()).Err()
		}
		return script, nil
	})
	if err != nil {
		return domain.LessonScript{}, err
	}
	return result.(domain.LessonScript), nil
}

func (r *ScriptRepository) cached(ctx context.Context, key string) (domain.LessonScript, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return domain.LessonScript{}, false
	}
	var script domain.LessonScript
	if err := json.Unmarshal(raw, &script); err != nil {
		return domain.LessonScript{}, false
	}
	return script, true
}

func (r *ScriptRepository) key(lessonID string) string {
	return "lesson:script:" + lessonID
}

func (r *ScriptRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
