package memory

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"dialogue-lesson-service/internal/domain"
)

// ScriptLoader fetches lesson scripts from a backing store (e.g., document DB).
type ScriptLoader interface {
	LoadScript(ctx context.Context, lessonID string) (domain.LessonScript, error)
}

// ScriptRepository caches lesson scripts with TTL to avoid repeated DB hits.
type ScriptRepository struct {
	loader ScriptLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedScript
}

type cachedScript struct {
	script    domain.LessonScript
	expiresAt time.Time
}

func NewScriptRepository(loader ScriptLoader, ttl time.Duration) *ScriptRepository {
	return &ScriptRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedScript),
	}
}

func (r *ScriptRepository) GetScript(ctx context.Context, lessonID string) (domain.LessonScript, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[lessonID]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.script, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(lessonID, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[lessonID]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.script, nil
		}
		r.mu.RUnlock()

		script, err := r.loader.LoadScript(ctx, lessonID)
		if err != nil {
			return domain.LessonScript{}, err
		}

		r.mu.Lock()
		r.cache[lessonID] = cachedScript{
			script:    script,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return script, nil
	})
	if err != nil {
		return domain.LessonScript{}, err
	}
	return result.(domain.LessonScript), nil
}

func (r *ScriptRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// up to 10% jitter spreads expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticScriptLoader serves scripts from an in-memory map (demos, tests, bundled lessons).
type StaticScriptLoader struct {
	scripts map[string]domain.LessonScript
}

func NewStaticScriptLoader(scripts map[string]domain.LessonScript) *StaticScriptLoader {
	return &StaticScriptLoader{scripts: scripts}
}

func (l *StaticScriptLoader) LoadScript(_ context.Context, lessonID string) (domain.LessonScript, error) {
	if script, ok := l.scripts[lessonID]; ok {
		return script, nil
	}
	return domain.LessonScript{}, domain.ErrScriptNotFound
}

//go:embed scripts/*.json
var bundled embed.FS

// BundledScripts parses the lesson scripts shipped with the binary.
func BundledScripts() (map[string]domain.LessonScript, error) {
	return ScriptsFromFS(bundled, "scripts")
}

// ScriptsFromFS parses and validates every JSON script in dir.
func ScriptsFromFS(fsys fs.FS, dir string) (map[string]domain.LessonScript, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read scripts: %w", err)
	}
	out := make(map[string]domain.LessonScript, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := fs.ReadFile(fsys, dir+"/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		var script domain.LessonScript
		if err := json.Unmarshal(data, &script); err != nil {
			return nil, fmt.Errorf("parse %s: %w", entry.Name(), err)
		}
		if err := script.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", entry.Name(), err)
		}
		out[script.ID] = script
	}
	return out, nil
}
