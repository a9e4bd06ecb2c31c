package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"dialogue-lesson-service/internal/domain"
	"dialogue-lesson-service/internal/infra/memory"
)

type countingLoader struct {
	memory.ScriptLoader
	calls int
}

func (l *countingLoader) LoadScript(ctx context.Context, lessonID string) (domain.LessonScript, error) {
	l.calls++
	return l.ScriptLoader.LoadScript(ctx, lessonID)
}

func sampleScript() domain.LessonScript {
	return domain.LessonScript{
		Vocabulary: []domain.VocabularyCard{{Words: []domain.VocabularyWord{{Word: "apple", Translation: "яблоко"}}}},
		Situations: []domain.Situation{{
			Title: "Cafe",
			Turns: []domain.SituationTurn{{AIText: "Hi!", Task: "Order coffee", Expected: domain.NewAnswer("I want coffee")}},
		}},
	}
}

func TestScriptRepositoryCachesInRedis(t *testing.T) {
	mr, client := newClient(t)
	loader := &countingLoader{ScriptLoader: memory.NewStaticScriptLoader(map[string]domain.LessonScript{
		"lesson-1": sampleScript(),
	})}
	repo := NewScriptRepository(client, loader, time.Minute)

	got, err := repo.GetScript(context.Background(), "lesson-1")
	if err != nil {
		t.Fatalf("get script: %v", err)
	}
	if len(got.Situations) != 1 || got.Situations[0].Turns[0].Expected.First() != "I want coffee" {
		t.Fatalf("unexpected script: %+v", got)
	}
	if !mr.Exists("lesson:script:lesson-1") {
		t.Fatalf("expected script to be cached")
	}
	if ttl := mr.TTL("lesson:script:lesson-1"); ttl < time.Minute || ttl > 66*time.Second {
		t.Fatalf("expected ttl with jitter, got %v", ttl)
	}

	if _, err := repo.GetScript(context.Background(), "lesson-1"); err != nil {
		t.Fatalf("get script 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
}

func TestScriptRepositoryMissing(t *testing.T) {
	_, client := newClient(t)
	repo := NewScriptRepository(client, memory.NewStaticScriptLoader(nil), time.Minute)

	if _, err := repo.GetScript(context.Background(), "nope"); !errors.Is(err, domain.ErrScriptNotFound) {
		t.Fatalf("expected ErrScriptNotFound, got %v", err)
	}
}

func TestScriptRepositoryCacheKeepsVariants(t *testing.T) {
	_, client := newClient(t)
	script := sampleScript()
	script.Grammar = []domain.GrammarSection{{
		Title:  "Short answers",
		Drills: []domain.GrammarDrill{{Question: "Are you ready?", Expected: domain.NewAnswer("Yes", "Yeah")}},
	}}
	loader := &countingLoader{ScriptLoader: memory.NewStaticScriptLoader(map[string]domain.LessonScript{"lesson-1": script})}
	repo := NewScriptRepository(client, loader, time.Minute)

	first, err := repo.GetScript(context.Background(), "lesson-1")
	if err != nil {
		t.Fatalf("get script: %v", err)
	}
	cached, err := repo.GetScript(context.Background(), "lesson-1")
	if err != nil {
		t.Fatalf("get cached script: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
	want := first.Grammar[0].Drills[0].Expected.Variants
	got := cached.Grammar[0].Drills[0].Expected.Variants
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected variants %v after cache hit, got %v", want, got)
	}
}
