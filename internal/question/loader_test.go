package question

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type staticSource struct {
	calls atomic.Int32
	bank  map[int64][]Question
	err   error
}

func (s *staticSource) ListByCompetition(ctx context.Context, competitionID int64) ([]Question, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return append([]Question(nil), s.bank[competitionID]...), nil
}

type fakeSigner struct {
	n int
}

func (f *fakeSigner) Sign(key string, ttl time.Duration) (string, error) {
	f.n++
	if strings.Contains(key, "broken") {
		return "", errors.New("signing failed")
	}
	return "https://files.test/" + key + "?sig=" + ttl.String(), nil
}

func sampleBank() []Question {
	return []Question{
		{ID: 1, CompetitionID: 9, SeqNo: 1, Prompt: "Capital?", Body: Text{CorrectAnswer: "Paris"},
			Media: &Media{Type: MediaImage, Key: "media/map.png"}},
		{ID: 2, CompetitionID: 9, SeqNo: 2, Prompt: "2+2", Body: MultipleChoice{Choices: []string{"3", "4"}, CorrectAnswer: "4"}},
	}
}

func TestLoaderSignsMediaOnEveryLoad(t *testing.T) {
	src := &staticSource{bank: map[int64][]Question{9: sampleBank()}}
	signer := &fakeSigner{}
	l := NewLoader(src, signer, 15*time.Minute)

	for i := 0; i < 2; i++ {
		qs, err := l.Load(context.Background(), 9)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if len(qs) != 2 || qs[0].ID != 1 || qs[1].ID != 2 {
			t.Fatalf("bank order not preserved: %+v", qs)
		}
		if qs[0].Media == nil || !strings.HasPrefix(qs[0].Media.URL, "https://files.test/media/map.png") {
			t.Fatalf("expected signed url, got %+v", qs[0].Media)
		}
	}
	if signer.n != 2 {
		t.Fatalf("expected one signature per load, got %d", signer.n)
	}
	if src.bank[9][0].Media.URL != "" {
		t.Fatalf("source media must not be mutated")
	}
}

func TestLoaderEmptyBankIsNotAnError(t *testing.T) {
	l := NewLoader(&staticSource{bank: map[int64][]Question{}}, &fakeSigner{}, time.Minute)
	qs, err := l.Load(context.Background(), 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(qs) != 0 {
		t.Fatalf("expected empty bank, got %d", len(qs))
	}
}

func TestLoaderSurfacesSigningFailure(t *testing.T) {
	bank := []Question{{ID: 1, Prompt: "x", Body: Text{CorrectAnswer: "y"}, Media: &Media{Type: MediaAudio, Key: "media/broken.mp3"}}}
	l := NewLoader(&staticSource{bank: map[int64][]Question{1: bank}}, &fakeSigner{}, time.Minute)
	if _, err := l.Load(context.Background(), 1); err == nil {
		t.Fatalf("expected signing error")
	}
}

func TestCachedSourceServesFromRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	src := &staticSource{bank: map[int64][]Question{9: sampleBank()}}
	cache := NewCachedSource(client, src, time.Minute)

	first, err := cache.ListByCompetition(context.Background(), 9)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	if !mr.Exists("olympiad:bank:9") {
		t.Fatalf("expected bank to be cached")
	}
	second, err := cache.ListByCompetition(context.Background(), 9)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if src.calls.Load() != 1 {
		t.Fatalf("expected one source call, got %d", src.calls.Load())
	}
	if len(second) != len(first) {
		t.Fatalf("cached bank differs: %d vs %d", len(second), len(first))
	}
	mc, ok := second[1].Body.(MultipleChoice)
	if !ok || mc.CorrectAnswer != "4" {
		t.Fatalf("cached body lost its variant: %#v", second[1].Body)
	}

	if err := cache.Invalidate(context.Background(), 9); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if mr.Exists("olympiad:bank:9") {
		t.Fatalf("expected cache key removed")
	}
	if _, err := cache.ListByCompetition(context.Background(), 9); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if src.calls.Load() != 2 {
		t.Fatalf("expected reload from source, got %d calls", src.calls.Load())
	}
}

func TestCachedSourcePropagatesSourceError(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	boom := errors.New("db down")
	cache := NewCachedSource(client, &staticSource{err: boom}, time.Minute)
	if _, err := cache.ListByCompetition(context.Background(), 1); !errors.Is(err, boom) {
		t.Fatalf("expected source error, got %v", err)
	}
	if mr.Exists("olympiad:bank:1") {
		t.Fatalf("failed loads must not be cached")
	}
}
