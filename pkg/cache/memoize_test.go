package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestKeyIsDeterministic(t *testing.T) {
	a := Key("embed", "bge-large-zh", []string{"问题一"})
	b := Key("embed", "bge-large-zh", []string{"问题一"})
	if a != b {
		t.Errorf("equal arguments produced different keys: %q vs %q", a, b)
	}

	c := Key("embed", "bge-large-zh", []string{"问题二"})
	if a == c {
		t.Error("different arguments produced the same key")
	}
}

func TestMemoizeCachesResults(t *testing.T) {
	c := NewMemory(10, 0)
	calls := 0
	fn := Memoize(c, "embed", "model", time.Minute, func(ctx context.Context, texts []string) ([][]float32, error) {
		calls++
		return [][]float32{{0.1, 0.2}}, nil
	})

	ctx := context.Background()
	first, err := fn(ctx, []string{"query"})
	if err != nil {
		t.Fatalf("first call error = %v", err)
	}
	second, err := fn(ctx, []string{"query"})
	if err != nil {
		t.Fatalf("second call error = %v", err)
	}

	if calls != 1 {
		t.Errorf("underlying fn ran %d times, want 1", calls)
	}
	if len(second) != 1 || second[0][0] != first[0][0] {
		t.Errorf("cached result differs: %v vs %v", second, first)
	}

	if _, err := fn(ctx, []string{"other query"}); err != nil {
		t.Fatalf("third call error = %v", err)
	}
	if calls != 2 {
		t.Errorf("distinct argument did not reach fn, calls = %d", calls)
	}
}

func TestMemoizeDoesNotCacheErrors(t *testing.T) {
	c := NewMemory(10, 0)
	calls := 0
	fn := Memoize(c, "embed", "model", time.Minute, func(ctx context.Context, text string) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})

	ctx := context.Background()
	if _, err := fn(ctx, "q"); err == nil {
		t.Fatal("first call expected error")
	}
	value, err := fn(ctx, "q")
	if err != nil {
		t.Fatalf("second call error = %v", err)
	}
	if value != "ok" {
		t.Errorf("second call = %q, want ok", value)
	}
	if calls != 2 {
		t.Errorf("fn ran %d times, want 2 (error must not be cached)", calls)
	}
}
