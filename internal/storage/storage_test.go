package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func exerciseProvider(t *testing.T, p Provider) {
	t.Helper()
	ctx := context.Background()

	if _, err := p.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}

	if err := p.Set(ctx, "freilog.overlay", `{"v":1}`); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := p.Get(ctx, "freilog.overlay")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != `{"v":1}` {
		t.Errorf("Get = %q", got)
	}

	if err := p.Set(ctx, "freilog.overlay", `{"v":2}`); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	got, _ = p.Get(ctx, "freilog.overlay")
	if got != `{"v":2}` {
		t.Errorf("overwrite = %q", got)
	}

	if err := p.Remove(ctx, "freilog.overlay"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := p.Get(ctx, "freilog.overlay"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after remove = %v, want ErrNotFound", err)
	}
	if err := p.Remove(ctx, "freilog.overlay"); err != nil {
		t.Errorf("Remove absent key must not error: %v", err)
	}

	if err := p.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestMemoryProvider(t *testing.T) {
	exerciseProvider(t, NewMemory())
}

func TestFileProvider(t *testing.T) {
	p, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	exerciseProvider(t, p)
}

func TestFileProviderHashesUnsafeKeys(t *testing.T) {
	dir := t.TempDir()
	p, err := NewFile(dir)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	ctx := context.Background()
	if err := p.Set(ctx, "../escape", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := p.Get(ctx, "../escape")
	if err != nil || got != "v" {
		t.Errorf("Get = %q, %v", got, err)
	}
}

func TestRedisProvider(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	p := NewRedisWithClient(client)
	defer p.Close()

	exerciseProvider(t, p)

	// Values live under the freilog: prefix.
	ctx := context.Background()
	if err := p.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, err := mr.Get("freilog:k"); err != nil || v != "v" {
		t.Errorf("raw value = %q, %v", v, err)
	}
}
