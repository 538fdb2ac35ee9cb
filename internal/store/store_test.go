package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type sample struct {
	Index  int               `json:"index"`
	Status map[string]string `json:"status"`
}

func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	if _, err := kv.Get(ctx, "puzzleState_c1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	found, err := GetJSON(ctx, kv, "puzzleState_c1", &sample{})
	if err != nil || found {
		t.Fatalf("GetJSON on missing key: found=%v err=%v", found, err)
	}

	in := sample{Index: 3, Status: map[string]string{"p1": "success"}}
	if err := SetJSON(ctx, kv, "puzzleState_c1", in); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	var out sample
	found, err = GetJSON(ctx, kv, "puzzleState_c1", &out)
	if err != nil || !found {
		t.Fatalf("GetJSON: found=%v err=%v", found, err)
	}
	if out.Index != 3 || out.Status["p1"] != "success" {
		t.Fatalf("round trip mismatch: %+v", out)
	}

	in.Index = 4
	if err := SetJSON(ctx, kv, "puzzleState_c1", in); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if _, err := GetJSON(ctx, kv, "puzzleState_c1", &out); err != nil || out.Index != 4 {
		t.Fatalf("overwrite not visible: %+v %v", out, err)
	}

	if err := kv.Delete(ctx, "puzzleState_c1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := kv.Delete(ctx, "puzzleState_c1"); err != nil {
		t.Fatalf("Delete twice: %v", err)
	}
	if _, err := kv.Get(ctx, "puzzleState_c1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryKV(t *testing.T) {
	exerciseKV(t, NewMemory())
}

func TestFileKV(t *testing.T) {
	kv, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	exerciseKV(t, kv)
}

func TestFileKVSanitizesKeys(t *testing.T) {
	dir := t.TempDir()
	kv, _ := NewFile(dir)
	ctx := context.Background()
	if err := kv.Set(ctx, "../escape/key", []byte(`{}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(ents) != 1 || ents[0].Name() != "___escape_key.json" {
		t.Fatalf("unexpected files %v", ents)
	}
}

func TestRedisKV(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	exerciseKV(t, NewRedis(rdb, time.Hour))
}

func TestRedisKVExpires(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	kv, err := OpenRedis(context.Background(), "redis://"+mr.Addr()+"/0", time.Minute)
	if err != nil {
		t.Fatalf("OpenRedis: %v", err)
	}
	defer kv.Close()

	ctx := context.Background()
	if err := kv.Set(ctx, "puzzleState_casual", []byte(`{"score":10}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !mr.Exists(keyPrefix + "puzzleState_casual") {
		t.Fatalf("expected prefixed key in redis")
	}
	mr.FastForward(2 * time.Minute)
	if _, err := kv.Get(ctx, "puzzleState_casual"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected key to expire, got %v", err)
	}
}

func TestPostgresKV(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	kv, err := OpenPostgres(context.Background(), url)
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	defer kv.Close()
	exerciseKV(t, kv)
}

func TestOpenRejectsUnknownKind(t *testing.T) {
	if _, err := Open(context.Background(), Options{Kind: "etcd"}); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
	kv, err := Open(context.Background(), Options{})
	if err != nil {
		t.Fatalf("default kind: %v", err)
	}
	if _, ok := kv.(*Memory); !ok {
		t.Fatalf("expected memory store by default, got %T", kv)
	}
}
