package drivers

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	phonecall "github.com/drewburns/ai-phonecall"
	"github.com/drewburns/ai-phonecall/internal/db"
	"github.com/drewburns/ai-phonecall/session"
	"github.com/redis/go-redis/v9"
)

type storeFactory func(t *testing.T) session.Store

func storeFactories() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) session.Store {
			return NewInMemoryStore(time.Hour)
		},
		"redis": func(t *testing.T) session.Store {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			store := NewRedisStore(client, "", time.Hour)
			t.Cleanup(func() { _ = store.Close() })
			return store
		},
		"sql": func(t *testing.T) session.Store {
			gdb, err := db.OpenGorm("sqlite", filepath.Join(t.TempDir(), "calls.db"))
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			store, err := NewGormStore(gdb, time.Hour)
			if err != nil {
				t.Fatalf("new gorm store: %v", err)
			}
			t.Cleanup(func() { _ = store.Close() })
			return store
		},
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, store session.Store)) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func TestStoreLoadMissingReturnsEmpty(t *testing.T) {
	forEachStore(t, func(t *testing.T, store session.Store) {
		got, err := store.Load(context.Background(), "CA-never-seen")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if got.CallID != "CA-never-seen" || len(got.Turns) != 0 || got.Version != 0 {
			t.Fatalf("load = %+v, want empty unversioned session", got)
		}
		if got.Exists() {
			t.Fatalf("missing session reported as existing")
		}
	})
}

func TestStoreSaveLoadRoundTripPreservesOrder(t *testing.T) {
	forEachStore(t, func(t *testing.T, store session.Store) {
		ctx := context.Background()
		s := session.New("CA1")
		s.From = "+15550001111"
		s.State = session.StateAwaitingSpeech
		for i := 0; i < 3; i++ {
			s.Turns = s.Turns.Append(phonecall.RoleCaller, fmt.Sprintf("question %d", i))
			s.Turns = s.Turns.Append(phonecall.RoleAssistant, fmt.Sprintf("answer %d", i))
		}

		if err := store.Save(ctx, s); err != nil {
			t.Fatalf("save: %v", err)
		}
		if s.Version != 1 {
			t.Fatalf("version after first save = %d, want 1", s.Version)
		}

		got, err := store.Load(ctx, "CA1")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if len(got.Turns) != 6 {
			t.Fatalf("turns = %d, want 6", len(got.Turns))
		}
		for i, turn := range got.Turns {
			if turn != s.Turns[i] {
				t.Fatalf("turn %d = %+v, want %+v", i, turn, s.Turns[i])
			}
		}
		if got.State != session.StateAwaitingSpeech || got.From != "+15550001111" {
			t.Fatalf("loaded = %+v, want state and caller preserved", got)
		}
	})
}

func TestStoreSaveVersionConflict(t *testing.T) {
	forEachStore(t, func(t *testing.T, store session.Store) {
		ctx := context.Background()
		first := session.New("CA1")
		if err := store.Save(ctx, first); err != nil {
			t.Fatalf("save: %v", err)
		}

		stale := session.New("CA1")
		stale.Turns = stale.Turns.Append(phonecall.RoleCaller, "duplicate delivery")
		err := store.Save(ctx, stale)
		if !errors.Is(err, session.ErrVersionConflict) {
			t.Fatalf("err = %v, want ErrVersionConflict", err)
		}
		if stale.Version != 0 {
			t.Fatalf("failed save mutated version to %d", stale.Version)
		}

		got, err := store.Load(ctx, "CA1")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if len(got.Turns) != 0 {
			t.Fatalf("conflicting save leaked turns: %+v", got.Turns)
		}
	})
}

func TestStoreCreateReplacesAndClearIsIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, store session.Store) {
		ctx := context.Background()
		old := session.New("CA1")
		old.Turns = old.Turns.Append(phonecall.RoleCaller, "from a previous call")
		if err := store.Save(ctx, old); err != nil {
			t.Fatalf("save: %v", err)
		}

		fresh := session.New("CA1")
		if err := store.Create(ctx, fresh); err != nil {
			t.Fatalf("create: %v", err)
		}
		if fresh.Version != 1 {
			t.Fatalf("version after create = %d, want 1", fresh.Version)
		}

		got, err := store.Load(ctx, "CA1")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if len(got.Turns) != 0 {
			t.Fatalf("create kept old turns: %+v", got.Turns)
		}

		if err := store.Clear(ctx, "CA1"); err != nil {
			t.Fatalf("clear: %v", err)
		}
		if err := store.Clear(ctx, "CA1"); err != nil {
			t.Fatalf("second clear: %v", err)
		}
		got, err = store.Load(ctx, "CA1")
		if err != nil {
			t.Fatalf("load after clear: %v", err)
		}
		if got.Exists() {
			t.Fatalf("session still exists after clear")
		}
	})
}

func TestStoreLoadedCopyIsIsolated(t *testing.T) {
	forEachStore(t, func(t *testing.T, store session.Store) {
		ctx := context.Background()
		s := session.New("CA1")
		s.Turns = s.Turns.Append(phonecall.RoleCaller, "hello")
		if err := store.Save(ctx, s); err != nil {
			t.Fatalf("save: %v", err)
		}

		loaded, err := store.Load(ctx, "CA1")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		loaded.Turns[0].Text = "mutated"
		loaded.Turns = loaded.Turns.Append(phonecall.RoleAssistant, "never saved")

		again, err := store.Load(ctx, "CA1")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if len(again.Turns) != 1 || again.Turns[0].Text != "hello" {
			t.Fatalf("store affected by caller mutation: %+v", again.Turns)
		}
	})
}

func TestStoreConcurrentSavesOneWinner(t *testing.T) {
	forEachStore(t, func(t *testing.T, store session.Store) {
		ctx := context.Background()
		base := session.New("CA1")
		if err := store.Save(ctx, base); err != nil {
			t.Fatalf("save: %v", err)
		}

		const writers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
		)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				s := base.Clone()
				s.Turns = s.Turns.Append(phonecall.RoleCaller, fmt.Sprintf("writer %d", i))
				err := store.Save(ctx, s)
				if err == nil {
					mu.Lock()
					successes++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		if successes != 1 {
			t.Fatalf("successful concurrent saves = %d, want 1", successes)
		}
		got, err := store.Load(ctx, "CA1")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if len(got.Turns) != 1 || got.Version != 2 {
			t.Fatalf("loaded = %d turns at version %d, want 1 turn at version 2", len(got.Turns), got.Version)
		}
	})
}

func TestStoreEmptyCallID(t *testing.T) {
	forEachStore(t, func(t *testing.T, store session.Store) {
		if _, err := store.Load(context.Background(), ""); !errors.Is(err, session.ErrEmptyCallID) {
			t.Fatalf("load err = %v, want ErrEmptyCallID", err)
		}
		if err := store.Save(context.Background(), &session.CallSession{}); !errors.Is(err, session.ErrEmptyCallID) {
			t.Fatalf("save err = %v, want ErrEmptyCallID", err)
		}
	})
}

func TestInMemoryStoreExpiry(t *testing.T) {
	store := NewInMemoryStore(time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	s := session.New("CA1")
	s.Turns = s.Turns.Append(phonecall.RoleCaller, "hello")
	if err := store.Save(context.Background(), s); err != nil {
		t.Fatalf("save: %v", err)
	}

	now = now.Add(2 * time.Minute)
	got, err := store.Load(context.Background(), "CA1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Exists() || len(got.Turns) != 0 {
		t.Fatalf("expired session still visible: %+v", got)
	}

	// The expired key no longer blocks a fresh first save.
	if err := store.Save(context.Background(), session.New("CA1")); err != nil {
		t.Fatalf("save after expiry: %v", err)
	}
}

func TestRedisStoreTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, "test:", time.Minute)
	t.Cleanup(func() { _ = store.Close() })

	if err := store.Save(context.Background(), session.New("CA1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if ttl := mr.TTL("test:CA1"); ttl != time.Minute {
		t.Fatalf("ttl = %v, want 1m", ttl)
	}

	mr.FastForward(2 * time.Minute)
	got, err := store.Load(context.Background(), "CA1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Exists() {
		t.Fatalf("expired redis session still visible")
	}
}

func TestGormStoreExpiredRowAllowsFreshSave(t *testing.T) {
	gdb, err := db.OpenGorm("sqlite", filepath.Join(t.TempDir(), "calls.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	store, err := NewGormStore(gdb, time.Minute)
	if err != nil {
		t.Fatalf("new gorm store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	s := session.New("CA1")
	s.Turns = s.Turns.Append(phonecall.RoleCaller, "stale")
	if err := store.Save(context.Background(), s); err != nil {
		t.Fatalf("save: %v", err)
	}

	now = now.Add(5 * time.Minute)
	got, err := store.Load(context.Background(), "CA1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Exists() {
		t.Fatalf("expired row still visible")
	}
	if err := store.Save(context.Background(), got); err != nil {
		t.Fatalf("fresh save over expired row: %v", err)
	}
}

func TestNewFactory(t *testing.T) {
	if _, err := New(session.StoreTypeMemory); err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, err := New(session.StoreTypeRedis); !errors.Is(err, session.ErrInvalidConfig) {
		t.Fatalf("redis without client err = %v, want ErrInvalidConfig", err)
	}
	if _, err := New(session.StoreTypeSQL); !errors.Is(err, session.ErrInvalidConfig) {
		t.Fatalf("sql without db err = %v, want ErrInvalidConfig", err)
	}
	if _, err := New("etcd"); !errors.Is(err, session.ErrInvalidStoreType) {
		t.Fatalf("unknown type err = %v, want ErrInvalidStoreType", err)
	}
}
