package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ridemarket/internal/general/clock"
	"ridemarket/internal/general/logger"
	"ridemarket/internal/ports"
)

func openTestStore(t *testing.T, clk clock.Clock) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "docs.db"), 4, clk, logger.Discard())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestVersionsAndSeq(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 7, 15, 9, 0, 0, 0, time.UTC)
	store := openTestStore(t, clock.Fake(t0))

	a, err := store.Set(ctx, "rides", "a", map[string]any{"status": "PENDING", "fare": 12.5}, false)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	b, err := store.Create(ctx, "rides", map[string]any{"status": "PENDING"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	a2, err := store.Update(ctx, "rides", "a", ports.Patch{"status": "ACCEPTED", "pickup.address": "Rua A"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !(a.Version < b.Version && b.Version < a2.Version) {
		t.Fatalf("versions not increasing: %d %d %d", a.Version, b.Version, a2.Version)
	}
	if a.Seq != 1 || b.Seq != 2 || a2.Seq != 1 {
		t.Fatalf("seq = %d %d %d, want 1 2 1", a.Seq, b.Seq, a2.Seq)
	}

	got, err := store.Get(ctx, "rides", "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Fields["fare"] != 12.5 || got.Fields["status"] != "ACCEPTED" {
		t.Fatalf("fields = %v", got.Fields)
	}
	pickup, _ := got.Fields["pickup"].(map[string]any)
	if pickup["address"] != "Rua A" {
		t.Fatalf("nested patch lost: %v", got.Fields)
	}
	if !got.UpdateTime.Equal(t0) {
		t.Fatalf("update time = %v, want %v", got.UpdateTime, t0)
	}
}

func TestConditionalUpdateSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, nil)
	if _, err := store.Set(ctx, "rides", "r1", map[string]any{"status": "PENDING"}, false); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, conflicts := 0, 0
	for _, driver := range []string{"d1", "d2", "d3", "d4", "d5", "d6"} {
		wg.Add(1)
		go func(driver string) {
			defer wg.Done()
			_, err := store.Update(ctx, "rides", "r1",
				ports.Patch{"status": "ACCEPTED", "driverId": driver},
				ports.Equals("status", "PENDING"), ports.Absent("driverId"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ports.ErrPreconditionFailed):
				conflicts++
			default:
				t.Errorf("Update(%s): %v", driver, err)
			}
		}(driver)
	}
	wg.Wait()
	if wins != 1 || conflicts != 5 {
		t.Fatalf("wins=%d conflicts=%d, want 1/5", wins, conflicts)
	}
}

func TestMergeSetAndQuery(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, nil)

	if _, err := store.Set(ctx, "users", "u1", map[string]any{"name": "Ana", "rating": 4.8}, false); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := store.Set(ctx, "users", "u1", map[string]any{"isOnline": true}, true); err != nil {
		t.Fatalf("merge Set: %v", err)
	}
	if _, err := store.Set(ctx, "users", "u2", map[string]any{"name": "Bia", "rating": 4.2, "isOnline": true}, false); err != nil {
		t.Fatalf("Set: %v", err)
	}

	docs, err := store.Query(ctx, "users", ports.Query{
		Filters: []ports.Filter{ports.Where("isOnline", ports.OpEq, true)},
		OrderBy: "rating",
		Desc:    true,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "u1" || docs[0].Fields["name"] != "Ana" {
		t.Fatalf("unexpected query result: %+v", docs)
	}
}

func TestDeleteAndMissing(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, nil)

	doc, _ := store.Set(ctx, "roleGrants", "u1", map[string]any{"role": "ADMIN"}, false)
	version, err := store.Delete(ctx, "roleGrants", "u1")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if version <= doc.Version {
		t.Fatalf("deletion version %d not after %d", version, doc.Version)
	}
	if _, err := store.Get(ctx, "roleGrants", "u1"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("Get after delete: %v", err)
	}
	if _, err := store.Delete(ctx, "roleGrants", "u1"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("second Delete: %v", err)
	}
	if _, err := store.Update(ctx, "roleGrants", "u1", ports.Patch{"role": "MODERATOR"}); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("Update missing: %v", err)
	}
}
