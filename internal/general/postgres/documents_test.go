package postgres

import (
	"context"
	"errors"
	"os"
	"reflect"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"ridemarket/internal/ports"
)

func TestContainmentNestsEqualityFilters(t *testing.T) {
	got := containment([]ports.Filter{
		ports.Where("clientId", ports.OpEq, "u1"),
		ports.Where("pickup.address", ports.OpEq, "Rua A"),
		ports.Where("estimatedFare", ports.OpGt, 10),
		ports.Where("driverId", ports.OpEq, nil),
	})
	want := map[string]any{
		"clientId": "u1",
		"pickup":   map[string]any{"address": "Rua A"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("containment = %#v, want %#v", got, want)
	}
}

// openTestStore connects to RIDEMARKET_TEST_DSN and skips without it.
func openTestStore(t *testing.T) *DocumentStore {
	t.Helper()
	dsn := os.Getenv("RIDEMARKET_TEST_DSN")
	if dsn == "" {
		t.Skip("RIDEMARKET_TEST_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("Migrate: %v", err)
	}
	store := NewDocumentStore(pool)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestDocumentStoreConditionalUpdate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	coll := "rides-" + uuid.NewString()

	created, err := store.Set(ctx, coll, "r1", map[string]any{"status": "PENDING", "clientId": "c1"}, false)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, conflicts := 0, 0
	for _, driver := range []string{"d1", "d2", "d3", "d4"} {
		wg.Add(1)
		go func(driver string) {
			defer wg.Done()
			_, err := store.Update(ctx, coll, "r1",
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
				t.Errorf("Update: %v", err)
			}
		}(driver)
	}
	wg.Wait()
	if wins != 1 || conflicts != 3 {
		t.Fatalf("wins=%d conflicts=%d, want 1/3", wins, conflicts)
	}

	got, err := store.Get(ctx, coll, "r1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Version <= created.Version || got.Seq != created.Seq {
		t.Fatalf("version %d->%d seq %d->%d", created.Version, got.Version, created.Seq, got.Seq)
	}
	if got.Fields["clientId"] != "c1" {
		t.Fatalf("update dropped clientId: %v", got.Fields)
	}
}

func TestDocumentStoreQueryAndDelete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	coll := "rides-" + uuid.NewString()

	for _, f := range []map[string]any{
		{"clientId": "c1", "fare": 12.0},
		{"clientId": "c2", "fare": 30.0},
		{"clientId": "c1", "fare": 25.0},
	} {
		if _, err := store.Create(ctx, coll, f); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	docs, err := store.Query(ctx, coll, ports.Query{
		Filters: []ports.Filter{ports.Where("clientId", ports.OpEq, "c1")},
		OrderBy: "fare",
		Desc:    true,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(docs) != 2 || docs[0].Fields["fare"] != 25.0 {
		t.Fatalf("unexpected query result: %+v", docs)
	}

	version, err := store.Delete(ctx, coll, docs[0].ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if version <= docs[0].Version {
		t.Fatalf("deletion version %d not after %d", version, docs[0].Version)
	}
	if _, err := store.Get(ctx, coll, docs[0].ID); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("Get after delete: %v", err)
	}
	if _, err := store.Delete(ctx, coll, docs[0].ID); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("second Delete: %v", err)
	}
}
