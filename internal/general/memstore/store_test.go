package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"ridemarket/internal/ports"
)

func TestVersionsIncreaseAcrossDocuments(t *testing.T) {
	ctx := context.Background()
	s := New(nil)

	a, _ := s.Set(ctx, "rides", "a", map[string]any{"status": "PENDING"}, false)
	b, _ := s.Set(ctx, "rides", "b", map[string]any{"status": "PENDING"}, false)
	a2, err := s.Update(ctx, "rides", "a", ports.Patch{"status": "ACCEPTED"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !(a.Version < b.Version && b.Version < a2.Version) {
		t.Fatalf("versions not increasing: %d %d %d", a.Version, b.Version, a2.Version)
	}
	if a2.Seq != a.Seq {
		t.Fatalf("update changed creation seq")
	}
}

func TestConditionalUpdateSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	_, _ = s.Set(ctx, "rides", "r1", map[string]any{"status": "PENDING"}, false)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, conflicts := 0, 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Update(ctx, "rides", "r1",
				ports.Patch{"status": "ACCEPTED", "driverId": i},
				ports.Equals("status", "PENDING"), ports.Absent("driverId"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ports.ErrPreconditionFailed):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if wins != 1 || conflicts != 15 {
		t.Fatalf("wins=%d conflicts=%d", wins, conflicts)
	}
}

func TestMergeSetKeepsOtherFields(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	_, _ = s.Set(ctx, "users", "u1", map[string]any{"name": "Ana", "role": "CLIENT"}, false)
	doc, err := s.Set(ctx, "users", "u1", map[string]any{"isOnline": true}, true)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Fields["name"] != "Ana" || doc.Fields["isOnline"] != true {
		t.Fatalf("merge lost fields: %v", doc.Fields)
	}
}

func TestGetReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	_, _ = s.Set(ctx, "users", "u1", map[string]any{"name": "Ana"}, false)
	doc, _ := s.Get(ctx, "users", "u1")
	doc.Fields["name"] = "mutated"
	again, _ := s.Get(ctx, "users", "u1")
	if again.Fields["name"] != "Ana" {
		t.Fatal("caller mutation leaked into the store")
	}
}

func TestMissingDocument(t *testing.T) {
	s := New(nil)
	if _, err := s.Get(context.Background(), "rides", "nope"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	if _, err := s.Update(context.Background(), "rides", "nope", ports.Patch{"a": 1}); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}
