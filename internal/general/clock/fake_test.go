package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func TestAfterFuncFiresOnAdvance(t *testing.T) {
	c := Fake(epoch)
	fired := 0
	c.AfterFunc(3*time.Second, func() { fired++ })

	c.Advance(2 * time.Second)
	if fired != 0 {
		t.Fatalf("fired early")
	}
	c.Advance(time.Second)
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	c.Advance(10 * time.Second)
	if fired != 1 {
		t.Fatalf("one-shot fired again")
	}
}

func TestAfterFuncResetPostpones(t *testing.T) {
	c := Fake(epoch)
	fired := 0
	timer := c.AfterFunc(3*time.Second, func() { fired++ })

	c.Advance(2 * time.Second)
	if !timer.Reset(3 * time.Second) {
		t.Fatalf("Reset on pending timer returned false")
	}
	c.Advance(2 * time.Second)
	if fired != 0 {
		t.Fatalf("fired before reset deadline")
	}
	c.Advance(time.Second)
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	if c.PendingCount() != 0 {
		t.Fatalf("pending = %d after fire", c.PendingCount())
	}
}

func TestTimerStop(t *testing.T) {
	c := Fake(epoch)
	timer := c.AfterFunc(time.Second, func() { t.Fatal("stopped timer fired") })
	if !timer.Stop() {
		t.Fatal("Stop on pending timer returned false")
	}
	if timer.Stop() {
		t.Fatal("second Stop returned true")
	}
	c.Advance(time.Minute)
}

func TestTickerDropsWhenFull(t *testing.T) {
	c := Fake(epoch)
	ticker := c.NewTicker(5 * time.Second)
	defer ticker.Stop()

	c.Advance(5 * time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("no tick after one interval")
	}

	c.Advance(15 * time.Second)
	<-ticker.C
	select {
	case <-ticker.C:
		t.Fatal("ticker buffered more than one tick")
	default:
	}
}
