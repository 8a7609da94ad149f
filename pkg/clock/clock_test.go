package clock

import (
	"testing"
	"time"
)

func TestFakeAdvance(t *testing.T) {
	c := NewFake(1000)
	if c.WallNow() != 1000 {
		t.Fatalf("expected 1000, got %d", c.WallNow())
	}

	c.Advance(500 * time.Millisecond)
	if c.WallNow() != 1500 {
		t.Fatalf("expected 1500, got %d", c.WallNow())
	}
}

func TestFakeSet(t *testing.T) {
	c := NewFake(0)
	c.Set(42)
	if c.WallNow() != 42 {
		t.Fatalf("expected 42, got %d", c.WallNow())
	}
}

func TestRealNowMonotonic(t *testing.T) {
	var c Real
	a := c.Now()
	time.Sleep(time.Millisecond)
	b := c.Now()
	if b <= a {
		t.Fatalf("expected b > a, got a=%v b=%v", a, b)
	}
}
