package timex

import (
	"testing"
	"time"
)

func TestMs(t *testing.T) {
	if got := Ms(1500); got != 1500*time.Millisecond {
		t.Fatalf("Ms(1500) = %v", got)
	}
	if got := Ms(0); got != 0 {
		t.Fatalf("Ms(0) = %v", got)
	}
}

func TestNowMsMonotoneEnough(t *testing.T) {
	a := NowMs()
	b := NowMs()
	if b < a || a <= 0 {
		t.Fatalf("NowMs went backwards: %d then %d", a, b)
	}
}
