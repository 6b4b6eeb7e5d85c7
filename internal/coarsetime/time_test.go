package coarsetime

import (
	"testing"
	"time"
)

func TestNowIsClose(t *testing.T) {
	got := Now()
	if d := time.Since(got); d < 0 || d > time.Second {
		t.Errorf("coarse time is %v away from the real clock", d)
	}
}

func TestNowAdvances(t *testing.T) {
	first := Now()
	time.Sleep(3 * tick)
	second := Now()

	if !second.After(first) {
		t.Errorf("coarse time did not advance: first=%v second=%v", first, second)
	}
}
