package resilience

import (
	"errors"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		MaxRequests:  1,
		Interval:     time.Second,
		Timeout:      20 * time.Millisecond,
		FailureRatio: 0.5,
		MinRequests:  2,
	}
}

func TestManager_TripsOnFailureRatio(t *testing.T) {
	m := NewManager(testConfig(), nil)

	for i := 0; i < 2; i++ {
		_, _ = m.Execute(1, func() (interface{}, error) {
			return nil, errors.New("boom")
		})
	}

	if !m.IsOpen(1) {
		t.Fatal("expected circuit to be open after repeated failures")
	}
}

func TestManager_StaysClosedOnSuccess(t *testing.T) {
	m := NewManager(testConfig(), nil)

	for i := 0; i < 5; i++ {
		_, err := m.Execute(2, func() (interface{}, error) {
			return "ok", nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if m.IsOpen(2) {
		t.Fatal("circuit should stay closed when calls succeed")
	}
}

func TestManager_IsOpenUnknownWorker(t *testing.T) {
	m := NewManager(testConfig(), nil)
	if m.IsOpen(999) {
		t.Fatal("unknown worker should not report an open circuit")
	}
}

func TestManager_Remove(t *testing.T) {
	m := NewManager(testConfig(), nil)
	for i := 0; i < 2; i++ {
		_, _ = m.Execute(3, func() (interface{}, error) {
			return nil, errors.New("boom")
		})
	}
	if !m.IsOpen(3) {
		t.Fatal("expected circuit open before removal")
	}
	m.Remove(3)
	if m.IsOpen(3) {
		t.Fatal("removed worker should report closed (unknown)")
	}
}
