package wait

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestUntil_ImmediateTrue(t *testing.T) {
	calls := 0
	err := Until(context.Background(), Options{Timeout: time.Second, Interval: time.Millisecond}, func(context.Context) (bool, error) {
		calls++
		return true, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestUntil_BecomesTrue(t *testing.T) {
	calls := 0
	err := Until(context.Background(), Options{Timeout: 2 * time.Second, Interval: time.Millisecond}, func(context.Context) (bool, error) {
		calls++
		return calls >= 3, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestUntil_TimesOut(t *testing.T) {
	start := time.Now()
	err := Until(context.Background(), Options{Timeout: 50 * time.Millisecond, Interval: 5 * time.Millisecond}, func(context.Context) (bool, error) {
		return false, nil
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("wait took %s, expected it to stop near its bound", elapsed)
	}
}

func TestUntil_ErrorsAreRetriedThenReported(t *testing.T) {
	boom := errors.New("element detached")
	calls := 0
	err := Until(context.Background(), Options{Timeout: 2 * time.Second, Interval: time.Millisecond}, func(context.Context) (bool, error) {
		calls++
		if calls < 3 {
			return false, boom
		}
		return true, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = Until(context.Background(), Options{Timeout: 30 * time.Millisecond, Interval: 5 * time.Millisecond}, func(context.Context) (bool, error) {
		return false, boom
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if got := err.Error(); !strings.Contains(got, "element detached") {
		t.Errorf("error %q should mention the last condition error", got)
	}
}

func TestUntil_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Until(ctx, Options{Timeout: time.Second, Interval: time.Millisecond}, func(context.Context) (bool, error) {
		return false, nil
	})
	if errors.Is(err, ErrTimeout) {
		t.Fatal("cancellation must not be reported as a timeout")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestUntil_RejectsZeroTimeout(t *testing.T) {
	err := Until(context.Background(), Options{}, func(context.Context) (bool, error) { return true, nil })
	if err == nil {
		t.Fatal("expected error for zero timeout")
	}
}
