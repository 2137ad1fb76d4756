package paginate

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
)

func TestRun_OffsetPlan(t *testing.T) {
	var mu sync.Mutex
	var offsets []int

	d := NewDriver(WithPageSize(50), WithConcurrency(3))
	result, err := d.Run(context.Background(), "test",
		func(ctx context.Context) (int, error) { return 137, nil },
		func(ctx context.Context, skip, take int) (int, error) {
			mu.Lock()
			offsets = append(offsets, skip)
			mu.Unlock()
			if take != 50 {
				t.Errorf("take = %d, want 50", take)
			}
			return take, nil
		})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	sort.Ints(offsets)
	want := []int{0, 50, 100}
	if len(offsets) != len(want) {
		t.Fatalf("offsets = %v, want %v", offsets, want)
	}
	for i := range want {
		if offsets[i] != want[i] {
			t.Errorf("offsets = %v, want %v", offsets, want)
			break
		}
	}

	if result.PagesPlanned != 3 || result.PagesFailed != 0 || result.Records != 150 {
		t.Errorf("result = %+v", result)
	}
	if result.Partial() {
		t.Error("clean run reported partial")
	}
}

func TestRun_ZeroTotalSkipsPages(t *testing.T) {
	d := NewDriver()
	result, err := d.Run(context.Background(), "test",
		func(ctx context.Context) (int, error) { return 0, nil },
		func(ctx context.Context, skip, take int) (int, error) {
			t.Error("page fetched despite zero total")
			return 0, nil
		})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.PagesPlanned != 0 || result.Records != 0 {
		t.Errorf("result = %+v", result)
	}
}

func TestRun_CountFailureIsFatal(t *testing.T) {
	countErr := errors.New("boom")
	d := NewDriver()
	_, err := d.Run(context.Background(), "test",
		func(ctx context.Context) (int, error) { return 0, countErr },
		func(ctx context.Context, skip, take int) (int, error) { return 0, nil })
	if !errors.Is(err, countErr) {
		t.Errorf("err = %v, want wrapped %v", err, countErr)
	}
}

func TestRun_PageFailureIsContained(t *testing.T) {
	d := NewDriver(WithPageSize(10), WithConcurrency(2))
	result, err := d.Run(context.Background(), "test",
		func(ctx context.Context) (int, error) { return 40, nil },
		func(ctx context.Context, skip, take int) (int, error) {
			if skip == 20 {
				return 0, errors.New("upstream 500")
			}
			return take, nil
		})
	if err != nil {
		t.Fatalf("Run returned error for a page failure: %v", err)
	}
	if result.PagesFailed != 1 {
		t.Errorf("PagesFailed = %d, want 1", result.PagesFailed)
	}
	if result.Records != 30 {
		t.Errorf("Records = %d, want 30", result.Records)
	}
	if !result.Partial() {
		t.Error("run with a failed page should report partial")
	}
}

func TestRun_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	d := NewDriver(WithPageSize(1), WithConcurrency(1))
	fetched := 0
	_, err := d.Run(ctx, "test",
		func(ctx context.Context) (int, error) { return 1000, nil },
		func(ctx context.Context, skip, take int) (int, error) {
			fetched++
			if fetched == 3 {
				cancel()
			}
			return take, nil
		})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if fetched >= 1000 {
		t.Error("cancellation did not stop the page plan")
	}
}
