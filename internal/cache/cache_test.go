package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetOrLoad_CachesResult(t *testing.T) {
	c, err := New(100, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	var loads int32
	loader := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&loads, 1)
		return "value", nil
	}

	v, err := c.GetOrLoad(context.Background(), "k", loader)
	if err != nil || v != "value" {
		t.Fatalf("unexpected result: %v, %v", v, err)
	}
	c.Wait()

	if _, err := c.GetOrLoad(context.Background(), "k", loader); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&loads); n != 1 {
		t.Errorf("expected 1 load, got %d", n)
	}
}

func TestGetOrLoad_SingleFlight(t *testing.T) {
	c, err := New(100, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	var loads int32
	gate := make(chan struct{})
	loader := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&loads, 1)
		<-gate
		return 42, nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]any, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrLoad(context.Background(), "k", loader)
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
			}
			results[i] = v
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	if n := atomic.LoadInt32(&loads); n != 1 {
		t.Errorf("expected exactly 1 in-flight load, got %d", n)
	}
	for i, v := range results {
		if v != 42 {
			t.Errorf("caller %d got %v", i, v)
		}
	}
}

func TestGetOrLoad_ErrorsNotCached(t *testing.T) {
	c, err := New(100, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	var loads int32
	loader := func(ctx context.Context) (any, error) {
		if atomic.AddInt32(&loads, 1) == 1 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	}

	if _, err := c.GetOrLoad(context.Background(), "k", loader); err == nil {
		t.Fatal("expected first load to fail")
	}
	v, err := c.GetOrLoad(context.Background(), "k", loader)
	if err != nil || v != "ok" {
		t.Fatalf("second load should succeed: %v, %v", v, err)
	}
}

func TestSetTTL_Expires(t *testing.T) {
	c, err := New(100, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	c.SetTTL("neg", "miss", 20*time.Millisecond)
	c.Wait()

	if _, ok := c.Get("neg"); !ok {
		t.Fatal("entry should be present before TTL")
	}
	time.Sleep(50 * time.Millisecond)
	if _, ok := c.Get("neg"); ok {
		t.Error("entry should have expired")
	}
}
