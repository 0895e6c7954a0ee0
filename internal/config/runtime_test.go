package config

import (
	"sync"
	"testing"
)

func TestRuntimeGetReturnsInitial(t *testing.T) {
	t.Parallel()

	initial := MakeTestConfig()
	runtime := NewRuntime(initial)

	if got := runtime.Get(); got != initial {
		t.Errorf("Expected initial config, got %p", got)
	}
}

func TestRuntimeStoreSwapsConfig(t *testing.T) {
	t.Parallel()

	runtime := NewRuntime(MakeTestConfig())

	updated := MakeTestConfig()
	updated.Limits.GlobalRPS = 64
	runtime.Store(updated)

	got := runtime.Get()
	if got != updated {
		t.Fatalf("Expected updated config, got %p", got)
	}
	if got.Limits.GlobalRPS != 64 {
		t.Errorf("Expected global_rps=64, got %g", got.Limits.GlobalRPS)
	}
}

func TestRuntimeConcurrentAccess(t *testing.T) {
	t.Parallel()

	runtime := NewRuntime(MakeTestConfig())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			runtime.Store(MakeTestConfig())
		}()
		go func() {
			defer wg.Done()
			if runtime.Get() == nil {
				t.Error("Get returned nil during concurrent access")
			}
		}()
	}
	wg.Wait()
}

func TestRuntimeImplementsRuntimeConfig(t *testing.T) {
	t.Parallel()

	var _ RuntimeConfig = NewRuntime(MakeTestConfig())
}
