package envelope

import (
	"sync"
	"testing"
)

func TestSequenceMonotonic(t *testing.T) {
	var s Sequence
	if s.Current() != 0 {
		t.Fatalf("initial = %d", s.Current())
	}
	for want := uint32(1); want <= 100; want++ {
		if got := s.Next(); got != want {
			t.Fatalf("Next = %d; want %d", got, want)
		}
	}
}

func TestSequenceConcurrent(t *testing.T) {
	var s Sequence
	const workers, per = 8, 250
	seen := make([]bool, workers*per+1)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < per; j++ {
				n := s.Next()
				mu.Lock()
				if seen[n] {
					t.Errorf("duplicate %d", n)
				}
				seen[n] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	for n := 1; n < len(seen); n++ {
		if !seen[n] {
			t.Fatalf("gap at %d", n)
		}
	}
}
