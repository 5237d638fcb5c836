package core

import (
	"sync"
	"testing"
)

func TestIDGenerator_StartsAtOne(t *testing.T) {
	var g IDGenerator
	for want := SessionID(1); want <= 3; want++ {
		if got := g.Next(); got != want {
			t.Fatalf("Next() = %d, want %d", got, want)
		}
	}
}

func TestIDGenerator_Concurrent(t *testing.T) {
	var g IDGenerator
	const workers, per = 8, 500

	ids := make(chan SessionID, workers*per)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range per {
				ids <- g.Next()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[SessionID]bool, workers*per)
	for id := range ids {
		if id == 0 || id > workers*per {
			t.Fatalf("id %d out of range", id)
		}
		if seen[id] {
			t.Fatalf("id %d issued twice", id)
		}
		seen[id] = true
	}
}
