package lib

import "sync"
import "testing"

func TestSpinlock(t *testing.T) {
	var spin Spinlock
	nroutines, repeat := 8, 10000
	counter := 0

	var wg sync.WaitGroup
	wg.Add(nroutines)
	for n := 0; n < nroutines; n++ {
		go func() {
			defer wg.Done()
			for i := 0; i < repeat; i++ {
				spin.Lock()
				counter++
				spin.Unlock()
			}
		}()
	}
	wg.Wait()
	if counter != nroutines*repeat {
		t.Errorf("expected %v, got %v", nroutines*repeat, counter)
	}
}
