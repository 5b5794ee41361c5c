package mongodb

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_nextSeq(t *testing.T) {
	const workers, perWorker = 8, 500

	var mu sync.Mutex
	seen := make(map[int64]bool, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prev := int64(0)
			for i := 0; i < perWorker; i++ {
				seq := nextSeq()
				assert.Greater(t, seq, prev)
				prev = seq

				mu.Lock()
				seen[seq] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, workers*perWorker)
}
