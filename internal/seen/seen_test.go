package seen

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkSeen(t *testing.T) {
	tr := New()
	assert.False(t, tr.IsSeen("/downloads/a.pdf"))

	tr.MarkSeen("/downloads/a.pdf")
	assert.True(t, tr.IsSeen("/downloads/a.pdf"))
	assert.True(t, tr.IsSeen("/downloads/./a.pdf"))
	assert.Equal(t, 1, tr.Len())
}

func TestClaim_OnlyOnce(t *testing.T) {
	tr := New()

	assert.True(t, tr.Claim("/downloads/a.pdf"))
	assert.False(t, tr.Claim("/downloads/a.pdf"))
	assert.True(t, tr.IsSeen("/downloads/a.pdf"))
}

func TestClaim_AfterMarkSeen(t *testing.T) {
	tr := New()
	tr.MarkSeen("/downloads/a.pdf")
	assert.False(t, tr.Claim("/downloads/a.pdf"))
}

func TestClaim_Concurrent(t *testing.T) {
	tr := New()

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tr.Claim("/downloads/race.zip") {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}
