package jobs

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewJobIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewJobID()
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestGuardUnknownType(t *testing.T) {
	g := NewStaleResultGuard()
	assert.False(t, g.IsCurrent("compute_projection", NewJobID()))
	assert.False(t, g.IsCurrent("compute_projection", ""))
}

func TestGuardSupersession(t *testing.T) {
	g := NewStaleResultGuard()
	first := NewJobID()
	second := NewJobID()

	g.StoreCurrent("compute_projection", first)
	assert.True(t, g.IsCurrent("compute_projection", first))

	// Storing a new token invalidates the old one for that type only.
	g.StoreCurrent("compute_projection", second)
	assert.False(t, g.IsCurrent("compute_projection", first))
	assert.True(t, g.IsCurrent("compute_projection", second))
}

func TestGuardTypesAreIndependent(t *testing.T) {
	g := NewStaleResultGuard()
	load := NewJobID()
	proj := NewJobID()
	g.StoreCurrent("load_image", load)
	g.StoreCurrent("compute_projection", proj)
	assert.True(t, g.IsCurrent("load_image", load))
	assert.True(t, g.IsCurrent("compute_projection", proj))
	assert.False(t, g.IsCurrent("load_image", proj))
}

func TestGuardClear(t *testing.T) {
	g := NewStaleResultGuard()
	id := NewJobID()
	g.StoreCurrent("load_image", id)
	g.Clear("load_image")
	assert.False(t, g.IsCurrent("load_image", id))
	// A new token works again after a clear.
	next := NewJobID()
	g.StoreCurrent("load_image", next)
	assert.True(t, g.IsCurrent("load_image", next))
}

func TestGuardConcurrent(t *testing.T) {
	g := NewStaleResultGuard()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				id := NewJobID()
				g.StoreCurrent("churn", id)
				g.IsCurrent("churn", id)
				if j%50 == 0 {
					g.Clear("churn")
				}
			}
		}()
	}
	wg.Wait()
}
