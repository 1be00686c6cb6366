package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phagelab/go-playback/frame"
	"github.com/phagelab/go-playback/logger"
)

func testFrame(n int) frame.Frame {
	return frame.Frame{Width: n, Height: 1, Pix: make([]float32, n)}
}

func pkey(image int64, t int) PrimaryKey {
	return PrimaryKey{ImageID: image, Kind: "mean", TimeIndex: t}
}

func ykey(image int64, level int) PyramidKey {
	return PyramidKey{ImageID: image, Kind: "mean", Level: level, Factor: frame.LevelFactor(level)}
}

func TestGetMiss(t *testing.T) {
	c := New()
	_, ok := c.Get(pkey(1, 0))
	assert.False(t, ok)
	_, ok = c.GetPyramid(ykey(1, 1))
	assert.False(t, ok)
}

func TestPutGetRoundTrip(t *testing.T) {
	c := New()
	f := testFrame(100)
	c.Put(pkey(1, 0), f)
	got, ok := c.Get(pkey(1, 0))
	require.True(t, ok)
	assert.Equal(t, f, got)
	st := c.Stats()
	assert.EqualValues(t, 400, st.BytesUsed)
	assert.Equal(t, 1, st.Entries)
}

func TestBudgetInvariant(t *testing.T) {
	// Four 200x200 float32 frames of 160,000 bytes each against a
	// budget that holds exactly three: the fourth insert must force the
	// first key out, and tracked bytes never exceed the budget.
	c := New(WithBudget(3 * 160000))
	for i := 0; i < 4; i++ {
		c.Put(pkey(1, i), frame.Frame{Width: 200, Height: 200, Pix: make([]float32, 200*200)})
		assert.LessOrEqual(t, c.Stats().BytesUsed, int64(3*160000))
	}
	_, ok := c.Get(pkey(1, 0))
	assert.False(t, ok, "oldest entry must be evicted")
	_, ok = c.Get(pkey(1, 3))
	assert.True(t, ok, "newest entry must survive")
}

func TestReplaceDoesNotDoubleCount(t *testing.T) {
	c := New()
	c.Put(pkey(1, 0), testFrame(100))
	c.Put(pkey(1, 0), testFrame(50))
	st := c.Stats()
	assert.EqualValues(t, 200, st.BytesUsed)
	assert.Equal(t, 1, st.Entries)
}

func TestOversizedInsertSelfEvicts(t *testing.T) {
	c := New(WithBudget(100))
	c.Put(pkey(1, 0), testFrame(1000))
	st := c.Stats()
	assert.EqualValues(t, 0, st.BytesUsed)
	assert.Equal(t, 0, st.Entries)
	_, ok := c.Get(pkey(1, 0))
	assert.False(t, ok)
}

func TestPyramidEvictedBeforePrimary(t *testing.T) {
	c := New(WithBudget(1000))
	c.Put(pkey(1, 0), testFrame(100))        // 400 bytes
	c.PutPyramid(ykey(1, 1), testFrame(100)) // 400 bytes
	// 200 more bytes pushes over budget; the pyramid entry must go even
	// though it is fresher than the primary entry.
	c.Put(pkey(1, 1), testFrame(100))
	_, ok := c.GetPyramid(ykey(1, 1))
	assert.False(t, ok)
	_, ok = c.Get(pkey(1, 0))
	assert.True(t, ok)
	_, ok = c.Get(pkey(1, 1))
	assert.True(t, ok)
}

func TestLRUPromotionOnGet(t *testing.T) {
	c := New(WithBudget(800))
	a, b, third := pkey(1, 0), pkey(1, 1), pkey(1, 2)
	c.Put(a, testFrame(100))
	c.Put(b, testFrame(100))
	// Access A so B becomes the eviction candidate.
	_, ok := c.Get(a)
	require.True(t, ok)
	c.Put(third, testFrame(100))
	_, ok = c.Get(b)
	assert.False(t, ok, "B must be evicted")
	_, ok = c.Get(a)
	assert.True(t, ok, "A was promoted and must survive")
}

func TestInvalidateImage(t *testing.T) {
	c := New()
	c.Put(pkey(1, 0), testFrame(100))
	c.Put(pkey(2, 0), testFrame(50))
	c.PutPyramid(ykey(1, 1), testFrame(25))
	c.PutPyramid(ykey(2, 1), testFrame(10))
	before := c.Stats()
	c.InvalidateImage(1)
	st := c.Stats()
	assert.Equal(t, 2, st.Entries)
	assert.EqualValues(t, before.BytesUsed-400-100, st.BytesUsed)
	_, ok := c.Get(pkey(2, 0))
	assert.True(t, ok)
	_, ok = c.GetPyramid(ykey(2, 1))
	assert.True(t, ok)
	_, ok = c.Get(pkey(1, 0))
	assert.False(t, ok)
}

func TestSetBudgetEvictsImmediately(t *testing.T) {
	c := New(WithBudget(10000))
	for i := 0; i < 5; i++ {
		c.Put(pkey(1, i), testFrame(100))
	}
	assert.Equal(t, 5, c.Stats().Entries)
	c.SetBudget(800)
	st := c.Stats()
	assert.LessOrEqual(t, st.BytesUsed, int64(800))
	assert.Equal(t, 2, st.Entries)
	// Most recent entries survive.
	_, ok := c.Get(pkey(1, 4))
	assert.True(t, ok)
}

func TestClear(t *testing.T) {
	c := New()
	c.Put(pkey(1, 0), testFrame(100))
	c.PutPyramid(ykey(1, 1), testFrame(100))
	c.Clear()
	st := c.Stats()
	assert.EqualValues(t, 0, st.BytesUsed)
	assert.Equal(t, 0, st.Entries)
}

func TestTelemetryCounts(t *testing.T) {
	c := New(WithBudget(800))
	c.Put(pkey(1, 0), testFrame(100))
	c.Get(pkey(1, 0))
	c.Get(pkey(1, 9))
	c.Put(pkey(1, 1), testFrame(100))
	c.Put(pkey(1, 2), testFrame(100)) // evicts one
	tel := c.Telemetry()
	assert.EqualValues(t, 1, tel.Hits)
	assert.EqualValues(t, 1, tel.Misses)
	assert.EqualValues(t, 1, tel.Evictions)
	assert.EqualValues(t, 400, tel.BytesEvicted)
	assert.InDelta(t, 0.5, tel.HitRatio(), 1e-9)
	c.ResetTelemetry()
	assert.EqualValues(t, Telemetry{}, c.Telemetry())
}

func TestNearBudgetWarningFiresOnce(t *testing.T) {
	log := logger.NewTestLogger()
	var warnings []string
	c := New(
		WithBudget(1000),
		WithLogger(log),
		WithWarningFunc(func(msg string) { warnings = append(warnings, msg) }),
	)
	c.Put(pkey(1, 0), testFrame(230)) // 920 bytes -> 92%
	c.Put(pkey(1, 0), testFrame(230))
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "92.0%")
	assert.True(t, log.Contains("budget"))
	// SetBudget re-arms the latch.
	c.SetBudget(960)
	assert.Len(t, warnings, 2)
}

func TestConcurrentAccess(t *testing.T) {
	c := New(WithBudget(100000))
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				c.Put(pkey(int64(g), i%20), testFrame(50))
				c.Get(pkey(int64(g), (i+1)%20))
				if i%17 == 0 {
					c.InvalidateImage(int64(g))
				}
				c.Stats()
			}
		}(g)
	}
	wg.Wait()
	st := c.Stats()
	assert.LessOrEqual(t, st.BytesUsed, int64(100000))
	assert.GreaterOrEqual(t, st.BytesUsed, int64(0))
}
