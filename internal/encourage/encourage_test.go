package encourage_test

import (
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenpath/greenpath/internal/encourage"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		comfort  float64
		distance float64
		want     encourage.Bucket
	}{
		{name: "high comfort short detour", comfort: 18, distance: 12, want: encourage.LowDistance},
		{name: "high comfort long detour", comfort: 18, distance: 25, want: encourage.HighComfort},
		{name: "penalty boundary", comfort: 16, distance: 20, want: encourage.HighComfort},
		{name: "comfort boundary", comfort: 15, distance: 0, want: encourage.HighComfort},
		{name: "medium", comfort: 7.5, distance: 40, want: encourage.MediumComfort},
		{name: "ten is medium", comfort: 10, distance: 0, want: encourage.MediumComfort},
		{name: "five is environmental", comfort: 5, distance: 0, want: encourage.Environmental},
		{name: "worse comfort", comfort: -3, distance: 5, want: encourage.Environmental},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, encourage.Classify(tt.comfort, tt.distance))
		})
	}
}

func TestSelector_Select(t *testing.T) {
	sel := encourage.NewSelector(rand.New(rand.NewPCG(1, 2)))

	msg, ok := sel.Select(18, 12, true)

	require.True(t, ok)
	assert.Equal(t, encourage.LowDistance, msg.Bucket)
	assert.Contains(t, encourage.Messages(encourage.LowDistance), msg.Text)
	assert.Equal(t, "+18.0% comfort", msg.Comfort)
	assert.Equal(t, "+12.0% distance", msg.Distance)
}

func TestSelector_FastRouteGetsNothing(t *testing.T) {
	_, ok := encourage.NewSelector(nil).Select(30, 0, false)

	assert.False(t, ok)
}

func TestSelector_NoDistanceWhenNotLonger(t *testing.T) {
	msg, ok := encourage.NewSelector(nil).Select(8, 0, true)

	require.True(t, ok)
	assert.Empty(t, msg.Distance)
}

func TestSelector_Deterministic(t *testing.T) {
	a := encourage.NewSelector(rand.New(rand.NewPCG(7, 7)))
	b := encourage.NewSelector(rand.New(rand.NewPCG(7, 7)))

	for range 10 {
		ma, _ := a.Select(12, 30, true)
		mb, _ := b.Select(12, 30, true)
		assert.Equal(t, ma, mb)
	}
}

func TestSelector_CoversBucket(t *testing.T) {
	sel := encourage.NewSelector(rand.New(rand.NewPCG(3, 4)))
	seen := make(map[string]bool)

	for range 200 {
		msg, _ := sel.Select(12, 30, true)
		seen[msg.Text] = true
	}

	assert.Len(t, seen, len(encourage.Messages(encourage.HighComfort)))
}

func TestSelector_ConcurrentUse(t *testing.T) {
	sel := encourage.NewSelector(nil)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				_, _ = sel.Select(20, 5, true)
			}
		}()
	}
	wg.Wait()
}
