package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewDense tests shape bookkeeping of freshly allocated tensors.
func TestNewDense(t *testing.T) {
	t.Parallel()

	t.Run("single axis", func(t *testing.T) {
		t.Parallel()
		d := NewDense(3, 1, 5)
		assert.Equal(t, 3, d.Regimes())
		assert.Equal(t, 1, d.HistoryAxes())
		assert.Equal(t, 3, d.Histories())
		assert.Equal(t, 5, d.Obs())
		assert.Len(t, d.Data(), 15)
	})

	t.Run("three axes", func(t *testing.T) {
		t.Parallel()
		d := NewDense(2, 3, 4)
		assert.Equal(t, 8, d.Histories())
		assert.Len(t, d.Data(), 32)
	})

	t.Run("invalid shape panics", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() { NewDense(0, 1, 4) })
		assert.Panics(t, func() { NewDense(2, 0, 4) })
		assert.Panics(t, func() { NewDense(2, 1, -1) })
	})
}

// TestAtSetRow tests element access and row aliasing.
func TestAtSetRow(t *testing.T) {
	t.Parallel()

	d := NewDense(2, 2, 3)
	d.Set(3, 2, 1.5)
	assert.Equal(t, 1.5, d.At(3, 2))

	row := d.Row(3)
	require.Len(t, row, 3)
	assert.Equal(t, 1.5, row[2])

	// Rows alias the backing storage.
	row[0] = -2.0
	assert.Equal(t, -2.0, d.At(3, 0))
}

// TestHistoryAt tests decoding flat history indices into per-axis
// regimes.
func TestHistoryAt(t *testing.T) {
	t.Parallel()

	// k=3, two axes: flat index 7 = 2*3 + 1 encodes (2, 1).
	d := NewDense(3, 2, 1)
	assert.Equal(t, 2, d.HistoryAt(7, 0))
	assert.Equal(t, 1, d.HistoryAt(7, 1))

	// k=2, three axes: flat index 5 = 1*4 + 0*2 + 1 encodes (1, 0, 1).
	d = NewDense(2, 3, 1)
	assert.Equal(t, 1, d.HistoryAt(5, 0))
	assert.Equal(t, 0, d.HistoryAt(5, 1))
	assert.Equal(t, 1, d.HistoryAt(5, 2))
}

// TestFillSeries tests broadcasting a series across all histories.
func TestFillSeries(t *testing.T) {
	t.Parallel()

	d := NewDense(2, 2, 3)
	d.FillSeries([]float64{1, 2, 3})
	for h := 0; h < d.Histories(); h++ {
		assert.Equal(t, []float64{1, 2, 3}, d.Row(h))
	}

	assert.Panics(t, func() { d.FillSeries([]float64{1, 2}) })
}

// TestSubScaled tests masked scaled subtraction over history rows.
func TestSubScaled(t *testing.T) {
	t.Parallel()

	t.Run("nil mask hits every history", func(t *testing.T) {
		t.Parallel()
		d := NewDense(2, 2, 2)
		d.FillSeries([]float64{10, 20})
		d.SubScaled(nil, 2, []float64{1, 2})
		for h := 0; h < d.Histories(); h++ {
			assert.Equal(t, []float64{8, 16}, d.Row(h))
		}
	})

	t.Run("pinned axes select a slice", func(t *testing.T) {
		t.Parallel()
		d := NewDense(2, 3, 2)
		d.FillSeries([]float64{5, 5})

		// Pin axis 0 to regime 1 and axis 2 to regime 0; axis 1 is free.
		d.SubScaled([]int{1, Wildcard, 0}, 1, []float64{1, 2})

		changed := map[int]bool{4: true, 6: true} // (1,0,0) and (1,1,0)
		for h := 0; h < d.Histories(); h++ {
			if changed[h] {
				assert.Equal(t, []float64{4, 3}, d.Row(h), "history %d", h)
			} else {
				assert.Equal(t, []float64{5, 5}, d.Row(h), "history %d", h)
			}
		}
	})

	t.Run("fully pinned mask selects one history", func(t *testing.T) {
		t.Parallel()
		d := NewDense(2, 2, 1)
		d.SubScaled([]int{1, 1}, 3, []float64{1})
		for h := 0; h < d.Histories(); h++ {
			want := 0.0
			if h == 3 {
				want = -3.0
			}
			assert.Equal(t, want, d.At(h, 0), "history %d", h)
		}
	})

	t.Run("bad mask panics", func(t *testing.T) {
		t.Parallel()
		d := NewDense(2, 2, 1)
		assert.Panics(t, func() { d.SubScaled([]int{0}, 1, []float64{1}) })
		assert.Panics(t, func() { d.SubScaled([]int{0, 2}, 1, []float64{1}) })
	})
}
