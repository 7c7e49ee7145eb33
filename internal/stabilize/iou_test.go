package stabilize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIoU(t *testing.T) {
	t.Parallel()

	unit := BBox{X: 0.5, Y: 0.5, Width: 0.2, Height: 0.2}

	t.Run("identical boxes", func(t *testing.T) {
		t.Parallel()
		assert.InDelta(t, 1.0, IoU(unit, unit), 1e-9)
	})

	t.Run("symmetric", func(t *testing.T) {
		t.Parallel()
		other := BBox{X: 0.55, Y: 0.5, Width: 0.2, Height: 0.2}
		assert.InDelta(t, IoU(unit, other), IoU(other, unit), 1e-12)
	})

	t.Run("disjoint boxes score zero", func(t *testing.T) {
		t.Parallel()
		far := BBox{X: 0.9, Y: 0.9, Width: 0.1, Height: 0.1}
		assert.Zero(t, IoU(unit, far))
	})

	t.Run("touching edges score zero", func(t *testing.T) {
		t.Parallel()
		// Right edge of unit is x=0.6; this box starts exactly there.
		adjacent := BBox{X: 0.7, Y: 0.5, Width: 0.2, Height: 0.2}
		assert.Zero(t, IoU(unit, adjacent))
	})

	t.Run("half overlap", func(t *testing.T) {
		t.Parallel()
		// Shifted by half a width: intersection is half a box, union 1.5
		// boxes, so IoU = 1/3.
		shifted := BBox{X: 0.6, Y: 0.5, Width: 0.2, Height: 0.2}
		assert.InDelta(t, 1.0/3.0, IoU(unit, shifted), 1e-9)
	})

	t.Run("zero-area box scores zero", func(t *testing.T) {
		t.Parallel()
		degenerate := BBox{X: 0.5, Y: 0.5, Width: 0, Height: 0.2}
		assert.Zero(t, IoU(unit, degenerate))
		assert.Zero(t, IoU(degenerate, degenerate))
	})

	t.Run("contained box", func(t *testing.T) {
		t.Parallel()
		small := BBox{X: 0.5, Y: 0.5, Width: 0.1, Height: 0.1}
		// Intersection equals the small box; union equals the large one.
		assert.InDelta(t, small.Area()/unit.Area(), IoU(unit, small), 1e-9)
	})

	t.Run("bounded to [0,1]", func(t *testing.T) {
		t.Parallel()
		boxes := []BBox{
			unit,
			{X: 0.52, Y: 0.48, Width: 0.25, Height: 0.15},
			{X: 0.1, Y: 0.9, Width: 0.4, Height: 0.4},
			{X: 120, Y: 80, Width: 64, Height: 48},
		}
		for _, a := range boxes {
			for _, b := range boxes {
				v := IoU(a, b)
				assert.GreaterOrEqual(t, v, 0.0)
				assert.LessOrEqual(t, v, 1.0)
			}
		}
	})
}

func TestBBoxArea(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 0.04, BBox{Width: 0.2, Height: 0.2}.Area(), 1e-12)
	assert.Zero(t, BBox{Width: -1, Height: 0.2}.Area())
	assert.Zero(t, BBox{Width: 0.2, Height: 0}.Area())
}

func TestDetectionValidate(t *testing.T) {
	t.Parallel()

	good := Detection{Class: "person", Confidence: 0.8, X: 0.5, Y: 0.5, Width: 0.2, Height: 0.3}
	assert.NoError(t, good.Validate())

	cases := []struct {
		name string
		det  Detection
	}{
		{"missing class", Detection{Confidence: 0.8, Width: 0.2, Height: 0.3}},
		{"negative confidence", Detection{Class: "person", Confidence: -0.1, Width: 0.2, Height: 0.3}},
		{"confidence above one", Detection{Class: "person", Confidence: 1.5, Width: 0.2, Height: 0.3}},
		{"zero width", Detection{Class: "person", Confidence: 0.8, Width: 0, Height: 0.3}},
		{"negative height", Detection{Class: "person", Confidence: 0.8, Width: 0.2, Height: -0.3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.det.Validate()
			assert.Error(t, err)
			var derr *InvalidDetectionError
			assert.ErrorAs(t, err, &derr)
		})
	}
}
