package collision

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"canaswarm-vision-go/internal/types"
)

// corroborate returns the median valid depth under the detection's box.
// The box is given in camera pixels and scaled onto the depth grid.
func corroborate(d types.Detection, depth *types.DepthMap, cam types.CameraSpecs) (float64, bool) {
	if depth == nil || d.BBox == nil || d.BBox.Empty() {
		return 0, false
	}
	if depth.Rows <= 0 || depth.Cols <= 0 || len(depth.Values) < depth.Rows*depth.Cols {
		return 0, false
	}
	if cam.Width <= 0 || cam.Height <= 0 {
		return 0, false
	}

	sx := float64(depth.Cols) / float64(cam.Width)
	sy := float64(depth.Rows) / float64(cam.Height)
	c0 := clampInt(int(math.Floor(float64(d.BBox.XMin)*sx)), 0, depth.Cols-1)
	c1 := clampInt(int(math.Ceil(float64(d.BBox.XMax)*sx)), c0+1, depth.Cols)
	r0 := clampInt(int(math.Floor(float64(d.BBox.YMin)*sy)), 0, depth.Rows-1)
	r1 := clampInt(int(math.Ceil(float64(d.BBox.YMax)*sy)), r0+1, depth.Rows)

	samples := make([]float64, 0, (c1-c0)*(r1-r0))
	for r := r0; r < r1; r++ {
		for c := c0; c < c1; c++ {
			v := float64(depth.At(r, c))
			if v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v) {
				samples = append(samples, v)
			}
		}
	}
	if len(samples) == 0 {
		return 0, false
	}
	sort.Float64s(samples)
	return stat.Quantile(0.5, stat.Empirical, samples, nil), true
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
