/*
Copyright © 2019 the OceanPrep authors.
This file is part of OceanPrep.

OceanPrep is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

OceanPrep is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with OceanPrep.  If not, see <http://www.gnu.org/licenses/>.
*/

package adcp

import (
	"fmt"
	"math"
	"sort"

	"github.com/ctessum/sparse"
)

// BinMappingMethod selects how tilted samples are projected onto the
// nominal vertical grid.
type BinMappingMethod int

const (
	// LinearMapping resamples each timestamp row by 1-D linear
	// interpolation from its tilted heights onto the nominal
	// heights.
	LinearMapping BinMappingMethod = iota
	// MeanMapping assigns each destination bin the arithmetic mean
	// of the tilted samples falling within its half-open interval
	// [heightDown, heightUp).
	MeanMapping
)

func checkMapShapes(tilted *sparse.DenseArray, nominal []float64, src *sparse.DenseArray) error {
	if len(tilted.Shape) != 2 || len(src.Shape) != 2 {
		return fmt.Errorf("adcp: bin mapping requires 2-d arrays")
	}
	if tilted.Shape[0] != src.Shape[0] {
		return ShapeMismatchError{Name: "tilted height matrix time axis", Want: src.Shape[0], Have: tilted.Shape[0]}
	}
	if tilted.Shape[1] != src.Shape[1] {
		return ShapeMismatchError{Name: "tilted height matrix bin axis", Want: src.Shape[1], Have: tilted.Shape[1]}
	}
	if len(nominal) != src.Shape[1] {
		return ShapeMismatchError{Name: "nominal height axis", Want: src.Shape[1], Have: len(nominal)}
	}
	return nil
}

// MapBinsToNominal resamples the beam-coordinate variable src [N
// timestamps × M bins] from the per-timestamp tilted heights onto the
// common nominal height axis. Values outside the tilted range of a
// row become NaN; no extrapolation is performed. The first bin of
// every row keeps its original unmapped value: the tilt effect at bin
// 1 is negligible and overwriting it is long-standing practice for
// this correction.
func MapBinsToNominal(tilted *sparse.DenseArray, nominal []float64, src *sparse.DenseArray) (*sparse.DenseArray, error) {
	return mapBins(tilted, nominal, src, LinearMapping)
}

// MapBinsMean is the many-to-one variant of MapBinsToNominal: each
// nominal bin receives the arithmetic mean of the tilted samples
// falling within its half-open destination interval.
func MapBinsMean(tilted *sparse.DenseArray, nominal []float64, src *sparse.DenseArray) (*sparse.DenseArray, error) {
	return mapBins(tilted, nominal, src, MeanMapping)
}

func mapBins(tilted *sparse.DenseArray, nominal []float64, src *sparse.DenseArray, method BinMappingMethod) (*sparse.DenseArray, error) {
	if err := checkMapShapes(tilted, nominal, src); err != nil {
		return nil, err
	}
	n, m := src.Shape[0], src.Shape[1]
	out := sparse.ZerosDense(n, m)

	// Rows are independent; the edge policies below do not depend
	// on execution order.
	type empty struct{}
	sem := make(chan empty, n) // semaphore pattern
	for i := 0; i < n; i++ {
		go func(i int) {
			x := tilted.Elements[i*m : (i+1)*m]
			y := src.Elements[i*m : (i+1)*m]
			o := out.Elements[i*m : (i+1)*m]
			switch {
			case hasNaN(x):
				// Attitude was missing for this timestamp, so the
				// tilted coordinates are unusable; the row maps to
				// all-missing.
				for j := range o {
					o[j] = math.NaN()
				}
			case method == MeanMapping:
				meanRow(x, y, nominal, o)
			default:
				interpRow(x, y, nominal, o)
			}
			// Bin 1 is always carried over unmapped.
			o[0] = y[0]
			sem <- empty{}
		}(i)
	}
	for i := 0; i < n; i++ { // wait for routines to finish
		<-sem
	}
	return out, nil
}

func hasNaN(s []float64) bool {
	for _, v := range s {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// interpRow linearly interpolates the samples y located at increasing
// coordinates x onto the target coordinates at, writing into o.
// Targets outside [x[0], x[len-1]] become NaN.
func interpRow(x, y, at, o []float64) {
	for j, t := range at {
		if t < x[0] || t > x[len(x)-1] {
			o[j] = math.NaN()
			continue
		}
		k := sort.SearchFloat64s(x, t)
		if k < len(x) && x[k] == t {
			o[j] = y[k]
			continue
		}
		// x[k-1] < t < x[k]
		frac := (t - x[k-1]) / (x[k] - x[k-1])
		o[j] = y[k-1] + frac*(y[k]-y[k-1])
	}
}

// meanRow averages the samples y located at tilted coordinates x into
// the destination bins centered on the coordinates at. Each
// destination interval is half-open, [heightDown, heightUp); bins
// that receive no samples become NaN. NaN samples are excluded from
// the averages.
func meanRow(x, y, at, o []float64) {
	for j := range at {
		var down, up float64
		if j == 0 {
			down = at[0] - (at[1]-at[0])/2
		} else {
			down = (at[j-1] + at[j]) / 2
		}
		if j == len(at)-1 {
			up = at[j] + (at[j]-at[j-1])/2
		} else {
			up = (at[j] + at[j+1]) / 2
		}
		var sum float64
		var count int
		for k, xv := range x {
			if xv >= down && xv < up && !math.IsNaN(y[k]) {
				sum += y[k]
				count++
			}
		}
		if count == 0 {
			o[j] = math.NaN()
		} else {
			o[j] = sum / float64(count)
		}
	}
}
