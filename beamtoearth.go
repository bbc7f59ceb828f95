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

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/mat"
)

// checkBeamShapes verifies that the per-beam arrays agree with each
// other and with the rotation set.
func checkBeamShapes(rot *RotationSet, beams []*sparse.DenseArray) (nBins int, err error) {
	if len(beams) != rot.Size() {
		return 0, UnsupportedConfigurationError{
			Reason: fmt.Sprintf("%d beam arrays for a %d-beam rotation", len(beams), rot.Size()),
		}
	}
	for b, a := range beams {
		if a == nil {
			return 0, MissingInputError{Name: fmt.Sprintf("beam %d velocity", b+1)}
		}
		if len(a.Shape) != 2 {
			return 0, fmt.Errorf("adcp: beam %d velocity has %d dimensions; want 2", b+1, len(a.Shape))
		}
		if a.Shape[0] != rot.Len() {
			return 0, ShapeMismatchError{
				Name: fmt.Sprintf("beam %d velocity time axis", b+1),
				Want: rot.Len(), Have: a.Shape[0],
			}
		}
		if a.Shape[1] != beams[0].Shape[1] {
			return 0, ShapeMismatchError{
				Name: fmt.Sprintf("beam %d velocity bin axis", b+1),
				Want: beams[0].Shape[1], Have: a.Shape[1],
			}
		}
	}
	return beams[0].Shape[1], nil
}

// threeBeamSolution replaces the single flagged-bad beam sample in v
// by forcing the redundant (error) velocity of the Janus
// configuration to zero: the sum of the beam-pair velocities must
// balance, v[0]+v[1] == v[2]+v[3]. bad is the index of the NaN
// sample.
func threeBeamSolution(v *[4]float64, bad int) {
	switch bad {
	case 0:
		v[0] = v[2] + v[3] - v[1]
	case 1:
		v[1] = v[2] + v[3] - v[0]
	case 2:
		v[2] = v[0] + v[1] - v[3]
	case 3:
		v[3] = v[0] + v[1] - v[2]
	}
}

// BeamToEarth rotates per-beam velocity arrays [N timestamps × M
// bins] into Earth coordinates using the per-timestamp rotations in
// rot. The returned arrays are East, North, Up for 3-beam
// instruments, with a second vertical estimate appended for 4-beam
// instruments.
//
// For 4-beam instruments a bin with exactly one bad (NaN) beam
// sample is recovered with a three-beam solution before rotation;
// bins with more bad samples than that produce NaN in every output
// component.
func BeamToEarth(rot *RotationSet, beams []*sparse.DenseArray) ([]*sparse.DenseArray, error) {
	nBins, err := checkBeamShapes(rot, beams)
	if err != nil {
		return nil, err
	}
	size := rot.Size()
	n := rot.Len()

	out := make([]*sparse.DenseArray, size)
	for c := range out {
		out[c] = sparse.ZerosDense(n, nBins)
	}

	var v [4]float64
	for i := 0; i < n; i++ {
		r := rot.Mat(i)
		degenerate := matHasNaN(r)
		for j := 0; j < nBins; j++ {
			if degenerate {
				for c := 0; c < size; c++ {
					out[c].Set(math.NaN(), i, j)
				}
				continue
			}
			nBad, bad := 0, -1
			for b := 0; b < size; b++ {
				v[b] = beams[b].Get(i, j)
				if math.IsNaN(v[b]) {
					nBad++
					bad = b
				}
			}
			if nBad == 1 && size == 4 {
				threeBeamSolution(&v, bad)
				nBad = 0
			}
			if nBad > 0 {
				for c := 0; c < size; c++ {
					out[c].Set(math.NaN(), i, j)
				}
				continue
			}
			for c := 0; c < size; c++ {
				var sum float64
				for b := 0; b < size; b++ {
					sum += r.At(c, b) * v[b]
				}
				out[c].Set(sum, i, j)
			}
		}
	}
	return out, nil
}

// EarthToBeam converts Earth-coordinate velocity arrays [N×M] back to
// per-beam velocities by solving R·x = earth for each timestamp and
// bin. The rotation is factorized once per timestamp; a near-singular
// factorization produces NaN for every bin of that timestamp rather
// than failing the deployment.
func EarthToBeam(rot *RotationSet, earth []*sparse.DenseArray) ([]*sparse.DenseArray, error) {
	nBins, err := checkBeamShapes(rot, earth)
	if err != nil {
		return nil, err
	}
	size := rot.Size()
	n := rot.Len()

	out := make([]*sparse.DenseArray, size)
	for b := range out {
		out[b] = sparse.ZerosDense(n, nBins)
	}

	var lu mat.LU
	b := mat.NewVecDense(size, nil)
	x := mat.NewVecDense(size, nil)
	for i := 0; i < n; i++ {
		r := rot.Mat(i)
		degenerate := matHasNaN(r)
		if !degenerate {
			lu.Factorize(r)
		}
		for j := 0; j < nBins; j++ {
			bad := degenerate
			for c := 0; c < size && !bad; c++ {
				if math.IsNaN(earth[c].Get(i, j)) {
					bad = true
				}
			}
			if !bad {
				for c := 0; c < size; c++ {
					b.SetVec(c, earth[c].Get(i, j))
				}
				if err := lu.SolveVecTo(x, false, b); err != nil {
					bad = true
				}
			}
			for c := 0; c < size; c++ {
				if bad {
					out[c].Set(math.NaN(), i, j)
				} else {
					out[c].Set(x.AtVec(c), i, j)
				}
			}
		}
	}
	return out, nil
}

func matHasNaN(m *mat.Dense) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if math.IsNaN(m.At(i, j)) {
				return true
			}
		}
	}
	return false
}
