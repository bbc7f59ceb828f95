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
	"math"

	"gonum.org/v1/gonum/mat"
)

const degToRad = math.Pi / 180.

// A RotationSet holds one composed beam-to-Earth rotation matrix per
// timestamp, all backed by a single preallocated buffer so that
// applying them allocates nothing per timestamp.
type RotationSet struct {
	n       int
	size    int // 3 for 3-beam instruments, 4 for 4-beam
	backing []float64
}

// Len returns the number of timestamps in the set.
func (r *RotationSet) Len() int { return r.n }

// Size returns the rank of each rotation matrix (3 or 4).
func (r *RotationSet) Size() int { return r.size }

// Mat returns a view of the rotation matrix for timestamp i. The view
// shares the set's backing buffer.
func (r *RotationSet) Mat(i int) *mat.Dense {
	s := r.size * r.size
	return mat.NewDense(r.size, r.size, r.backing[i*s:(i+1)*s])
}

// headingMatrix fills dst with the rotation about the vertical axis
// for the given heading [degrees]. Instrument headings are referenced
// 90° off true East, so the angle is offset by −90° before
// conversion to radians.
func headingMatrix(heading float64, dst *mat.Dense) {
	hh := (heading - 90) * degToRad
	sh, ch := math.Sin(hh), math.Cos(hh)
	dst.Set(0, 0, ch)
	dst.Set(0, 1, sh)
	dst.Set(0, 2, 0)
	dst.Set(1, 0, -sh)
	dst.Set(1, 1, ch)
	dst.Set(1, 2, 0)
	dst.Set(2, 0, 0)
	dst.Set(2, 1, 0)
	dst.Set(2, 2, 1)
}

// tiltMatrix fills dst with the coupled pitch/roll rotation for the
// given pitch and roll [degrees]. This is not a composition of two
// single-axis rotations; the exact form below is what downstream
// numeric comparisons depend on.
func tiltMatrix(pitch, roll float64, dst *mat.Dense) {
	pp := pitch * degToRad
	rr := roll * degToRad
	sp, cp := math.Sin(pp), math.Cos(pp)
	sr, cr := math.Sin(rr), math.Cos(rr)
	dst.Set(0, 0, cp)
	dst.Set(0, 1, -sp*sr)
	dst.Set(0, 2, -cr*sp)
	dst.Set(1, 0, 0)
	dst.Set(1, 1, cr)
	dst.Set(1, 2, -sr)
	dst.Set(2, 0, sp)
	dst.Set(2, 1, sr*cp)
	dst.Set(2, 2, cp*cr)
}

// expandTilt4 expands the composed 3×3 heading-tilt matrix m to 4×4
// for four-beam instruments: row and column 3 are duplicated into row
// and column 4, with the (1,3)/(1,4) and (2,3)/(2,4) entries halved
// so that beams 3 and 4 contribute equally to the horizontal
// components, and the (3,4)/(4,3) cross terms zeroed so that each
// vertical estimate comes from one beam pair only.
func expandTilt4(m, dst *mat.Dense) {
	dst.Set(0, 0, m.At(0, 0))
	dst.Set(0, 1, m.At(0, 1))
	dst.Set(0, 2, m.At(0, 2)/2)
	dst.Set(0, 3, m.At(0, 2)/2)
	dst.Set(1, 0, m.At(1, 0))
	dst.Set(1, 1, m.At(1, 1))
	dst.Set(1, 2, m.At(1, 2)/2)
	dst.Set(1, 3, m.At(1, 2)/2)
	dst.Set(2, 0, m.At(2, 0))
	dst.Set(2, 1, m.At(2, 1))
	dst.Set(2, 2, m.At(2, 2))
	dst.Set(2, 3, 0)
	dst.Set(3, 0, m.At(2, 0))
	dst.Set(3, 1, m.At(2, 1))
	dst.Set(3, 2, 0)
	dst.Set(3, 3, m.At(2, 2))
}

// flipTransform returns a copy of the calibration matrix t with rows
// 2 and 3 negated, converting an up-looking calibration to its
// down-looking equivalent.
func flipTransform(t *mat.Dense) *mat.Dense {
	r, c := t.Dims()
	o := mat.NewDense(r, c, nil)
	o.Copy(t)
	for j := 0; j < c; j++ {
		o.Set(1, j, -t.At(1, j))
		o.Set(2, j, -t.At(2, j))
	}
	return o
}

// BuildRotations composes the per-timestamp rotation matrices
// R = H·P·T relating beam velocities to Earth (ENU) velocities for
// the given attitude series [degrees]. The three series must have
// equal length. For four-beam instruments the heading-tilt
// composition is expanded to 4×4 before the calibration matrix is
// applied.
//
// The down-looking calibration sign flip is applied on the 3-beam
// path only; how it should interact with the 4-beam composition is
// not validated against reference data, so 4-beam calibrations are
// composed as given.
func BuildRotations(heading, pitch, roll []float64, c Config) (*RotationSet, error) {
	n := len(heading)
	if len(pitch) != n {
		return nil, ShapeMismatchError{Name: VarPitch, Want: n, Have: len(pitch)}
	}
	if len(roll) != n {
		return nil, ShapeMismatchError{Name: VarRoll, Want: n, Have: len(roll)}
	}

	t := c.Transform
	if c.DownwardFacing && c.Beams == 3 {
		t = flipTransform(t)
	}

	rs := &RotationSet{
		n:       n,
		size:    c.Beams,
		backing: make([]float64, n*c.Beams*c.Beams),
	}

	h := mat.NewDense(3, 3, nil)
	p := mat.NewDense(3, 3, nil)
	m := mat.NewDense(3, 3, nil)
	var m4 *mat.Dense
	if c.Beams == 4 {
		m4 = mat.NewDense(4, 4, nil)
	}
	for i := 0; i < n; i++ {
		headingMatrix(heading[i], h)
		tiltMatrix(pitch[i], roll[i], p)
		m.Mul(h, p)
		dst := rs.Mat(i)
		if c.Beams == 4 {
			expandTilt4(m, m4)
			dst.Mul(m4, t)
		} else {
			dst.Mul(m, t)
		}
	}
	return rs, nil
}
