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
	"gonum.org/v1/gonum/floats"
)

// normalizeDistances returns a copy of the along-beam distance axis
// in strictly increasing order. Instruments that report decreasing
// (down-looking, negative) distances have the axis negated; the
// returned flag reports whether that happened.
func normalizeDistances(dist []float64) ([]float64, bool, error) {
	if len(dist) < 2 {
		return nil, false, MissingInputError{Name: "along-beam distance axis"}
	}
	increasing := dist[1] > dist[0]
	for i := 1; i < len(dist); i++ {
		if (dist[i] > dist[i-1]) != increasing || dist[i] == dist[i-1] {
			return nil, false, fmt.Errorf("adcp: along-beam distance axis is not strictly monotonic at bin %d", i)
		}
	}
	o := make([]float64, len(dist))
	copy(o, dist)
	if !increasing {
		floats.Scale(-1, o)
	}
	return o, !increasing, nil
}

// Beam-to-axis assignment for the RDI Janus configuration used
// throughout this package: beams 1 and 2 tilt with roll (pitch enters
// as the outer cosine factor), beams 3 and 4 tilt with pitch (roll
// outer). The assignment appears both ways in older toolboxes; this
// table is the single convention here.
func rdiHeightFactor(beamAngle, pitch, roll float64, beam int) float64 {
	switch beam {
	case 1:
		return math.Cos(beamAngle+roll) / math.Cos(beamAngle) * math.Cos(pitch)
	case 2:
		return math.Cos(beamAngle-roll) / math.Cos(beamAngle) * math.Cos(pitch)
	case 3:
		return math.Cos(beamAngle+pitch) / math.Cos(beamAngle) * math.Cos(roll)
	case 4:
		return math.Cos(beamAngle-pitch) / math.Cos(beamAngle) * math.Cos(roll)
	}
	return math.NaN()
}

// Nortek three-beam geometry: beam 1 is aligned with the roll axis;
// beams 2 and 3 sit at ±120° around it, so their effective beam
// angles are the projections onto the X and Y axes.
func nortekHeightFactor(beamAngle, pitch, roll float64, beam int) float64 {
	beamAngleX := math.Atan(math.Tan(beamAngle) * math.Cos(60*degToRad))
	beamAngleY := math.Atan(math.Tan(beamAngle) * math.Cos(30*degToRad))
	switch beam {
	case 1:
		return math.Cos(beamAngleX-pitch) / math.Cos(beamAngleX) * math.Cos(roll)
	case 2:
		return math.Cos(beamAngleY+roll) / math.Cos(beamAngleY) * math.Cos(pitch)
	case 3:
		return math.Cos(beamAngleY-roll) / math.Cos(beamAngleY) * math.Cos(pitch)
	}
	return math.NaN()
}

// BinHeights projects the nominal along-beam distance axis onto the
// vertical for one beam, producing the [N timestamps × M bins] matrix
// of true heights above the sensor under the given pitch and roll
// series [degrees]. dist must already be normalized to increasing
// order (see normalizeDistances). Beam indices are 1-based.
func BinHeights(dist, pitch, roll []float64, beam int, c Config) (*sparse.DenseArray, error) {
	n := len(pitch)
	if len(roll) != n {
		return nil, ShapeMismatchError{Name: VarRoll, Want: n, Have: len(roll)}
	}
	maxBeam := 4
	if c.Geometry == NortekGeometry {
		maxBeam = 3
	}
	if beam < 1 || beam > maxBeam {
		return nil, UnsupportedConfigurationError{
			Reason: fmt.Sprintf("beam %d for %s geometry", beam, c.Geometry),
		}
	}

	ba := c.BeamAngle * degToRad
	heights := sparse.ZerosDense(n, len(dist))
	for i := 0; i < n; i++ {
		pp := pitch[i] * degToRad
		rr := roll[i] * degToRad
		var f float64
		if c.Geometry == NortekGeometry {
			f = nortekHeightFactor(ba, pp, rr, beam)
		} else {
			f = rdiHeightFactor(ba, pp, rr, beam)
		}
		row := heights.Elements[i*len(dist) : (i+1)*len(dist)]
		for j, d := range dist {
			row[j] = f * d
		}
	}
	return heights, nil
}
