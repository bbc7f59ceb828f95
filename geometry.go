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
	"strings"

	"gonum.org/v1/gonum/mat"
)

// BeamGeometry identifies the beam-to-axis wiring of an instrument
// family.
type BeamGeometry int

const (
	// RDIGeometry is the four-beam Janus configuration: opposing
	// beam pairs in the roll and pitch planes.
	RDIGeometry BeamGeometry = iota
	// NortekGeometry is the three-beam configuration: beam 1
	// aligned with the roll axis, beams 2 and 3 at ±120° around it.
	NortekGeometry
)

func (g BeamGeometry) String() string {
	switch g {
	case RDIGeometry:
		return "RDI"
	case NortekGeometry:
		return "Nortek"
	}
	return fmt.Sprintf("BeamGeometry(%d)", int(g))
}

// Config holds the per-deployment information the transformation
// routines need, resolved once from dataset metadata so that no
// instrument dispatch happens inside per-timestamp loops.
type Config struct {
	Geometry BeamGeometry

	// Beams is the number of acoustic beams (3 or 4).
	Beams int

	// BeamAngle is the beam half-angle from the vertical [degrees].
	BeamAngle float64

	// Transform is the beam-to-instrument-frame calibration matrix,
	// 3×3 for 3-beam instruments and 4×4 for 4-beam instruments.
	Transform *mat.Dense

	// DownwardFacing reports a down-looking instrument (the
	// along-beam distance axis is entirely negative).
	DownwardFacing bool

	// MagneticHeading reports that the heading series is referenced
	// to magnetic rather than true north.
	MagneticHeading bool
}

// NewConfig resolves a deployment's instrument metadata into a
// Config. It returns an UnsupportedConfigurationError when the beam
// count or instrument family is not covered by the beam-geometry
// tables.
func NewConfig(meta Meta) (Config, error) {
	c := Config{
		Beams:           meta.Beams,
		BeamAngle:       meta.BeamAngle,
		Transform:       meta.BeamTransform,
		MagneticHeading: !meta.CompassCorrected,
	}
	switch meta.Beams {
	case 3:
		c.Geometry = NortekGeometry
	case 4:
		c.Geometry = RDIGeometry
	default:
		return Config{}, UnsupportedConfigurationError{
			Reason: fmt.Sprintf("%d beams (%s %s)", meta.Beams,
				meta.InstrumentMake, meta.InstrumentModel),
		}
	}
	// Cross-check the parser's instrument make against the beam
	// count when it is recognizable.
	make := strings.ToLower(meta.InstrumentMake)
	switch {
	case strings.Contains(make, "rdi"), strings.Contains(make, "teledyne"):
		if c.Geometry != RDIGeometry {
			return Config{}, UnsupportedConfigurationError{
				Reason: fmt.Sprintf("%s instrument with %d beams", meta.InstrumentMake, meta.Beams),
			}
		}
	case strings.Contains(make, "nortek"):
		if c.Geometry != NortekGeometry {
			return Config{}, UnsupportedConfigurationError{
				Reason: fmt.Sprintf("%s instrument with %d beams", meta.InstrumentMake, meta.Beams),
			}
		}
	}
	if c.Transform == nil {
		return Config{}, MissingInputError{Name: "beam-to-instrument transform matrix"}
	}
	r, cl := c.Transform.Dims()
	if r != meta.Beams || cl != meta.Beams {
		return Config{}, ShapeMismatchError{
			Name: "beam-to-instrument transform matrix",
			Want: meta.Beams, Have: r,
		}
	}
	if c.BeamAngle <= 0 || c.BeamAngle >= 90 {
		return Config{}, UnsupportedConfigurationError{
			Reason: fmt.Sprintf("beam angle %g°", c.BeamAngle),
		}
	}
	return c, nil
}
