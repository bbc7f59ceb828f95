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

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
)

// A Routine is one self-contained preprocessing transformation
// applied in place to a deployment dataset. If msgChan is not nil,
// status messages are sent to it.
type Routine func(d *Dataset, msgChan chan string) error

// Run applies the given routines in sequence to each deployment in
// the batch. A recoverable failure (missing input, shape mismatch,
// unsupported configuration) skips the remaining routines for that
// deployment, leaving it otherwise unmodified, and the batch
// continues; only programming errors are returned.
func Run(deployments []*Dataset, routines []Routine, msgChan chan string) error {
	for di, d := range deployments {
		for _, r := range routines {
			if err := r(d, msgChan); err != nil {
				if IsDeploymentSkip(err) {
					if msgChan != nil {
						msgChan <- fmt.Sprintf("Skipping deployment %d (%s %s): %v",
							di+1, d.Meta.InstrumentMake, d.Meta.InstrumentModel, err)
					}
					break
				}
				return err
			}
		}
	}
	return nil
}

// beamVelocityNames returns the per-beam velocity variable names for
// an instrument with the given number of beams.
func beamVelocityNames(beams int) []string {
	names := make([]string, beams)
	for b := range names {
		names[b] = fmt.Sprintf("VEL%d", b+1)
	}
	return names
}

// earthVelocityNames returns the Earth-coordinate velocity variable
// names for the given beam count, with the _MAG suffix when the
// heading they were rotated with is magnetic-referenced.
func earthVelocityNames(beams int, magnetic bool) []string {
	suffix := ""
	if magnetic {
		suffix = "_MAG"
	}
	names := []string{"UCUR" + suffix, "VCUR" + suffix, "WCUR" + suffix}
	if beams == 4 {
		names = append(names, "WCUR_2"+suffix)
	}
	return names
}

// distanceAxis returns the along-beam distance dimension's ordinal
// and coordinate values, preferring DIST_ALONG_BEAMS and falling back
// to HEIGHT_ABOVE_SENSOR when bin mapping has already replaced it.
func (d *Dataset) distanceAxis() (int, []float64, error) {
	if i, ok := d.DimIndex(DimDistAlongBeams); ok {
		return i, d.Dimensions[i].Data, nil
	}
	if i, ok := d.DimIndex(DimHeightAboveSensor); ok {
		return i, d.Dimensions[i].Data, nil
	}
	return -1, nil, MissingInputError{Name: DimDistAlongBeams}
}

// velocityConfig resolves the deployment's instrument configuration,
// including the down-looking flag derived from the sign of the
// distance axis.
func (d *Dataset) velocityConfig() (Config, error) {
	c, err := NewConfig(d.Meta)
	if err != nil {
		return Config{}, err
	}
	_, dist, err := d.distanceAxis()
	if err != nil {
		return Config{}, err
	}
	if len(dist) > 0 && floats.Max(dist) < 0 {
		c.DownwardFacing = true
	}
	return c, nil
}

// collectBeamArrays gathers the named 2-D [N×M] variables, verifying
// their shapes against each other.
func (d *Dataset) collectBeamArrays(names []string) ([]*sparse.DenseArray, error) {
	arrays := make([]*sparse.DenseArray, len(names))
	for i, name := range names {
		v, ok := d.Data[name]
		if !ok {
			return nil, MissingInputError{Name: name}
		}
		if len(v.Data.Shape) != 2 {
			return nil, fmt.Errorf("adcp: variable %s has %d dimensions; want 2", name, len(v.Data.Shape))
		}
		if i > 0 && (v.Data.Shape[0] != arrays[0].Shape[0] || v.Data.Shape[1] != arrays[0].Shape[1]) {
			return nil, ShapeMismatchError{Name: name, Want: arrays[0].Shape[0], Have: v.Data.Shape[0]}
		}
		arrays[i] = v.Data
	}
	return arrays, nil
}

// VelocityBeamToEarth rotates a deployment's per-beam velocities
// (VEL1..VELn) into Earth coordinates, adding UCUR/VCUR/WCUR (and
// WCUR_2 for 4-beam instruments) to the dataset, suffixed _MAG when
// the instrument heading is magnetic-referenced. It fulfills the
// Routine contract.
func VelocityBeamToEarth(d *Dataset, msgChan chan string) error {
	c, err := d.velocityConfig()
	if err != nil {
		return err
	}
	inNames := beamVelocityNames(c.Beams)
	beams, err := d.collectBeamArrays(inNames)
	if err != nil {
		return err
	}
	n := beams[0].Shape[0]

	heading, headingName, err := d.heading(n)
	if err != nil {
		return err
	}
	pitch, err := d.attitude(VarPitch, n)
	if err != nil {
		return err
	}
	roll, err := d.attitude(VarRoll, n)
	if err != nil {
		return err
	}

	rot, err := BuildRotations(heading, pitch, roll, c)
	if err != nil {
		return err
	}
	enu, err := BeamToEarth(rot, beams)
	if err != nil {
		return err
	}

	comment := fmt.Sprintf("Converted from beam to Earth (ENU) coordinates "+
		"using %s/%s/%s attitude data and the %s beam-to-instrument transform "+
		"(beam angle %g°).", headingName, VarPitch, VarRoll,
		d.Meta.InstrumentMake, c.BeamAngle)
	template := d.Data[inNames[0]]
	outNames := earthVelocityNames(c.Beams, c.MagneticHeading)
	descriptions := earthVelocityDescriptions(c.Beams)
	for i, name := range outNames {
		v := d.AddVariable(name, append([]int(nil), template.Dims...),
			descriptions[i], "m s-1", enu[i])
		v.Coordinates = template.Coordinates
		d.AppendComment(name, comment)
	}
	d.AppendHistory(fmt.Sprintf("velocity rotated beam→ENU (%d-beam %s, beam angle %g°, heading from %s)",
		c.Beams, c.Geometry, c.BeamAngle, headingName))
	if msgChan != nil {
		msgChan <- fmt.Sprintf("Rotated %d-beam velocity to ENU for %s %s",
			c.Beams, d.Meta.InstrumentMake, d.Meta.InstrumentModel)
	}
	return nil
}

func earthVelocityDescriptions(beams int) []string {
	o := []string{
		"Eastward sea water velocity",
		"Northward sea water velocity",
		"Upward sea water velocity",
	}
	if beams == 4 {
		o = append(o, "Upward sea water velocity (second estimate)")
	}
	return o
}

// VelocityEarthToBeam converts Earth-coordinate velocities back into
// per-beam velocities by solving the rotation per timestamp, adding
// VEL1..VELn to the dataset. It fulfills the Routine contract.
func VelocityEarthToBeam(d *Dataset, msgChan chan string) error {
	c, err := d.velocityConfig()
	if err != nil {
		return err
	}
	inNames := earthVelocityNames(c.Beams, c.MagneticHeading)
	earth, err := d.collectBeamArrays(inNames)
	if err != nil {
		return err
	}
	n := earth[0].Shape[0]

	heading, headingName, err := d.heading(n)
	if err != nil {
		return err
	}
	pitch, err := d.attitude(VarPitch, n)
	if err != nil {
		return err
	}
	roll, err := d.attitude(VarRoll, n)
	if err != nil {
		return err
	}

	rot, err := BuildRotations(heading, pitch, roll, c)
	if err != nil {
		return err
	}
	beams, err := EarthToBeam(rot, earth)
	if err != nil {
		return err
	}

	comment := fmt.Sprintf("Converted from Earth (ENU) to beam coordinates "+
		"by per-timestamp solve of the %s attitude rotation (beam angle %g°).",
		d.Meta.InstrumentMake, c.BeamAngle)
	template := d.Data[inNames[0]]
	outNames := beamVelocityNames(c.Beams)
	for b, name := range outNames {
		v := d.AddVariable(name, append([]int(nil), template.Dims...),
			fmt.Sprintf("Current velocity along beam %d", b+1), "m s-1", beams[b])
		v.Coordinates = template.Coordinates
		d.AppendComment(name, comment)
	}
	d.AppendHistory(fmt.Sprintf("velocity rotated ENU→beam (%d-beam %s, heading from %s)",
		c.Beams, c.Geometry, headingName))
	if msgChan != nil {
		msgChan <- fmt.Sprintf("Rotated ENU velocity to %d-beam coordinates for %s %s",
			c.Beams, d.Meta.InstrumentMake, d.Meta.InstrumentModel)
	}
	return nil
}

// beamTaggedVariables returns, per beam index, the names of the
// variables carrying that beam's data on the given distance
// dimension (velocity, echo intensity, correlation magnitude).
func (d *Dataset) beamTaggedVariables(distDim, beams int) [][]string {
	prefixes := []string{"VEL", "ABSIC", "CMAG"}
	o := make([][]string, beams)
	for b := 1; b <= beams; b++ {
		for _, p := range prefixes {
			name := fmt.Sprintf("%s%d", p, b)
			v, ok := d.Data[name]
			if !ok {
				continue
			}
			for _, dim := range v.Dims {
				if dim == distDim {
					o[b-1] = append(o[b-1], name)
					break
				}
			}
		}
	}
	return o
}

// MapBins re-projects every beam-tagged variable from its
// along-beam bin grid onto a common vertical height-above-sensor
// grid, correcting for instrument tilt, using the given mapping
// method. The HEIGHT_ABOVE_SENSOR dimension is created from the
// distance axis if it does not already exist; mapped variables are
// redirected to it, and the DIST_ALONG_BEAMS dimension is deleted
// (with ordinal compaction) once nothing references it.
func MapBins(method BinMappingMethod) Routine {
	return func(d *Dataset, msgChan chan string) error {
		c, err := NewConfig(d.Meta)
		if err != nil {
			return err
		}
		distDim, ok := d.DimIndex(DimDistAlongBeams)
		if !ok {
			return MissingInputError{Name: DimDistAlongBeams}
		}
		dist, flipped, err := normalizeDistances(d.Dimensions[distDim].Data)
		if err != nil {
			return err
		}

		// Validate every beam-tagged variable before mapping anything,
		// so a skipped deployment is left untouched.
		byBeam := d.beamTaggedVariables(distDim, c.Beams)
		n := -1
		for _, names := range byBeam {
			for _, name := range names {
				v := d.Data[name]
				if len(v.Data.Shape) != 2 {
					return fmt.Errorf("adcp: variable %s has %d dimensions; want 2", name, len(v.Data.Shape))
				}
				if n < 0 {
					n = v.Data.Shape[0]
				}
				if v.Data.Shape[0] != n {
					return ShapeMismatchError{Name: name + " time axis", Want: n, Have: v.Data.Shape[0]}
				}
				if v.Data.Shape[1] != len(dist) {
					return ShapeMismatchError{Name: name, Want: len(dist), Have: v.Data.Shape[1]}
				}
			}
		}
		if n < 0 {
			return MissingInputError{Name: "beam variables on " + DimDistAlongBeams}
		}
		pitch, err := d.attitude(VarPitch, n)
		if err != nil {
			return err
		}
		roll, err := d.attitude(VarRoll, n)
		if err != nil {
			return err
		}

		// Compute every mapped array before writing any of them back.
		type mappedVar struct {
			name string
			beam int
			data *sparse.DenseArray
		}
		var results []mappedVar
		for b, names := range byBeam {
			if len(names) == 0 {
				continue
			}
			heights, err := BinHeights(dist, pitch, roll, b+1, c)
			if err != nil {
				return err
			}
			for _, name := range names {
				o, err := mapBins(heights, dist, d.Data[name].Data, method)
				if err != nil {
					return err
				}
				results = append(results, mappedVar{name: name, beam: b + 1, data: o})
			}
		}

		var mapped []string
		for _, res := range results {
			d.Data[res.name].Data = res.data
			d.AppendComment(res.name, fmt.Sprintf(
				"Bin-mapped to the common vertical grid using %s beam geometry (beam %d, beam angle %g°).",
				c.Geometry, res.beam, c.BeamAngle))
			mapped = append(mapped, res.name)
		}

		// The common vertical axis keeps the instrument's sign
		// convention: negative heights for a down-looking axis that
		// was negated for interpolation.
		axis := dist
		if flipped {
			axis = make([]float64, len(dist))
			copy(axis, dist)
			floats.Scale(-1, axis)
		}
		hDim := d.AddDimension(DimHeightAboveSensor, axis,
			"Created from "+DimDistAlongBeams+" during tilt bin mapping.")
		for _, name := range mapped {
			v := d.Data[name]
			for i, dim := range v.Dims {
				if dim == distDim {
					v.Dims[i] = hDim
				}
			}
			v.Coordinates = strings.Replace(v.Coordinates, DimDistAlongBeams, DimHeightAboveSensor, -1)
		}
		d.DeleteDimensionIfUnused(distDim)

		d.AppendHistory(fmt.Sprintf("beam bins mapped to vertical grid (%s geometry, %d variables, %s)",
			c.Geometry, len(mapped), mappingMethodName(method)))
		if msgChan != nil {
			msgChan <- fmt.Sprintf("Bin-mapped %d variables for %s %s",
				len(mapped), d.Meta.InstrumentMake, d.Meta.InstrumentModel)
		}
		return nil
	}
}

func mappingMethodName(m BinMappingMethod) string {
	if m == MeanMapping {
		return "bin averaging"
	}
	return "linear interpolation"
}
