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
	"time"

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/mat"
)

// Standard dimension names used by the instrument parsers that
// produce deployment datasets.
const (
	DimTime              = "TIME"
	DimDistAlongBeams    = "DIST_ALONG_BEAMS"
	DimHeightAboveSensor = "HEIGHT_ABOVE_SENSOR"
)

// Standard attitude and velocity variable names.
const (
	VarHeading    = "HEADING"
	VarHeadingMag = "HEADING_MAG"
	VarPitch      = "PITCH"
	VarRoll       = "ROLL"
)

// historyFormat is the timestamp format used for dataset
// history entries.
const historyFormat = "Mon Jan _2 15:04:05 2006"

// A Dimension is one axis of a deployment dataset. Data holds the
// coordinate values along the axis (e.g. along-beam distances [m]).
type Dimension struct {
	Name    string
	Data    []float64
	Comment string
}

// A Variable is one recorded or derived quantity in a deployment
// dataset. Dims holds ordinal references into the dataset's
// dimension table.
type Variable struct {
	Data        *sparse.DenseArray
	Dims        []int
	Coordinates string
	Description string
	Units       string
	Comment     string
}

// Meta holds the per-instrument attributes recorded by the parser
// that produced a deployment dataset.
type Meta struct {
	InstrumentMake  string
	InstrumentModel string

	// Beams is the number of acoustic beams (3 or 4).
	Beams int

	// BeamAngle is the beam half-angle from the vertical [degrees].
	BeamAngle float64

	// BeamTransform is the beam-to-instrument-frame calibration
	// matrix (3×3, or 4×4 for 4-beam instruments).
	BeamTransform *mat.Dense

	// CompassCorrected reports whether the instrument heading is
	// referenced to true north rather than magnetic north.
	CompassCorrected bool
}

// A Dataset holds one instrument deployment: its dimension table,
// recorded variables, and instrument metadata. Preprocessing routines
// mutate it in place through the adapter functions in this package.
type Dataset struct {
	Meta       Meta
	Dimensions []*Dimension
	Data       map[string]*Variable
	History    string
}

// AddDimension appends a dimension to the dataset's dimension table
// and returns its ordinal. If a dimension with the same name already
// exists its ordinal is returned unchanged.
func (d *Dataset) AddDimension(name string, data []float64, comment string) int {
	if i, ok := d.DimIndex(name); ok {
		return i
	}
	d.Dimensions = append(d.Dimensions, &Dimension{
		Name:    name,
		Data:    data,
		Comment: comment,
	})
	return len(d.Dimensions) - 1
}

// DimIndex returns the ordinal of the named dimension.
func (d *Dataset) DimIndex(name string) (int, bool) {
	for i, dim := range d.Dimensions {
		if dim.Name == name {
			return i, true
		}
	}
	return -1, false
}

// Dim returns the named dimension, or nil if it does not exist.
func (d *Dataset) Dim(name string) *Dimension {
	if i, ok := d.DimIndex(name); ok {
		return d.Dimensions[i]
	}
	return nil
}

// AddVariable adds data for a new variable to d, replacing any
// existing variable with the same name.
func (d *Dataset) AddVariable(name string, dims []int, description, units string, data *sparse.DenseArray) *Variable {
	if d.Data == nil {
		d.Data = make(map[string]*Variable)
	}
	v := &Variable{
		Data:        data,
		Dims:        dims,
		Description: description,
		Units:       units,
	}
	d.Data[name] = v
	return v
}

// AppendComment appends provenance text to the named variable's
// comment, never overwriting what is already there.
func (d *Dataset) AppendComment(name, comment string) error {
	v, ok := d.Data[name]
	if !ok {
		return fmt.Errorf("adcp: appending comment: no variable %s in dataset", name)
	}
	if v.Comment == "" {
		v.Comment = comment
	} else {
		v.Comment += " " + comment
	}
	return nil
}

// AppendHistory appends a timestamped one-line description of a
// transform to the dataset-level history.
func (d *Dataset) AppendHistory(desc string) {
	line := fmt.Sprintf("%s: %s", time.Now().UTC().Format(historyFormat), desc)
	if d.History == "" {
		d.History = line
	} else {
		d.History += "\n" + line
	}
}

// RedirectDimension changes every variable reference to dimension
// ordinal `from` so that it references ordinal `to` instead.
func (d *Dataset) RedirectDimension(from, to int) {
	for _, v := range d.Data {
		for i, dim := range v.Dims {
			if dim == from {
				v.Dims[i] = to
			}
		}
	}
}

// DeleteDimensionIfUnused removes the dimension at ordinal idx from
// the dimension table if no variable still references it, compacting
// the ordinals of every variable referencing a higher-numbered
// dimension. It reports whether the dimension was deleted.
func (d *Dataset) DeleteDimensionIfUnused(idx int) bool {
	for _, v := range d.Data {
		for _, dim := range v.Dims {
			if dim == idx {
				return false
			}
		}
	}
	d.Dimensions = append(d.Dimensions[:idx], d.Dimensions[idx+1:]...)
	for _, v := range d.Data {
		for i, dim := range v.Dims {
			if dim > idx {
				v.Dims[i] = dim - 1
			}
		}
	}
	return true
}

// attitude returns the named attitude series, checking that its
// length matches the expected number of timestamps.
func (d *Dataset) attitude(name string, n int) ([]float64, error) {
	v, ok := d.Data[name]
	if !ok {
		return nil, MissingInputError{Name: name}
	}
	if len(v.Data.Shape) != 1 || v.Data.Shape[0] != n {
		return nil, ShapeMismatchError{Name: name, Want: n, Have: v.Data.Shape[0]}
	}
	return v.Data.Elements, nil
}

// heading returns the instrument heading series [degrees] together
// with the name of the variable it came from (HEADING when the
// compass has been corrected to true north, HEADING_MAG otherwise).
func (d *Dataset) heading(n int) ([]float64, string, error) {
	name := VarHeadingMag
	if d.Meta.CompassCorrected {
		name = VarHeading
	}
	h, err := d.attitude(name, n)
	if err != nil {
		return nil, "", err
	}
	return h, name, nil
}
