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
	"os"
	"sort"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/mat"
)

// Write writes the deployment dataset to w as an intermediate
// snapshot file. Coordinate variables (one per dimension, sharing the
// dimension's name) are written first so that the dimension table's
// ordinal order survives a round trip.
func (d *Dataset) Write(w *os.File) error {
	dimNames := make([]string, len(d.Dimensions))
	dimLens := make([]int, len(d.Dimensions))
	for i, dim := range d.Dimensions {
		dimNames[i] = dim.Name
		dimLens[i] = len(dim.Data)
	}
	h := cdf.NewHeader(dimNames, dimLens)
	h.AddAttribute("", "comment", "ADCP deployment snapshot file")
	h.AddAttribute("", "history", d.History)
	h.AddAttribute("", "instrument_make", d.Meta.InstrumentMake)
	h.AddAttribute("", "instrument_model", d.Meta.InstrumentModel)
	h.AddAttribute("", "beams", []int32{int32(d.Meta.Beams)})
	h.AddAttribute("", "beam_angle", []float64{d.Meta.BeamAngle})
	compass := int32(0)
	if d.Meta.CompassCorrected {
		compass = 1
	}
	h.AddAttribute("", "compass_corrected", []int32{compass})
	if d.Meta.BeamTransform != nil {
		r, c := d.Meta.BeamTransform.Dims()
		flat := make([]float64, 0, r*c)
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				flat = append(flat, d.Meta.BeamTransform.At(i, j))
			}
		}
		h.AddAttribute("", "beam_transform", flat)
	}

	for _, dim := range d.Dimensions {
		h.AddVariable(dim.Name, []string{dim.Name}, []float32{0})
		h.AddAttribute(dim.Name, "comment", dim.Comment)
	}

	// Sort the names so they write in the same order every time.
	names := make([]string, 0, len(d.Data))
	for n := range d.Data {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, name := range names {
		v := d.Data[name]
		vdims := make([]string, len(v.Dims))
		for i, ordinal := range v.Dims {
			if ordinal < 0 || ordinal >= len(d.Dimensions) {
				return fmt.Errorf("adcp: variable %s references dimension %d but the dataset has %d dimensions",
					name, ordinal, len(d.Dimensions))
			}
			vdims[i] = d.Dimensions[ordinal].Name
		}
		h.AddVariable(name, vdims, []float32{0})
		h.AddAttribute(name, "description", v.Description)
		h.AddAttribute(name, "units", v.Units)
		h.AddAttribute(name, "comment", v.Comment)
		h.AddAttribute(name, "coordinates", v.Coordinates)
	}
	h.Define()

	f, err := cdf.Create(w, h) // writes the header to w
	if err != nil {
		return err
	}
	for _, dim := range d.Dimensions {
		a := sparse.ZerosDense(len(dim.Data))
		copy(a.Elements, dim.Data)
		if err := writeNCF(f, dim.Name, a); err != nil {
			return fmt.Errorf("adcp: writing dimension %s to snapshot file: %v", dim.Name, err)
		}
	}
	for _, name := range names {
		if err := writeNCF(f, name, d.Data[name].Data); err != nil {
			return fmt.Errorf("adcp: writing variable %s to snapshot file: %v", name, err)
		}
	}
	return cdf.UpdateNumRecs(w)
}

// LoadDataset loads a deployment dataset from a snapshot file written
// by Dataset.Write.
func LoadDataset(rw cdf.ReaderWriterAt) (*Dataset, error) {
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, fmt.Errorf("adcp.LoadDataset: %v", err)
	}
	d := new(Dataset)
	d.History = attrString(f, "", "history")
	d.Meta.InstrumentMake = attrString(f, "", "instrument_make")
	d.Meta.InstrumentModel = attrString(f, "", "instrument_model")
	if a, ok := f.Header.GetAttribute("", "beams").([]int32); ok && len(a) > 0 {
		d.Meta.Beams = int(a[0])
	}
	if a, ok := f.Header.GetAttribute("", "beam_angle").([]float64); ok && len(a) > 0 {
		d.Meta.BeamAngle = a[0]
	}
	if a, ok := f.Header.GetAttribute("", "compass_corrected").([]int32); ok && len(a) > 0 {
		d.Meta.CompassCorrected = a[0] != 0
	}
	if a, ok := f.Header.GetAttribute("", "beam_transform").([]float64); ok && d.Meta.Beams > 0 {
		if len(a) != d.Meta.Beams*d.Meta.Beams {
			return nil, fmt.Errorf("adcp.LoadDataset: beam transform has %d elements; want %d",
				len(a), d.Meta.Beams*d.Meta.Beams)
		}
		d.Meta.BeamTransform = mat.NewDense(d.Meta.Beams, d.Meta.Beams, a)
	}

	for _, v := range f.Header.Variables() {
		dims := f.Header.Dimensions(v)
		lengths := f.Header.Lengths(v)
		data, err := readSnapshotVar(f, v, lengths)
		if err != nil {
			return nil, err
		}
		if len(dims) == 1 && dims[0] == v {
			// Coordinate variable: one entry of the dimension table.
			// A data variable defined before it has already created
			// the dimension empty; fill the values in either way.
			i := d.AddDimension(v, data.Elements, attrString(f, v, "comment"))
			d.Dimensions[i].Data = data.Elements
			d.Dimensions[i].Comment = attrString(f, v, "comment")
			continue
		}
		ordinals := make([]int, len(dims))
		for i, name := range dims {
			ordinals[i] = d.AddDimension(name, nil, "")
		}
		nv := d.AddVariable(v, ordinals, attrString(f, v, "description"),
			attrString(f, v, "units"), data)
		nv.Comment = attrString(f, v, "comment")
		nv.Coordinates = attrString(f, v, "coordinates")
	}
	return d, nil
}

func readSnapshotVar(f *cdf.File, v string, lengths []int) (*sparse.DenseArray, error) {
	r := f.Reader(v, nil, nil)
	n := 1
	for _, l := range lengths {
		n *= l
	}
	buf := r.Zero(n)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("adcp.LoadDataset: reading variable %s: %v", v, err)
	}
	data := sparse.ZerosDense(lengths...)
	for i, val := range buf.([]float32) {
		data.Elements[i] = float64(val)
	}
	return data, nil
}

func attrString(f *cdf.File, v, name string) string {
	if a, ok := f.Header.GetAttribute(v, name).(string); ok {
		return a
	}
	return ""
}

func writeNCF(f *cdf.File, Var string, data *sparse.DenseArray) error {
	// Check that data matches dimensions.
	n := 1
	for _, v := range data.Shape {
		n *= v
	}
	if len(data.Elements) != n {
		return fmt.Errorf("dims are %d but array length is %d", n, len(data.Elements))
	}

	data32 := make([]float32, len(data.Elements))
	for i, e := range data.Elements {
		data32[i] = float32(e)
	}
	end := f.Header.Lengths(Var)
	start := make([]int, len(end))
	w := f.Writer(Var, start, end)
	_, err := w.Write(data32)
	return err
}
