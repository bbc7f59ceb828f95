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
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

func TestSnapshotRoundTrip(t *testing.T) {
	d := testDeployment()
	d.Dim(DimDistAlongBeams).Comment = "distance between bin centres and the sensor"
	d.AppendComment("VEL1", "Raw beam velocity.")
	d.AppendHistory("parsed from instrument file")
	d.AppendHistory("snapshot written")

	path := filepath.Join(t.TempDir(), "deployment.nc")
	w, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Write(w); err != nil {
		t.Fatal(err)
	}
	w.Close()

	r, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	d2, err := LoadDataset(r)
	if err != nil {
		t.Fatal(err)
	}

	if d2.Meta.InstrumentMake != d.Meta.InstrumentMake ||
		d2.Meta.InstrumentModel != d.Meta.InstrumentModel ||
		d2.Meta.Beams != d.Meta.Beams ||
		d2.Meta.BeamAngle != d.Meta.BeamAngle ||
		d2.Meta.CompassCorrected != d.Meta.CompassCorrected {
		t.Errorf("metadata round trip: have %+v", d2.Meta)
	}
	if d2.Meta.BeamTransform == nil {
		t.Fatal("beam transform lost")
	}
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if absDifferent(d2.Meta.BeamTransform.At(i, j), d.Meta.BeamTransform.At(i, j), 1e-12) {
				t.Fatalf("beam transform element (%d,%d) changed", i, j)
			}
		}
	}
	if d2.History != d.History {
		t.Errorf("history = %q; want %q", d2.History, d.History)
	}

	// The dimension table must come back in the same ordinal order.
	if len(d2.Dimensions) != len(d.Dimensions) {
		t.Fatalf("dimension table has %d entries; want %d", len(d2.Dimensions), len(d.Dimensions))
	}
	for i, dim := range d.Dimensions {
		have := d2.Dimensions[i]
		if have.Name != dim.Name || have.Comment != dim.Comment {
			t.Errorf("dimension %d: have %s %q; want %s %q",
				i, have.Name, have.Comment, dim.Name, dim.Comment)
		}
		for j, v := range dim.Data {
			if absDifferent(have.Data[j], v, 1e-5) {
				t.Errorf("dimension %s bin %d = %g; want %g", dim.Name, j, have.Data[j], v)
			}
		}
	}

	if len(d2.Data) != len(d.Data) {
		t.Fatalf("dataset has %d variables; want %d", len(d2.Data), len(d.Data))
	}
	for name, v := range d.Data {
		have, ok := d2.Data[name]
		if !ok {
			t.Fatalf("variable %s lost", name)
		}
		if !reflect.DeepEqual(have.Dims, v.Dims) {
			t.Errorf("%s dims = %v; want %v", name, have.Dims, v.Dims)
		}
		if have.Units != v.Units || have.Comment != v.Comment ||
			have.Coordinates != v.Coordinates {
			t.Errorf("%s attributes changed: %+v", name, have)
		}
		// Payloads are stored as float32.
		arrayCompare(have.Data, v.Data, 1e-5, name, t)
	}
}

// Snapshots from other tools may declare a data variable before its
// coordinate variable; the coordinate values must still land in the
// dimension table.
func TestLoadForeignVariableOrder(t *testing.T) {
	h := cdf.NewHeader([]string{DimTime}, []int{2})
	h.AddVariable("TEMP", []string{DimTime}, []float32{0})
	h.AddAttribute("TEMP", "units", "degC")
	h.AddVariable(DimTime, []string{DimTime}, []float32{0})
	h.AddAttribute(DimTime, "comment", "days since deployment")
	h.Define()

	path := filepath.Join(t.TempDir(), "foreign.nc")
	w, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	f, err := cdf.Create(w, h)
	if err != nil {
		t.Fatal(err)
	}
	temp := sparse.ZerosDense(2)
	copy(temp.Elements, []float64{12.5, 13})
	if err := writeNCF(f, "TEMP", temp); err != nil {
		t.Fatal(err)
	}
	times := sparse.ZerosDense(2)
	copy(times.Elements, []float64{0, 1})
	if err := writeNCF(f, DimTime, times); err != nil {
		t.Fatal(err)
	}
	if err := cdf.UpdateNumRecs(w); err != nil {
		t.Fatal(err)
	}
	w.Close()

	r, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	d, err := LoadDataset(r)
	if err != nil {
		t.Fatal(err)
	}
	dim := d.Dim(DimTime)
	if dim == nil {
		t.Fatal("time dimension missing")
	}
	if len(dim.Data) != 2 || dim.Data[0] != 0 || dim.Data[1] != 1 {
		t.Errorf("coordinate values = %v; want [0 1]", dim.Data)
	}
	if dim.Comment != "days since deployment" {
		t.Errorf("dimension comment = %q", dim.Comment)
	}
	v, ok := d.Data["TEMP"]
	if !ok {
		t.Fatal("TEMP variable missing")
	}
	if len(v.Dims) != 1 || d.Dimensions[v.Dims[0]].Name != DimTime {
		t.Errorf("TEMP dims = %v", v.Dims)
	}
	if absDifferent(v.Data.Elements[0], 12.5, 1e-6) {
		t.Errorf("TEMP[0] = %g; want 12.5", v.Data.Elements[0])
	}
}

func TestWriteBadOrdinal(t *testing.T) {
	d := testDeployment()
	d.Data["VEL1"].Dims[1] = 7
	w, err := os.Create(filepath.Join(t.TempDir(), "bad.nc"))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if err := d.Write(w); err == nil {
		t.Fatal("no error for an out-of-range dimension ordinal")
	}
}
