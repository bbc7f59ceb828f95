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
	"reflect"
	"strings"
	"testing"

	"github.com/ctessum/sparse"
)

func different(a, b, tolerance float64) bool {
	if 2*math.Abs(a-b)/math.Abs(a+b) > tolerance || math.IsNaN(a) || math.IsNaN(b) {
		return true
	}
	return false
}

func absDifferent(a, b, tolerance float64) bool {
	if math.Abs(a-b) > tolerance {
		return true
	}
	return false
}

func arrayCompare(have, want *sparse.DenseArray, tolerance float64, name string, t *testing.T) {
	if !reflect.DeepEqual(want.Shape, have.Shape) {
		t.Errorf("%s: want shape %v but have shape %v", name, want.Shape, have.Shape)
		return
	}
	for i, wantv := range want.Elements {
		havev := have.Elements[i]
		if math.IsNaN(wantv) != math.IsNaN(havev) ||
			(!math.IsNaN(wantv) && absDifferent(havev, wantv, tolerance)) {
			t.Errorf("%s: element %d: want %g but have %g", name, i, wantv, havev)
		}
	}
}

// testDeployment builds a small 4-beam up-looking deployment with
// deterministic beam velocities and attitude.
func testDeployment() *Dataset {
	const n, m = 4, 6
	d := &Dataset{
		Meta: Meta{
			InstrumentMake:  "Teledyne RDI",
			InstrumentModel: "Workhorse",
			Beams:           4,
			BeamAngle:       20,
			BeamTransform:   rdiTransform(),
		},
	}
	tDim := d.AddDimension(DimTime, []float64{0, 1, 2, 3}, "")
	dist := []float64{5, 10, 15, 20, 25, 30}
	distDim := d.AddDimension(DimDistAlongBeams, dist, "")

	heading, pitch, roll := testAttitude(n)
	for name, data := range map[string][]float64{
		VarHeadingMag: heading,
		VarPitch:      pitch,
		VarRoll:       roll,
	} {
		a := sparse.ZerosDense(n)
		copy(a.Elements, data)
		d.AddVariable(name, []int{tDim}, "", "degree", a)
	}
	for b, a := range testBeams(4, n, m) {
		v := d.AddVariable(fmt.Sprintf("VEL%d", b+1), []int{tDim, distDim}, "", "m s-1", a)
		v.Coordinates = DimTime + " " + DimDistAlongBeams
	}
	return d
}

func TestVelocityBeamToEarth(t *testing.T) {
	d := testDeployment()
	if err := VelocityBeamToEarth(d, nil); err != nil {
		t.Fatal(err)
	}
	// Heading is magnetic, so the outputs carry the _MAG suffix.
	for _, name := range []string{"UCUR_MAG", "VCUR_MAG", "WCUR_MAG", "WCUR_2_MAG"} {
		v, ok := d.Data[name]
		if !ok {
			t.Fatalf("missing output variable %s", name)
		}
		if !reflect.DeepEqual(v.Dims, d.Data["VEL1"].Dims) {
			t.Errorf("%s dims = %v; want %v", name, v.Dims, d.Data["VEL1"].Dims)
		}
		if v.Units != "m s-1" || v.Comment == "" {
			t.Errorf("%s: units %q, comment %q", name, v.Units, v.Comment)
		}
	}
	if d.Data["UCUR"] != nil {
		t.Error("unsuffixed UCUR produced from a magnetic heading")
	}
	if !strings.Contains(d.History, "beam→ENU") {
		t.Errorf("history = %q", d.History)
	}
}

// Rotating beam velocities to Earth coordinates and solving back must
// reproduce the originals.
func TestVelocityRoundTripRoutines(t *testing.T) {
	d := testDeployment()
	originals := make(map[string]*sparse.DenseArray)
	for b := 1; b <= 4; b++ {
		name := fmt.Sprintf("VEL%d", b)
		originals[name] = d.Data[name].Data.Copy()
	}
	if err := VelocityBeamToEarth(d, nil); err != nil {
		t.Fatal(err)
	}
	if err := VelocityEarthToBeam(d, nil); err != nil {
		t.Fatal(err)
	}
	for name, want := range originals {
		arrayCompare(d.Data[name].Data, want, 1e-9, name, t)
	}
}

func TestRunSkipsDeployment(t *testing.T) {
	bad := testDeployment()
	delete(bad.Data, VarPitch)
	good := testDeployment()

	msgChan := make(chan string, 16)
	err := Run([]*Dataset{bad, good}, []Routine{VelocityBeamToEarth}, msgChan)
	close(msgChan)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := bad.Data["UCUR_MAG"]; ok {
		t.Error("skipped deployment was modified")
	}
	if _, ok := good.Data["UCUR_MAG"]; !ok {
		t.Error("healthy deployment was not processed")
	}
	var skipped bool
	for msg := range msgChan {
		if strings.Contains(msg, "Skipping deployment 1") {
			skipped = true
		}
	}
	if !skipped {
		t.Error("no skip message reported")
	}
}

func TestRunReturnsProgrammingError(t *testing.T) {
	d := testDeployment()
	d.Data["VEL1"].Data = sparse.ZerosDense(4) // wrong rank
	err := Run([]*Dataset{d}, []Routine{VelocityBeamToEarth}, nil)
	if err == nil {
		t.Fatal("malformed variable rank did not abort the batch")
	}
	if IsDeploymentSkip(err) {
		t.Errorf("rank error classified as recoverable: %v", err)
	}
}

// With zero tilt, bin mapping is the identity; the routine must still
// rewire the mapped variables onto the new vertical dimension and
// drop the along-beam one.
func TestMapBinsRoutine(t *testing.T) {
	d := testDeployment()
	zero := make([]float64, 4)
	copy(d.Data[VarPitch].Data.Elements, zero)
	copy(d.Data[VarRoll].Data.Elements, zero)
	want := d.Data["VEL2"].Data.Copy()
	distDim, _ := d.DimIndex(DimDistAlongBeams)

	if err := MapBins(LinearMapping)(d, nil); err != nil {
		t.Fatal(err)
	}

	if _, ok := d.DimIndex(DimDistAlongBeams); ok {
		t.Error("along-beam dimension survived bin mapping")
	}
	hDim, ok := d.DimIndex(DimHeightAboveSensor)
	if !ok {
		t.Fatal("no vertical dimension created")
	}
	if hDim != distDim {
		t.Errorf("vertical dimension ordinal = %d; want compacted %d", hDim, distDim)
	}
	v := d.Data["VEL2"]
	if v.Dims[1] != hDim {
		t.Errorf("VEL2 dims = %v; want second ordinal %d", v.Dims, hDim)
	}
	if v.Coordinates != DimTime+" "+DimHeightAboveSensor {
		t.Errorf("VEL2 coordinates = %q", v.Coordinates)
	}
	arrayCompare(v.Data, want, 1e-12, "VEL2", t)
	if v.Comment == "" {
		t.Error("no provenance comment on mapped variable")
	}
}

// A deployment that fails validation partway through its variable
// set must come out of the skipped routine byte-identical: nothing
// mapped, no dimensions rewired, no provenance added.
func TestMapBinsSkipLeavesDeploymentUntouched(t *testing.T) {
	d := testDeployment()
	// VEL2 narrower than the declared along-beam axis.
	d.Data["VEL2"].Data = sparse.ZerosDense(4, 5)
	want := d.Data["VEL1"].Data.Copy()

	err := MapBins(LinearMapping)(d, nil)
	if err == nil {
		t.Fatal("no error for a mis-sized beam variable")
	}
	if !IsDeploymentSkip(err) {
		t.Fatalf("mis-sized beam variable should be recoverable; got %v", err)
	}
	arrayCompare(d.Data["VEL1"].Data, want, 0, "VEL1", t)
	if _, ok := d.DimIndex(DimDistAlongBeams); !ok {
		t.Error("along-beam dimension removed by a skipped routine")
	}
	if _, ok := d.DimIndex(DimHeightAboveSensor); ok {
		t.Error("vertical dimension created by a skipped routine")
	}
	if d.Data["VEL1"].Comment != "" {
		t.Errorf("provenance added by a skipped routine: %q", d.Data["VEL1"].Comment)
	}
	if d.History != "" {
		t.Errorf("history written by a skipped routine: %q", d.History)
	}
}

// Beam variables must agree on one time axis, whichever order the
// validation visits them in.
func TestMapBinsInconsistentTimeAxes(t *testing.T) {
	d := testDeployment()
	d.Data["VEL3"].Data = sparse.ZerosDense(3, 6)
	want := d.Data["VEL1"].Data.Copy()

	err := MapBins(LinearMapping)(d, nil)
	if err == nil {
		t.Fatal("no error for disagreeing time axes")
	}
	if !IsDeploymentSkip(err) {
		t.Fatalf("time axis disagreement should be recoverable; got %v", err)
	}
	arrayCompare(d.Data["VEL1"].Data, want, 0, "VEL1", t)
}

// A down-looking deployment reports negative decreasing distances;
// the created vertical axis must keep that sign convention.
func TestMapBinsDownLooking(t *testing.T) {
	d := testDeployment()
	axis := d.Dim(DimDistAlongBeams).Data
	for i := range axis {
		axis[i] = -axis[i]
	}
	if err := MapBins(MeanMapping)(d, nil); err != nil {
		t.Fatal(err)
	}
	h := d.Dim(DimHeightAboveSensor)
	if h == nil {
		t.Fatal("no vertical dimension created")
	}
	for i, v := range h.Data {
		if v != axis[i] {
			t.Fatalf("vertical axis bin %d = %g; want %g", i, v, axis[i])
		}
	}
}
