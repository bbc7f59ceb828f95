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
)

// MagneticDeclination corrects magnetic-referenced velocities and
// heading to true north by rotating them through the given
// declination angle [degrees, positive when magnetic north lies east
// of true north]. UCUR_MAG/VCUR_MAG/HEADING_MAG are replaced by their
// true-north equivalents and the compass-corrected flag is set.
func MagneticDeclination(declination float64) Routine {
	return func(d *Dataset, msgChan chan string) error {
		u, ok := d.Data["UCUR_MAG"]
		if !ok {
			return MissingInputError{Name: "UCUR_MAG"}
		}
		v, ok := d.Data["VCUR_MAG"]
		if !ok {
			return MissingInputError{Name: "VCUR_MAG"}
		}
		if len(u.Data.Shape) != len(v.Data.Shape) || u.Data.Shape[0] != v.Data.Shape[0] {
			return ShapeMismatchError{Name: "VCUR_MAG", Want: u.Data.Shape[0], Have: v.Data.Shape[0]}
		}

		sd, cd := math.Sin(declination*degToRad), math.Cos(declination*degToRad)
		uTrue := sparse.ZerosDense(u.Data.Shape...)
		vTrue := sparse.ZerosDense(v.Data.Shape...)
		for i, uv := range u.Data.Elements {
			vv := v.Data.Elements[i]
			uTrue.Elements[i] = uv*cd + vv*sd
			vTrue.Elements[i] = -uv*sd + vv*cd
		}

		comment := fmt.Sprintf("Corrected to true north using a magnetic declination of %g°.", declination)
		outputs := []struct {
			name string
			src  *Variable
			data *sparse.DenseArray
		}{
			{"UCUR", u, uTrue},
			{"VCUR", v, vTrue},
		}
		for _, o := range outputs {
			nv := d.AddVariable(o.name, append([]int(nil), o.src.Dims...), o.src.Description, o.src.Units, o.data)
			nv.Coordinates = o.src.Coordinates
			nv.Comment = o.src.Comment
			d.AppendComment(o.name, comment)
		}
		delete(d.Data, "UCUR_MAG")
		delete(d.Data, "VCUR_MAG")

		if h, ok := d.Data[VarHeadingMag]; ok {
			ht := h.Data.Copy()
			for i, hv := range ht.Elements {
				ht.Elements[i] = math.Mod(hv+declination+360, 360)
			}
			nv := d.AddVariable(VarHeading, append([]int(nil), h.Dims...), h.Description, h.Units, ht)
			nv.Coordinates = h.Coordinates
			nv.Comment = h.Comment
			d.AppendComment(VarHeading, comment)
			delete(d.Data, VarHeadingMag)
		}
		d.Meta.CompassCorrected = true

		d.AppendHistory(fmt.Sprintf("magnetic declination correction applied (%g°)", declination))
		if msgChan != nil {
			msgChan <- fmt.Sprintf("Applied %g° declination correction for %s %s",
				declination, d.Meta.InstrumentMake, d.Meta.InstrumentModel)
		}
		return nil
	}
}

// CurrentSpeedDirection derives horizontal current speed (CSPD
// [m s-1]) and direction (CDIR [degrees clockwise from true north,
// the direction the current flows toward]) from UCUR and VCUR. It
// fulfills the Routine contract.
func CurrentSpeedDirection(d *Dataset, msgChan chan string) error {
	u, ok := d.Data["UCUR"]
	if !ok {
		return MissingInputError{Name: "UCUR"}
	}
	v, ok := d.Data["VCUR"]
	if !ok {
		return MissingInputError{Name: "VCUR"}
	}
	if len(u.Data.Elements) != len(v.Data.Elements) {
		return ShapeMismatchError{Name: "VCUR", Want: len(u.Data.Elements), Have: len(v.Data.Elements)}
	}

	speed := sparse.ZerosDense(u.Data.Shape...)
	dir := sparse.ZerosDense(u.Data.Shape...)
	for i, uv := range u.Data.Elements {
		vv := v.Data.Elements[i]
		speed.Elements[i] = math.Hypot(uv, vv)
		dir.Elements[i] = math.Mod(math.Atan2(uv, vv)/degToRad+360, 360)
	}

	sv := d.AddVariable("CSPD", append([]int(nil), u.Dims...),
		"Horizontal current speed", "m s-1", speed)
	sv.Coordinates = u.Coordinates
	d.AppendComment("CSPD", "Derived from UCUR and VCUR.")
	dv := d.AddVariable("CDIR", append([]int(nil), u.Dims...),
		"Horizontal current direction (clockwise from true north)", "degree", dir)
	dv.Coordinates = u.Coordinates
	d.AppendComment("CDIR", "Derived from UCUR and VCUR.")

	d.AppendHistory("current speed and direction derived from UCUR/VCUR")
	if msgChan != nil {
		msgChan <- fmt.Sprintf("Derived CSPD/CDIR for %s %s",
			d.Meta.InstrumentMake, d.Meta.InstrumentModel)
	}
	return nil
}
