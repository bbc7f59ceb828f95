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

import "fmt"

// MissingInputError reports that a required attitude, geometry, or
// beam variable is absent from a deployment. The deployment should be
// skipped, not the batch.
type MissingInputError struct {
	Name string
}

func (e MissingInputError) Error() string {
	return fmt.Sprintf("adcp: required input %s is missing from deployment", e.Name)
}

// ShapeMismatchError reports that the length of an input series
// disagrees with the dimension it must align with. The deployment
// should be skipped, not the batch.
type ShapeMismatchError struct {
	Name       string
	Want, Have int
}

func (e ShapeMismatchError) Error() string {
	return fmt.Sprintf("adcp: %s has length %d but %d is required", e.Name, e.Have, e.Want)
}

// UnsupportedConfigurationError reports an instrument family or beam
// count not covered by the beam-geometry tables. The deployment
// should be skipped, not the batch.
type UnsupportedConfigurationError struct {
	Reason string
}

func (e UnsupportedConfigurationError) Error() string {
	return "adcp: unsupported instrument configuration: " + e.Reason
}

// IsDeploymentSkip reports whether err is a recoverable
// per-deployment failure: the deployment it arose from should be left
// unmodified and the batch should continue.
func IsDeploymentSkip(err error) bool {
	switch err.(type) {
	case MissingInputError, ShapeMismatchError, UnsupportedConfigurationError:
		return true
	}
	return false
}
