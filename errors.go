/*
Copyright © 2026 the OceanVar authors.
This file is part of OceanVar.

OceanVar is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

OceanVar is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with OceanVar.  If not, see <http://www.gnu.org/licenses/>.
*/

package fourdvar

import "fmt"

// DegeneracyError reports a numerical breakdown of the minimization: a
// non-positive Hessian curvature estimate, a negative Ritz eigenvalue, or
// a vanishing Lanczos vector norm. Any of these invalidates the
// mathematical state of the conjugate-gradient recurrence, so the
// minimization must be aborted; there is no local recovery.
type DegeneracyError struct {
	// Iter is the inner-loop iteration at which the breakdown occurred.
	Iter int
	// Quantity names the offending quantity, e.g. "Delta" or "Ritz value".
	Quantity string
	// Value is the offending value.
	Value float64
}

func (e *DegeneracyError) Error() string {
	return fmt.Sprintf("fourdvar: numerical degeneracy at inner iteration %d: %s = %g",
		e.Iter, e.Quantity, e.Value)
}
