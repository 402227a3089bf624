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

package congrad

import (
	"math"

	"github.com/oceanmodel/fourdvar"
)

// lanczos applies the three-term Lanczos recurrence to the vector in
// GradNew (the raw gradient at iteration zero, the Hessian-vector
// product afterwards), re-orthogonalizes it against the whole stored
// basis, normalizes it, and persists it as basis record iter+1 together
// with its scalar coefficients.
//
// In exact arithmetic the recurrence alone would keep the basis
// orthogonal, but rounding destroys that within a few iterations, so
// every previous basis vector is re-read and projected out, most
// recent first. This is what makes the minimization I/O-bound for long
// inner loops, and it is the reason the basis must be persisted at
// all.
func (d *Descent) lanczos(iter int, s *State) error {
	if iter > 0 {
		// s.work still holds basis record iter, read by the Hessian
		// estimator.
		s.GradNew.AddScaled(s.GradNew, s.work, 1, -d.delta[iter])
	}
	if iter > 1 {
		if err := d.Records.ReadState(iter-1, s.work); err != nil {
			return err
		}
		s.GradNew.AddScaled(s.GradNew, s.work, 1, -d.beta[iter])
	}

	// Full Gram-Schmidt pass over the stored basis, most recent first.
	for rec := iter; rec >= 1; rec-- {
		if err := d.Records.ReadState(rec, s.work); err != nil {
			return err
		}
		proj := s.GradNew.Dot(s.work).Total
		s.GradNew.AddScaled(s.GradNew, s.work, 1, -proj)
	}

	norm := math.Sqrt(s.GradNew.Dot(s.GradNew).Total)
	if norm <= 0 || math.IsNaN(norm) {
		return &fourdvar.DegeneracyError{Iter: iter, Quantity: "Lanczos vector norm", Value: norm}
	}
	if iter == 0 {
		d.gnorm = norm
	} else {
		d.beta[iter+1] = norm
	}
	s.GradNew.Scale(s.GradNew, 1/norm)

	// Projection of the initial gradient onto the new basis vector:
	// the right-hand side entry of the tridiagonal system. At
	// iteration zero the new vector is the normalized initial
	// gradient itself, so the projection is gnorm exactly.
	var dot float64
	if iter == 0 {
		dot = s.GradNew.Dot(s.GradNew).Total
	} else {
		dot = s.GradZero.Dot(s.GradNew).Total
	}
	d.qg[iter+1] = d.gnorm * dot

	if err := d.Records.WriteState(iter+1, s.GradNew); err != nil {
		return err
	}
	if err := d.Records.WriteScalar(ScalarBeta, iter+1, d.beta[iter+1]); err != nil {
		return err
	}
	return d.Records.WriteScalar(ScalarQG, iter+1, d.qg[iter+1])
}
