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

// estimateHessian recovers the Hessian-vector product H q(iter) from
// the change in the cost-function gradient by finite differences:
//
//	H q(iter) ~ (grad(tau q(iter)) + b - gnorm q(1)) / tau
//
// where b is the background-gradient contribution carried in TrialOld
// and gnorm q(1) is the unnormalized initial gradient (the starting
// vector scaled back up). The product overwrites GradNew, and its
// projection onto q(iter) becomes the tridiagonal diagonal entry
// delta(iter).
//
// The projection reads basis record iter into the scratch buffer and
// deliberately leaves it there: the Lanczos recurrence that runs next
// needs the same record first.
func (d *Descent) estimateHessian(iter int, s *State) error {
	fac := 1 / d.tauK
	s.GradNew.AddScaled(s.GradNew, s.TrialOld, fac, fac)
	s.GradNew.AddScaled(s.GradNew, s.GradZero, 1, -fac*d.gnorm)

	if err := d.Records.ReadState(iter, s.work); err != nil {
		return err
	}
	d.delta[iter] = s.GradNew.Dot(s.work).Total
	return nil
}
