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

// composeTrial fills TrialNew with the next trial increment. On every
// iteration but the last this is a fixed step along the new basis
// direction; the step only probes the Hessian, it is not a line-search
// minimizer. On the final inner iteration the actual minimizer over
// the whole basis span is reconstructed from the tridiagonal solution:
//
//	x* = sum_r u(r) q(r)
func (d *Descent) composeTrial(iter int, s *State) error {
	if iter != d.MaxInner-1 {
		s.TrialNew.Scale(s.Dir, d.tauK)
		return nil
	}
	s.acc.Init(0)
	for rec := 1; rec <= iter; rec++ {
		if err := d.Records.ReadState(rec, s.work); err != nil {
			return err
		}
		s.acc.AddScaled(s.acc, s.work, 1, d.u[rec])
	}
	s.TrialNew.CopyFrom(s.acc)
	return nil
}
