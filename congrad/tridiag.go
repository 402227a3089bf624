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

import "math"

// solveTridiagonal solves T(k) u = -qg for the minimizer coefficients
// in the Lanczos basis, where T(k) is the symmetric tridiagonal matrix
// with diagonal delta(1..k) and off-diagonal beta(2..k). Standard
// LU sweep without pivoting; T(k) is positive definite whenever the
// curvature checks have passed, so pivoting is not needed.
func (d *Descent) solveTridiagonal(k int) {
	bet := d.delta[1]
	d.u[1] = -d.qg[1] / bet
	for i := 2; i <= k; i++ {
		d.gam[i] = d.beta[i] / bet
		bet = d.delta[i] - d.beta[i]*d.gam[i]
		d.u[i] = (-d.qg[i] - d.beta[i]*d.u[i-1]) / bet
	}
	for i := k - 1; i >= 1; i-- {
		d.u[i] -= d.gam[i+1] * d.u[i+1]
	}
}

// gradientReduction estimates the cost-function gradient at the
// current minimizer estimate without an extra adjoint run, using the
// Lanczos residual identity
//
//	g(x) = g0 + beta(k+1) u(k) q(k+1) - sum_r (u(r) + qg(r)) q(r)
//
// and returns its norm relative to the initial gradient norm. This is
// the convergence diagnostic of the inner loop.
func (d *Descent) gradientReduction(k int, s *State) (float64, error) {
	s.acc.AddScaled(s.GradZero, s.GradNew, d.gnorm, d.beta[k+1]*d.u[k])
	for rec := 1; rec <= k; rec++ {
		if err := d.Records.ReadState(rec, s.work); err != nil {
			return 0, err
		}
		s.acc.AddScaled(s.acc, s.work, 1, -(d.u[rec] + d.qg[rec]))
	}
	return math.Sqrt(s.acc.Dot(s.acc).Total) / d.gnorm, nil
}
