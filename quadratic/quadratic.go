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

// Package quadratic provides a synthetic quadratic cost function with a
// known Hessian, standing in for the tangent-linear/adjoint model pair
// in self-contained minimization runs. The gradient of the cost
// function at increment x is
//
//	grad(x) = g0 + H x
//
// with H diagonal plus an optional nearest-neighbor horizontal
// coupling. Because the gradient is exactly linear in x, the
// finite-difference Hessian estimates of the minimization are exact
// and every coefficient it produces can be checked against direct
// linear algebra.
package quadratic

import (
	"fmt"
	"math"

	"github.com/oceanmodel/fourdvar"
)

// Model is a quadratic cost-function gradient oracle. Diag holds the
// diagonal of the Hessian per grid point and field; G0 is the gradient
// at the zero increment. Coupling adds a symmetric nearest-neighbor
// term c*(x(i-1,j)+x(i+1,j)+x(i,j-1)+x(i,j+1)) within each horizontal
// plane.
//
// The Hessian is positive definite whenever every diagonal entry
// exceeds four times |Coupling| (diagonal dominance); Check enforces
// that. Setting a negative diagonal entry deliberately breaks
// convexity, which the minimization must detect and refuse.
type Model struct {
	Diag     *fourdvar.ControlVector
	G0       *fourdvar.ControlVector
	Coupling float64

	Evals int // number of Gradient calls served
}

// Check verifies positive definiteness by diagonal dominance over the
// unmasked interior points.
func (m *Model) Check() error {
	g := m.Diag.Grid
	lim := 4 * math.Abs(m.Coupling)
	for _, f := range m.Diag.Fields() {
		msk := g.Mask(f.Kind)
		plane := g.TotalX() * g.TotalY()
		for i, v := range f.Data.Elements {
			if msk != nil && msk.Elements[i%plane] == 0 {
				continue
			}
			if v <= lim {
				return fmt.Errorf("quadratic: Hessian diagonal %g at %s[%d] not dominant over coupling %g",
					v, f.Name, i, m.Coupling)
			}
		}
	}
	return nil
}

// Gradient computes grad = G0 + H*trial.
func (m *Model) Gradient(trial, grad *fourdvar.ControlVector) error {
	m.Evals++
	g := grad.Grid
	nxt, nyt := g.TotalX(), g.TotalY()
	plane := nxt * nyt

	df, tf, gf := m.Diag.Fields(), trial.Fields(), grad.Fields()
	for fi := range gf {
		dd, tt, out := df[fi].Data.Elements, tf[fi].Data.Elements, gf[fi].Data.Elements
		msk := g.Mask(gf[fi].Kind)
		for i := range out {
			v := dd[i] * tt[i]
			if m.Coupling != 0 {
				rem := i % plane
				x, y := rem%nxt, rem/nxt
				if x > 0 {
					v += m.Coupling * tt[i-1]
				}
				if x < nxt-1 {
					v += m.Coupling * tt[i+1]
				}
				if y > 0 {
					v += m.Coupling * tt[i-nxt]
				}
				if y < nyt-1 {
					v += m.Coupling * tt[i+nxt]
				}
			}
			out[i] = v
			if msk != nil {
				out[i] *= msk.Elements[i%plane]
			}
		}
	}
	grad.AddScaled(grad, m.G0, 1, 1)
	return nil
}

// Cost evaluates the quadratic cost function J(x) = g0.x + x.Hx/2 at
// the given increment. Diagnostic only; the minimization itself never
// needs cost values.
func (m *Model) Cost(x *fourdvar.ControlVector) (float64, error) {
	grad := fourdvar.NewControlVector(x.Grid, x.FS)
	if err := m.Gradient(x, grad); err != nil {
		return 0, err
	}
	m.Evals-- // cost evaluation is not a gradient call
	// g0.x + x.Hx/2 = x.(g0 + Hx)/2 + g0.x/2
	a := x.Dot(grad).Total
	b := x.Dot(m.G0).Total
	return (a + b) / 2, nil
}
