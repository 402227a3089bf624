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

package quadratic

import (
	"math"
	"testing"

	"github.com/oceanmodel/fourdvar"
)

func testModel() (*Model, *fourdvar.Grid) {
	g := &fourdvar.Grid{Nx: 4, Ny: 3}
	fs := fourdvar.FieldSet{}
	m := &Model{
		Diag:     fourdvar.NewControlVector(g, fs),
		G0:       fourdvar.NewControlVector(g, fs),
		Coupling: 0.25,
	}
	c := 0
	for _, f := range m.Diag.Fields() {
		for i := range f.Data.Elements {
			f.Data.Elements[i] = 3 + float64(c%5)
			c++
		}
	}
	c = 0
	for _, f := range m.G0.Fields() {
		for i := range f.Data.Elements {
			f.Data.Elements[i] = math.Cos(float64(c) * 0.9)
			c++
		}
	}
	return m, g
}

func TestCheck(t *testing.T) {
	m, _ := testModel()
	if err := m.Check(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	m.Coupling = 2 // 4*|c| > min diag
	if err := m.Check(); err == nil {
		t.Error("expected dominance error")
	}
}

// The gradient must be affine: grad(x) - grad(0) = H x, so doubling
// the increment doubles the gradient change.
func TestGradientLinearity(t *testing.T) {
	m, g := testModel()
	fs := fourdvar.FieldSet{}
	x := fourdvar.NewControlVector(g, fs)
	c := 0
	for _, f := range x.Fields() {
		for i := range f.Data.Elements {
			f.Data.Elements[i] = math.Sin(float64(c) * 1.3)
			c++
		}
	}
	g1 := fourdvar.NewControlVector(g, fs)
	g2 := fourdvar.NewControlVector(g, fs)
	x2 := fourdvar.NewControlVector(g, fs)
	x2.Scale(x, 2)
	if err := m.Gradient(x, g1); err != nil {
		t.Fatal(err)
	}
	if err := m.Gradient(x2, g2); err != nil {
		t.Fatal(err)
	}
	// grad(2x) - grad(x) = grad(x) - g0.
	lhs := fourdvar.NewControlVector(g, fs)
	rhs := fourdvar.NewControlVector(g, fs)
	lhs.AddScaled(g2, g1, 1, -1)
	rhs.AddScaled(g1, m.G0, 1, -1)
	lf, rf := lhs.Fields(), rhs.Fields()
	for fi := range lf {
		for i := range lf[fi].Data.Elements {
			if have, want := lf[fi].Data.Elements[i], rf[fi].Data.Elements[i]; math.Abs(have-want) > 1e-12 {
				t.Fatalf("%s[%d]: have %v, want %v", lf[fi].Name, i, have, want)
			}
		}
	}
	if m.Evals != 2 {
		t.Errorf("model call count = %d, want 2", m.Evals)
	}
}

// The Hessian must be symmetric in the interior dot product.
func TestHessianSymmetry(t *testing.T) {
	m, g := testModel()
	fs := fourdvar.FieldSet{}
	x := fourdvar.NewControlVector(g, fs)
	y := fourdvar.NewControlVector(g, fs)
	c := 0
	for _, f := range x.Fields() {
		for i := range f.Data.Elements {
			f.Data.Elements[i] = math.Sin(float64(c) * 2.1)
			c++
		}
	}
	for _, f := range y.Fields() {
		for i := range f.Data.Elements {
			f.Data.Elements[i] = math.Cos(float64(c) * 1.1)
			c++
		}
	}
	hx := fourdvar.NewControlVector(g, fs)
	hy := fourdvar.NewControlVector(g, fs)
	if err := m.Gradient(x, hx); err != nil {
		t.Fatal(err)
	}
	if err := m.Gradient(y, hy); err != nil {
		t.Fatal(err)
	}
	hx.AddScaled(hx, m.G0, 1, -1)
	hy.AddScaled(hy, m.G0, 1, -1)
	a := hx.Dot(y).Total
	b := x.Dot(hy).Total
	if math.Abs(a-b) > 1e-10*math.Max(1, math.Abs(a)) {
		t.Errorf("<Hx,y> = %v but <x,Hy> = %v", a, b)
	}
}

func TestCost(t *testing.T) {
	m, g := testModel()
	fs := fourdvar.FieldSet{}
	zero := fourdvar.NewControlVector(g, fs)
	j0, err := m.Cost(zero)
	if err != nil {
		t.Fatal(err)
	}
	if j0 != 0 {
		t.Errorf("cost at zero increment = %v, want 0", j0)
	}
	// Moving against the gradient lowers the cost for small steps.
	x := fourdvar.NewControlVector(g, fs)
	x.Scale(m.G0, -1e-3)
	j1, err := m.Cost(x)
	if err != nil {
		t.Fatal(err)
	}
	if j1 >= j0 {
		t.Errorf("cost %v did not decrease from %v", j1, j0)
	}
	if m.Evals != 0 {
		t.Errorf("cost evaluations counted as gradient calls: %d", m.Evals)
	}
}
