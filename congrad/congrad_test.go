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
	"errors"
	"math"
	"testing"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/oceanmodel/fourdvar"
	"github.com/oceanmodel/fourdvar/quadratic"
	"github.com/oceanmodel/fourdvar/store"
)

func quietLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func testGrid() *fourdvar.Grid {
	return &fourdvar.Grid{Nx: 4, Ny: 3}
}

// testModel builds a diagonal quadratic model with a spread-out
// spectrum and a dense initial gradient.
func testModel(g *fourdvar.Grid) *quadratic.Model {
	fs := fourdvar.FieldSet{}
	m := &quadratic.Model{
		Diag: fourdvar.NewControlVector(g, fs),
		G0:   fourdvar.NewControlVector(g, fs),
	}
	c := 0
	for _, f := range m.Diag.Fields() {
		for i := range f.Data.Elements {
			f.Data.Elements[i] = 4 + float64(c%7) + 0.1*float64(c%3)
			c++
		}
	}
	c = 0
	for _, f := range m.G0.Fields() {
		for i := range f.Data.Elements {
			f.Data.Elements[i] = math.Sin(float64(c)*1.7) + 0.2
			c++
		}
	}
	return m
}

func testDescent(maxInner int) *Descent {
	return &Descent{
		Records:  store.NewMemStore(),
		StepSize: 1e-3,
		MaxInner: maxInner,
		GradErr:  1e-4,
		HevecErr: 1e-2,
		Log:      quietLog(),
	}
}

// The free surface carries gradient (2,3) with Hessian diag(4,9); the
// other fields are inert. The initial gradient norm must be sqrt(13)
// and the first curvature estimate <H q(1), q(1)> = 97/13, exactly
// because the synthetic gradient is linear.
func TestCurvatureEstimate(t *testing.T) {
	g := &fourdvar.Grid{Nx: 2, Ny: 1}
	fs := fourdvar.FieldSet{}
	m := &quadratic.Model{
		Diag: fourdvar.NewControlVector(g, fs),
		G0:   fourdvar.NewControlVector(g, fs),
	}
	for _, f := range m.Diag.Fields() {
		f.Data.Elements[0], f.Data.Elements[1] = 1, 1
	}
	m.Diag.Zeta.Elements[0], m.Diag.Zeta.Elements[1] = 4, 9
	m.G0.Zeta.Elements[0], m.G0.Zeta.Elements[1] = 2, 3

	d := testDescent(3)
	s := NewState(g, fs)

	if err := m.Gradient(s.TrialNew, s.GradNew); err != nil {
		t.Fatal(err)
	}
	res, err := d.Step(0, s)
	if err != nil {
		t.Fatal(err)
	}
	if want := math.Sqrt(13); math.Abs(res.GradNorm-want) > 1e-14 {
		t.Errorf("gradient norm = %v, want %v", res.GradNorm, want)
	}
	if want := math.Sqrt(13); math.Abs(res.QG-want) > 1e-14 {
		t.Errorf("qg(1) = %v, want %v", res.QG, want)
	}
	s.GradZero.CopyFrom(s.GradNew)

	if err := m.Gradient(s.TrialNew, s.GradNew); err != nil {
		t.Fatal(err)
	}
	res, err = d.Step(1, s)
	if err != nil {
		t.Fatal(err)
	}
	// <H g, g>/|g|² = (4·2² + 9·3²)/13.
	if want := 97.0 / 13.0; math.Abs(res.Delta-want) > 1e-9 {
		t.Errorf("delta(1) = %v, want %v", res.Delta, want)
	}
}

func runInnerLoop(t *testing.T, d *Descent, m *quadratic.Model, g *fourdvar.Grid) (*State, *Result) {
	t.Helper()
	s := NewState(g, fourdvar.FieldSet{})
	res, err := d.Run(m, s)
	if err != nil {
		t.Fatal(err)
	}
	return s, res
}

// Every stored basis vector must stay orthonormal to all the others;
// this is what the full re-orthogonalization pays for.
func TestBasisOrthonormal(t *testing.T) {
	g := testGrid()
	d := testDescent(8)
	s, _ := runInnerLoop(t, d, testModel(g), g)

	n := d.MaxInner
	basis := make([]*fourdvar.ControlVector, n+1)
	for rec := 1; rec <= n; rec++ {
		basis[rec] = fourdvar.NewControlVector(g, fourdvar.FieldSet{})
		if err := d.Records.ReadState(rec, basis[rec]); err != nil {
			t.Fatal(err)
		}
	}
	for i := 1; i <= n; i++ {
		for j := i; j <= n; j++ {
			dot := basis[i].Dot(basis[j]).Total
			want := 0.0
			if i == j {
				want = 1.0
			}
			if math.Abs(dot-want) > 1e-9 {
				t.Errorf("<q(%d), q(%d)> = %v, want %v", i, j, dot, want)
			}
		}
	}
	// The preserved starting vector is basis record 1.
	if dot := s.GradZero.Dot(basis[1]).Total; math.Abs(dot-1) > 1e-12 {
		t.Errorf("<GradZero, q(1)> = %v, want 1", dot)
	}
}

// The stored coefficients and basis records must satisfy the three-term
// recurrence: H q(k) = Beta(k) q(k-1) + Delta(k) q(k) + Beta(k+1) q(k+1),
// with the oracle product H q(k) computed directly from the linear
// synthetic gradient.
func TestRecurrenceConsistency(t *testing.T) {
	g := testGrid()
	d := testDescent(6)
	m := testModel(g)
	runInnerLoop(t, d, m, g)

	fs := fourdvar.FieldSet{}
	qPrev := fourdvar.NewControlVector(g, fs)
	q := fourdvar.NewControlVector(g, fs)
	qNext := fourdvar.NewControlVector(g, fs)
	hq := fourdvar.NewControlVector(g, fs)
	want := fourdvar.NewControlVector(g, fs)
	for k := 2; k <= 4; k++ {
		if err := d.Records.ReadState(k-1, qPrev); err != nil {
			t.Fatal(err)
		}
		if err := d.Records.ReadState(k, q); err != nil {
			t.Fatal(err)
		}
		if err := d.Records.ReadState(k+1, qNext); err != nil {
			t.Fatal(err)
		}
		// H q(k) = grad(q(k)) - g0 because the gradient is linear.
		if err := m.Gradient(q, hq); err != nil {
			t.Fatal(err)
		}
		hq.AddScaled(hq, m.G0, 1, -1)

		want.AddScaled(qPrev, q, d.beta[k], d.delta[k])
		want.AddScaled(want, qNext, 1, d.beta[k+1])

		wf, hf := want.Fields(), hq.Fields()
		for fi := range wf {
			for i := range wf[fi].Data.Elements {
				if have, w := hf[fi].Data.Elements[i], wf[fi].Data.Elements[i]; math.Abs(have-w) > 1e-6 {
					t.Fatalf("k=%d: %s[%d]: have %v, want %v", k, wf[fi].Name, i, have, w)
				}
			}
		}
	}
}

// The persisted scalar coefficients must match the in-memory ones.
func TestPersistedCoefficients(t *testing.T) {
	g := testGrid()
	d := testDescent(6)
	runInnerLoop(t, d, testModel(g), g)

	for k := 1; k < d.MaxInner; k++ {
		if have, err := d.Records.ReadScalar(ScalarDelta, k); err != nil || have != d.delta[k] {
			t.Errorf("delta(%d): have %v (err %v), want %v", k, have, err, d.delta[k])
		}
	}
	for k := 1; k <= d.MaxInner; k++ {
		if have, err := d.Records.ReadScalar(ScalarBeta, k); err != nil || have != d.beta[k] {
			t.Errorf("beta(%d): have %v (err %v), want %v", k, have, err, d.beta[k])
		}
		if have, err := d.Records.ReadScalar(ScalarQG, k); err != nil || have != d.qg[k] {
			t.Errorf("qg(%d): have %v (err %v), want %v", k, have, err, d.qg[k])
		}
	}
}

// Re-orthogonalizing a vector that is already orthogonal to the whole
// stored basis must leave it unchanged apart from normalization: every
// projection coefficient is exactly zero.
func TestReorthogonalizeOrthogonal(t *testing.T) {
	g := &fourdvar.Grid{Nx: 4, Ny: 1}
	fs := fourdvar.FieldSet{}
	d := testDescent(6)
	d.reset()
	d.gnorm = 1

	// Two orthonormal basis records on disjoint grid points.
	q := fourdvar.NewControlVector(g, fs)
	q.Zeta.Elements[0] = 1
	if err := d.Records.WriteState(1, q); err != nil {
		t.Fatal(err)
	}
	q.Zeta.Elements[0], q.Zeta.Elements[1] = 0, 1
	if err := d.Records.WriteState(2, q); err != nil {
		t.Fatal(err)
	}

	s := NewState(g, fs)
	if err := d.Records.ReadState(1, s.GradZero); err != nil {
		t.Fatal(err)
	}
	// Orthogonal to both stored records by construction, norm 5.
	s.GradNew.Zeta.Elements[2], s.GradNew.Zeta.Elements[3] = 3, 4
	if err := d.lanczos(2, s); err != nil {
		t.Fatal(err)
	}
	if have := d.beta[3]; have != 5 {
		t.Errorf("beta(3) = %v, want 5", have)
	}
	if have := d.qg[3]; have != 0 {
		t.Errorf("qg(3) = %v, want 0", have)
	}
	want := []float64{0, 0, 0.6, 0.8}
	for i, w := range want {
		if have := s.GradNew.Zeta.Elements[i]; math.Abs(have-w) > 1e-15 {
			t.Errorf("zeta[%d] = %v, want %v", i, have, w)
		}
	}
}

func TestTridiagonalSolve(t *testing.T) {
	for _, k := range []int{3, 4, 5} {
		d := testDescent(10)
		d.reset()
		for i := 1; i <= k; i++ {
			d.delta[i] = 5 + float64(i)
			d.qg[i] = 0.3*float64(i) - 1
		}
		for i := 2; i <= k; i++ {
			d.beta[i] = 0.5 + 0.1*float64(i)
		}
		d.solveTridiagonal(k)

		// Compare against a dense solve.
		dense := mat.NewDense(k, k, nil)
		rhs := mat.NewVecDense(k, nil)
		for i := 0; i < k; i++ {
			dense.Set(i, i, d.delta[i+1])
			if i > 0 {
				dense.Set(i, i-1, d.beta[i+1])
				dense.Set(i-1, i, d.beta[i+1])
			}
			rhs.SetVec(i, -d.qg[i+1])
		}
		var want mat.VecDense
		if err := want.SolveVec(dense, rhs); err != nil {
			t.Fatal(err)
		}
		for i := 0; i < k; i++ {
			if have, w := d.u[i+1], want.AtVec(i); math.Abs(have-w) > 1e-12 {
				t.Errorf("k=%d: u(%d) = %v, want %v", k, i+1, have, w)
			}
		}
	}
}

// The reconstructed minimizer must equal the tridiagonal solution
// expanded in the stored basis.
func TestMinimizerReconstruction(t *testing.T) {
	g := testGrid()
	d := testDescent(6)
	s, res := runInnerLoop(t, d, testModel(g), g)

	if !res.Minimizer {
		t.Fatal("final result not flagged as minimizer")
	}
	want := fourdvar.NewControlVector(g, fourdvar.FieldSet{})
	q := fourdvar.NewControlVector(g, fourdvar.FieldSet{})
	for rec := 1; rec < d.MaxInner; rec++ {
		if err := d.Records.ReadState(rec, q); err != nil {
			t.Fatal(err)
		}
		want.AddScaled(want, q, 1, d.u[rec])
	}
	wf, hf := want.Fields(), s.TrialNew.Fields()
	for fi := range wf {
		for i := range wf[fi].Data.Elements {
			if have, w := hf[fi].Data.Elements[i], wf[fi].Data.Elements[i]; math.Abs(have-w) > 1e-14 {
				t.Fatalf("%s[%d]: have %v, want %v", wf[fi].Name, i, have, w)
			}
		}
	}

	// The minimizer must lower the synthetic cost below the starting
	// point.
	m := testModel(g)
	zero := fourdvar.NewControlVector(g, fourdvar.FieldSet{})
	j0, err := m.Cost(zero)
	if err != nil {
		t.Fatal(err)
	}
	jmin, err := m.Cost(s.TrialNew)
	if err != nil {
		t.Fatal(err)
	}
	if jmin >= j0 {
		t.Errorf("cost at minimizer %v not below cost at start %v", jmin, j0)
	}
}

func TestGradientReductionReported(t *testing.T) {
	g := testGrid()
	d := testDescent(6)
	_, res := runInnerLoop(t, d, testModel(g), g)
	if math.IsNaN(res.Reduction) || res.Reduction < 0 {
		t.Errorf("reduction = %v, want a non-negative number", res.Reduction)
	}
}

func TestNonConvexCostRejected(t *testing.T) {
	g := testGrid()
	m := testModel(g)
	m.Diag.Zeta.Elements[5] = -4000 // break convexity

	d := testDescent(6)
	s := NewState(g, fourdvar.FieldSet{})
	_, err := d.Run(m, s)
	if err == nil {
		t.Fatal("expected a degeneracy error")
	}
	var derr *fourdvar.DegeneracyError
	if !errors.As(err, &derr) {
		t.Fatalf("error %v is not a *DegeneracyError", err)
	}
	if derr.Quantity != "Delta" {
		t.Errorf("degenerate quantity = %q, want %q", derr.Quantity, "Delta")
	}
}

// Each Ritz pair must be an exact eigenpair of the tridiagonal matrix
// built from the recurrence coefficients.
func TestRitzPairs(t *testing.T) {
	g := testGrid()
	d := testDescent(6)
	d.Evecs = store.NewMemStore()
	d.ComputeEigs = true
	_, res := runInnerLoop(t, d, testModel(g), g)

	k := len(res.Ritz)
	if k != d.MaxInner-1 {
		t.Fatalf("have %d Ritz pairs, want %d", k, d.MaxInner-1)
	}
	for i := 1; i < k; i++ {
		if res.Ritz[i].Value < res.Ritz[i-1].Value {
			t.Errorf("Ritz values not ascending at %d: %v < %v", i, res.Ritz[i].Value, res.Ritz[i-1].Value)
		}
	}
	for pi, p := range res.Ritz {
		if p.Value < 0 {
			t.Errorf("negative Ritz value %v", p.Value)
		}
		for i := 0; i < k; i++ {
			have := d.delta[i+1] * p.Vector[i]
			if i > 0 {
				have += d.beta[i+1] * p.Vector[i-1]
			}
			if i < k-1 {
				have += d.beta[i+2] * p.Vector[i+1]
			}
			if want := p.Value * p.Vector[i]; math.Abs(have-want) > 1e-10 {
				t.Errorf("pair %d: (T v)(%d) = %v, want %v", pi, i, have, want)
			}
		}
	}
}

// With wide-open error bounds every Ritz pair converges, and the final
// iteration must materialize the full set of orthonormal eigenvectors
// in descending Ritz value order.
func TestHessianEigenvectors(t *testing.T) {
	g := testGrid()
	d := testDescent(6)
	d.Evecs = store.NewMemStore()
	d.ComputeEigs = true
	d.GradErr = 1e12
	d.HevecErr = 1e12
	_, res := runInnerLoop(t, d, testModel(g), g)

	k := d.MaxInner - 1
	nconv, err := d.Evecs.ReadScalar(ScalarNConv, 1)
	if err != nil {
		t.Fatal(err)
	}
	if int(nconv) != k {
		t.Fatalf("nconv = %v, want %d", nconv, k)
	}

	vecs := make([]*fourdvar.ControlVector, k+1)
	ritz := make([]float64, k+1)
	for rec := 1; rec <= k; rec++ {
		vecs[rec] = fourdvar.NewControlVector(g, fourdvar.FieldSet{})
		if err := d.Evecs.ReadState(rec, vecs[rec]); err != nil {
			t.Fatal(err)
		}
		if ritz[rec], err = d.Evecs.ReadScalar(ScalarRitz, rec); err != nil {
			t.Fatal(err)
		}
		if _, err := d.Evecs.ReadScalar(ScalarRitzErr, rec); err != nil {
			t.Fatal(err)
		}
	}
	// Record 1 holds the leading Ritz value; values descend from there
	// and match the analysis of the final iteration.
	for rec := 1; rec <= k; rec++ {
		if want := res.Ritz[k-rec].Value; ritz[rec] != want {
			t.Errorf("ritz(%d) = %v, want %v", rec, ritz[rec], want)
		}
		if rec > 1 && ritz[rec] > ritz[rec-1] {
			t.Errorf("ritz values not descending at record %d", rec)
		}
	}
	for i := 1; i <= k; i++ {
		for j := i; j <= k; j++ {
			dot := vecs[i].Dot(vecs[j]).Total
			want := 0.0
			if i == j {
				want = 1.0
			}
			if math.Abs(dot-want) > 1e-8 {
				t.Errorf("<v(%d), v(%d)> = %v, want %v", i, j, dot, want)
			}
		}
	}
}

func TestConfigErrors(t *testing.T) {
	g := testGrid()
	s := NewState(g, fourdvar.FieldSet{})
	cases := []*Descent{
		{StepSize: 1e-3, MaxInner: 5},                             // no store
		{Records: store.NewMemStore(), MaxInner: 5},               // no step size
		{Records: store.NewMemStore(), StepSize: 1e-3},            // no inner count
		{Records: store.NewMemStore(), StepSize: 1e-3, MaxInner: 5, ComputeEigs: true}, // no evec store
	}
	for i, d := range cases {
		d.Log = quietLog()
		if _, err := d.Step(0, s); err == nil {
			t.Errorf("case %d: expected a configuration error", i)
		}
	}
	d := testDescent(5)
	if _, err := d.Step(5, s); err == nil {
		t.Error("expected an out-of-range iteration error")
	}
}
