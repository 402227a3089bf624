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

// Package congrad minimizes the incremental variational cost function
// with a preconditioned conjugate-gradient algorithm formulated as a
// Lanczos recurrence. Each inner-loop iteration consumes one adjoint
// gradient, extends an orthonormal basis of gradient directions (kept
// orthonormal by full Gram-Schmidt re-orthogonalization against the
// persisted basis), and updates a small symmetric tridiagonal system
// whose solution reconstructs the cost-function minimizer in the basis
// span. The tridiagonal matrix is also the Lanczos projection of the
// cost-function Hessian, so its eigenpairs approximate the leading
// Hessian eigenpairs; converged ones are materialized in the full state
// space for preconditioning later assimilation cycles.
//
// The algorithm follows Fisher (1998): minimization without the
// adjoint of the tangent-linear approximation.
package congrad

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/oceanmodel/fourdvar"
	"github.com/oceanmodel/fourdvar/store"
)

// Names of the per-record scalar coefficients kept alongside the
// snapshots in the two stores.
const (
	// Lanczos basis records: tridiagonal diagonal, off-diagonal, and
	// gradient projection coefficients.
	ScalarDelta = "cg_delta"
	ScalarBeta  = "cg_beta"
	ScalarQG    = "cg_qg"

	// Hessian eigenvector records: the Ritz value and its error bound.
	ScalarRitz    = "ritz"
	ScalarRitzErr = "ritz_error"
)

// DefaultMaxIter is the default capacity of the coefficient history.
const DefaultMaxIter = 500

// Descent holds the configuration and the accumulated coefficient
// state of one inner-loop minimization. The coefficient arrays persist
// across Step calls within a cycle and are reset when Step is called
// with iteration zero, so a single Descent can drive successive outer
// loops.
//
// Descent is not safe for concurrent use; the minimization is
// inherently sequential.
type Descent struct {
	// Records stores the orthonormal Lanczos basis, one normalized
	// gradient per record.
	Records store.Interface

	// Evecs receives the converged Hessian eigenvectors on the final
	// inner iteration. It may be nil when ComputeEigs is false.
	Evecs store.Interface

	// StepSize is the fixed step length tau used both for the
	// finite-difference Hessian estimate and for the trial state
	// increment.
	StepSize float64

	// MaxInner is the number of inner-loop iterations per cycle. The
	// minimizer is reconstructed on iteration MaxInner-1.
	MaxInner int

	// GradErr is the relative error bound below which a Ritz pair is
	// accepted as a converged Hessian eigenpair during the iteration.
	GradErr float64

	// HevecErr is the relative error bound used on the final inner
	// iteration to select which eigenvectors are materialized.
	HevecErr float64

	// ComputeEigs enables the Ritz eigenpair analysis of the
	// tridiagonal system and the eigenvector materialization.
	ComputeEigs bool

	// MaxIter caps the coefficient history. Zero means DefaultMaxIter.
	MaxIter int

	Log logrus.FieldLogger

	// Per-cycle coefficient state, reset at iteration zero. The slices
	// use 1-based indexing to match the record numbering: delta[k] and
	// beta[k] are the tridiagonal coefficients attached to basis
	// record k, qg[k] is the initial-gradient projection onto record
	// k, and u[k] is the solution of the tridiagonal system.
	tauK   float64
	alphaK float64
	gnorm  float64 // norm of the iteration-zero gradient
	theta1 float64 // leading converged Ritz value
	ingood int     // converged Ritz pair count
	delta  []float64
	beta   []float64
	qg     []float64
	u      []float64
	gam    []float64 // tridiagonal factorization scratch
}

// State holds the working vectors of one minimization cycle. The four
// exported slots are the interface to the driving model; the rest are
// internal scratch. Allocate once with NewState and reuse across
// iterations and cycles.
type State struct {
	// GradZero is the starting vector of the cycle: the normalized
	// initial gradient q(1). The driver copies GradNew here after
	// iteration zero; it stays fixed for the rest of the cycle.
	GradZero *fourdvar.ControlVector

	// GradNew carries the raw adjoint gradient into Step and the new
	// normalized basis vector out of it.
	GradNew *fourdvar.ControlVector

	// TrialOld is the background-gradient contribution from the
	// tangent-linear run. It is zero in the incremental formulation
	// where each cycle starts from the background state.
	TrialOld *fourdvar.ControlVector

	// TrialNew receives the next trial increment: the step along the
	// new direction, or the reconstructed minimizer on the final inner
	// iteration.
	TrialNew *fourdvar.ControlVector

	// Dir is the descent direction derived from the new basis vector.
	Dir *fourdvar.ControlVector

	work *fourdvar.ControlVector // basis-record read buffer
	acc  *fourdvar.ControlVector // accumulator for diagnostics and reconstruction
}

// NewState allocates the working vectors for the given grid and field
// set.
func NewState(g *fourdvar.Grid, fs fourdvar.FieldSet) *State {
	return &State{
		GradZero: fourdvar.NewControlVector(g, fs),
		GradNew:  fourdvar.NewControlVector(g, fs),
		TrialOld: fourdvar.NewControlVector(g, fs),
		TrialNew: fourdvar.NewControlVector(g, fs),
		Dir:      fourdvar.NewControlVector(g, fs),
		work:     fourdvar.NewControlVector(g, fs),
		acc:      fourdvar.NewControlVector(g, fs),
	}
}

// A RitzPair is one approximate eigenpair of the cost-function Hessian
// obtained from the tridiagonal system at the current iteration.
type RitzPair struct {
	// Value is the Ritz value (approximate eigenvalue). Ritz values of
	// the preconditioned Hessian are bounded below by one; a negative
	// value indicates a non-convex cost function and aborts the
	// minimization before this struct is ever built.
	Value float64

	// ErrorBound is the a-posteriori accuracy bound |beta(k+1) v(k)|.
	// On the final inner iteration it is normalized by the Ritz value.
	ErrorBound float64

	// Vector is the eigenvector of the tridiagonal matrix, expressed
	// in the Lanczos basis (length k at iteration k).
	Vector []float64
}

// Converged reports whether the pair passes the error bound test with
// the given limit.
func (r RitzPair) Converged(limit float64) bool { return r.ErrorBound <= limit }

// Result reports the outcome of one Step.
type Result struct {
	// Iter echoes the inner iteration that produced this result.
	Iter int

	// Tau and Alpha are the finite-difference and line-search step
	// sizes used this iteration (equal under the fixed-step policy).
	Tau, Alpha float64

	// GradNorm is the norm of the iteration-zero gradient.
	GradNorm float64

	// Delta, Beta and QG are the coefficients attached to the basis
	// this iteration: the curvature estimate Delta(k), the new
	// off-diagonal Beta(k+1), and the gradient projection QG(k+1).
	Delta, Beta, QG float64

	// Reduction estimates the gradient-norm reduction achieved so far,
	// as a fraction of GradNorm. Available from iteration two on.
	Reduction float64

	// Ritz holds the Ritz analysis of the tridiagonal system, in
	// ascending Value order, when eigenpair computation is enabled.
	Ritz []RitzPair

	// Converged is the number of Ritz pairs passing the error bound.
	Converged int

	// Minimizer reports that this was the final inner iteration and
	// TrialNew holds the reconstructed minimizer rather than a trial
	// step.
	Minimizer bool
}

// Step performs inner-loop iteration iter: it converts the raw adjoint
// gradient in s.GradNew into the next orthonormal basis vector,
// persists it as record iter+1, updates the tridiagonal system, and
// fills s.TrialNew with the next trial increment.
//
// On iteration zero the raw gradient is the gradient of the cost
// function at the first trial state and the coefficient history is
// reset. On later iterations Step first recovers the Hessian-vector
// product from the gradient change by finite differences.
func (d *Descent) Step(iter int, s *State) (*Result, error) {
	if err := d.check(iter); err != nil {
		return nil, err
	}
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}
	if iter == 0 {
		d.reset()
	}
	d.tauK = d.StepSize
	d.alphaK = d.tauK

	res := &Result{Iter: iter, Tau: d.tauK, Alpha: d.alphaK}

	if iter > 0 {
		if err := d.estimateHessian(iter, s); err != nil {
			return nil, err
		}
		d.Log.WithFields(logrus.Fields{
			"iteration": iter,
			"delta":     d.delta[iter],
		}).Debug("congrad: Hessian curvature estimate")
		if d.delta[iter] <= 0 {
			return nil, &fourdvar.DegeneracyError{Iter: iter, Quantity: "Delta", Value: d.delta[iter]}
		}
		if err := d.Records.WriteScalar(ScalarDelta, iter, d.delta[iter]); err != nil {
			return nil, err
		}
	}

	if err := d.lanczos(iter, s); err != nil {
		return nil, err
	}
	if iter == 0 {
		d.Log.WithField("gnorm", d.gnorm).Info("congrad: initial gradient norm")
	}
	res.GradNorm = d.gnorm
	res.Delta = d.delta[iter]
	res.Beta = d.beta[iter+1]
	res.QG = d.qg[iter+1]

	// The descent direction is the new basis vector itself; the
	// conjugacy is carried by the tridiagonal system instead of by a
	// direction update.
	s.Dir.CopyFrom(s.GradNew)

	if iter > 1 {
		d.solveTridiagonal(iter)
		red, err := d.gradientReduction(iter, s)
		if err != nil {
			return nil, err
		}
		res.Reduction = red
		d.Log.WithFields(logrus.Fields{
			"iteration": iter,
			"reduction": red,
		}).Info("congrad: estimated gradient-norm reduction")
	}

	if d.ComputeEigs && iter > 0 {
		pairs, err := d.ritzAnalysis(iter, s)
		if err != nil {
			return nil, err
		}
		res.Ritz = pairs
		res.Converged = d.ingood
	}

	if err := d.composeTrial(iter, s); err != nil {
		return nil, err
	}
	res.Minimizer = iter == d.MaxInner-1
	return res, nil
}

// check validates the configuration and the iteration index.
func (d *Descent) check(iter int) error {
	if d.Records == nil {
		return fmt.Errorf("congrad: no basis record store configured")
	}
	if d.StepSize <= 0 {
		return fmt.Errorf("congrad: step size must be positive; have %g", d.StepSize)
	}
	if d.MaxInner < 2 {
		return fmt.Errorf("congrad: need at least 2 inner iterations; have %d", d.MaxInner)
	}
	if d.ComputeEigs && d.Evecs == nil {
		return fmt.Errorf("congrad: eigenpair computation enabled without an eigenvector store")
	}
	max := d.MaxIter
	if max == 0 {
		max = DefaultMaxIter
	}
	if iter < 0 || iter >= d.MaxInner || iter >= max {
		return fmt.Errorf("congrad: inner iteration %d out of range [0,%d)", iter, min(d.MaxInner, max))
	}
	return nil
}

// reset clears the per-cycle coefficient state.
func (d *Descent) reset() {
	n := d.MaxIter
	if n == 0 {
		n = DefaultMaxIter
	}
	n += 2
	d.gnorm = 0
	d.theta1 = 0
	d.ingood = 0
	d.delta = make([]float64, n)
	d.beta = make([]float64, n)
	d.qg = make([]float64, n)
	d.u = make([]float64, n)
	d.gam = make([]float64, n)
}

// LeadingRitz returns the leading converged Ritz value seen so far in
// the cycle, or zero if none has converged yet.
func (d *Descent) LeadingRitz() float64 { return d.theta1 }
