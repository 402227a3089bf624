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
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/oceanmodel/fourdvar"
)

// ScalarNConv is the record-1 scalar in the eigenvector store holding
// the number of converged eigenvectors written.
const ScalarNConv = "nconv"

// ritzAnalysis computes the eigenpairs of the tridiagonal matrix T(k).
// Because T(k) is the Lanczos projection of the cost-function Hessian,
// its eigenvalues (Ritz values) approximate Hessian eigenvalues with
// a-posteriori error bound |beta(k+1) v(k,i)| for eigenvector column
// i. The analysis is repeated every iteration so convergence of the
// leading eigenpairs can be monitored; on the final inner iteration
// the converged eigenvectors are materialized in the full state space.
//
// The returned pairs are in ascending Ritz value order.
func (d *Descent) ritzAnalysis(k int, s *State) ([]RitzPair, error) {
	t := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		t.SetSym(i, i, d.delta[i+1])
		if i < k-1 {
			t.SetSym(i, i+1, d.beta[i+2])
		}
	}
	var es mat.EigenSym
	if !es.Factorize(t, true) {
		return nil, fmt.Errorf("congrad: tridiagonal eigendecomposition failed at inner iteration %d", k)
	}
	ritz := es.Values(nil) // ascending
	vecs := mat.NewDense(k, k, nil)
	es.VectorsTo(vecs)

	for _, v := range ritz {
		if v < 0 {
			return nil, &fourdvar.DegeneracyError{Iter: k, Quantity: "Ritz value", Value: v}
		}
	}

	bnds := make([]float64, k)
	for i := range bnds {
		bnds[i] = math.Abs(d.beta[k+1] * vecs.At(k-1, i))
	}
	bndlm := d.GradErr * ritz[k-1]
	d.ingood = 0
	for i := range ritz {
		if bnds[i] <= bndlm {
			d.ingood++
		}
	}
	// Leading converged Ritz value, kept across iterations so the
	// driver can watch the largest Hessian eigenvalue stabilize.
	for i := k - 1; i >= 0; i-- {
		if bnds[i] <= bndlm {
			d.theta1 = ritz[i]
			break
		}
	}
	d.Log.WithFields(logrus.Fields{
		"iteration": k,
		"converged": d.ingood,
		"leading":   d.theta1,
	}).Debug("congrad: Ritz eigenpair analysis")

	pairs := make([]RitzPair, k)
	for i := range pairs {
		vec := make([]float64, k)
		mat.Col(vec, i, vecs)
		pairs[i] = RitzPair{Value: ritz[i], ErrorBound: bnds[i], Vector: vec}
	}

	if k == d.MaxInner-1 {
		// Switch to the relative bound for eigenvector selection.
		rel := make([]float64, k)
		for i := range rel {
			rel[i] = bnds[i] / ritz[i]
		}
		if err := d.hessianEvecs(k, s, ritz, rel, vecs); err != nil {
			return nil, err
		}
	}
	return pairs, nil
}

// hessianEvecs materializes the converged Hessian eigenvectors in the
// full state space by projecting the stored Lanczos basis through the
// tridiagonal eigenvectors, then orthonormalizes the result and writes
// it to the eigenvector store, one eigenvector per record in
// descending Ritz value order.
//
// The second orthonormalization pass compensates for the loss of
// orthogonality the projection inherits from the basis; it runs over
// the already-written records so the store, not memory, bounds the
// working set.
func (d *Descent) hessianEvecs(k int, s *State, ritz, bnds []float64, vecs *mat.Dense) error {
	var theta, errs []float64
	ngood := 0
	for nvec := k - 1; nvec >= 0; nvec-- {
		if bnds[nvec] > d.HevecErr {
			continue
		}
		ngood++
		theta = append(theta, ritz[nvec])
		errs = append(errs, bnds[nvec])

		s.acc.Init(0)
		for rec := 1; rec <= k; rec++ {
			if err := d.Records.ReadState(rec, s.work); err != nil {
				return err
			}
			s.acc.AddScaled(s.acc, s.work, 1, vecs.At(rec-1, nvec))
		}
		if err := d.Evecs.WriteState(ngood, s.acc); err != nil {
			return err
		}
	}
	if ngood == 0 {
		d.Log.Warn("congrad: no converged Hessian eigenvectors to write")
		return nil
	}
	if err := d.Evecs.WriteScalar(ScalarNConv, 1, float64(ngood)); err != nil {
		return err
	}

	for nvec := ngood; nvec >= 1; nvec-- {
		if err := d.Evecs.ReadState(nvec, s.acc); err != nil {
			return err
		}
		for rec := 1; rec < nvec; rec++ {
			if err := d.Evecs.ReadState(rec, s.work); err != nil {
				return err
			}
			proj := s.acc.Dot(s.work).Total
			s.acc.AddScaled(s.acc, s.work, 1, -proj)
		}
		norm := math.Sqrt(s.acc.Dot(s.acc).Total)
		if norm <= 0 || math.IsNaN(norm) {
			return &fourdvar.DegeneracyError{Iter: k, Quantity: "Hessian eigenvector norm", Value: norm}
		}
		s.acc.Scale(s.acc, 1/norm)
		if err := d.Evecs.WriteState(nvec, s.acc); err != nil {
			return err
		}
		if err := d.Evecs.WriteScalar(ScalarRitz, nvec, theta[nvec-1]); err != nil {
			return err
		}
		if err := d.Evecs.WriteScalar(ScalarRitzErr, nvec, errs[nvec-1]); err != nil {
			return err
		}
	}
	d.Log.WithField("count", ngood).Info("congrad: wrote converged Hessian eigenvectors")
	return nil
}
