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

	"github.com/sirupsen/logrus"

	"github.com/oceanmodel/fourdvar"
)

// Model is the gradient oracle driven by the inner loop: the composite
// tangent-linear/adjoint integration that maps a trial increment to the
// cost-function gradient at that increment. Implementations write the
// gradient into grad and must not retain either vector.
type Model interface {
	Gradient(trial, grad *fourdvar.ControlVector) error
}

// Run drives one complete inner loop: MaxInner gradient evaluations
// alternating with Step calls. On return s.TrialNew holds the
// reconstructed minimizer and the result of the final iteration is
// returned. The background-gradient contribution in s.TrialOld is
// cleared at the start; models that carry one can implement Gradient
// to fill it on the first call.
func (d *Descent) Run(m Model, s *State) (*Result, error) {
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}
	s.TrialOld.Init(0)
	s.TrialNew.Init(0)

	var last *Result
	for iter := 0; iter < d.MaxInner; iter++ {
		if err := m.Gradient(s.TrialNew, s.GradNew); err != nil {
			return nil, fmt.Errorf("congrad: gradient evaluation at inner iteration %d: %w", iter, err)
		}
		res, err := d.Step(iter, s)
		if err != nil {
			return nil, err
		}
		if iter == 0 {
			// Keep the starting vector for the finite-difference
			// Hessian estimates and the gradient projections.
			s.GradZero.CopyFrom(s.GradNew)
		}
		last = res
	}
	d.Log.WithFields(logrus.Fields{
		"iterations": d.MaxInner,
		"reduction":  last.Reduction,
		"converged":  last.Converged,
	}).Info("congrad: inner loop finished")
	return last, nil
}
