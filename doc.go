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

// Package fourdvar provides the state-vector machinery for incremental
// 4D-Var data assimilation in a regional ocean model: the control vector
// spanning the adjustable physical fields (free surface, momentum, tracers,
// and optional surface forcing corrections) on a structured
// terrain-following grid, together with the masked array operations and
// deterministic global reductions that the conjugate-gradient minimization
// in package congrad is built on.
//
// The physical model itself (nonlinear, tangent-linear, and adjoint
// time stepping) is not part of this module; it enters only through the
// congrad.Model interface.
package fourdvar

// Version gives the OceanVar version number.
const Version = "0.1.0"
