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

package fourdvar

import (
	"fmt"

	"github.com/ctessum/sparse"
)

// FieldSet is the runtime capability descriptor that determines which
// physical fields are part of the assimilation control vector. The
// active set is fixed for the duration of a run and must be identical
// across every stored snapshot.
type FieldSet struct {
	// Solve3D selects the baroclinic configuration: 3D momentum plus
	// tracers instead of barotropic (depth-averaged) momentum.
	Solve3D bool

	// AdjustWindStress adds the surface wind-stress corrections to the
	// control vector.
	AdjustWindStress bool

	// AdjustTracerFlux adds the surface tracer-flux corrections to the
	// control vector. Only meaningful when Solve3D is set.
	AdjustTracerFlux bool
}

// ControlVector is the assimilation control vector: the aggregate of
// adjustable model fields on the structured grid. Which of the field
// arrays are allocated is determined by the FieldSet; inactive fields
// are nil.
//
// All array shapes include the halo margin. The trailing two dimensions
// of every field are [TotalY][TotalX].
type ControlVector struct {
	Grid *Grid
	FS   FieldSet

	Zeta       *sparse.DenseArray // free surface [y][x]
	Ubar, Vbar *sparse.DenseArray // 2D momentum [y][x] (!Solve3D)
	U, V       *sparse.DenseArray // 3D momentum [z][y][x] (Solve3D)
	Tracers    *sparse.DenseArray // tracers [tracer][z][y][x] (Solve3D)
	SuStr      *sparse.DenseArray // surface u-stress correction [y][x]
	SvStr      *sparse.DenseArray // surface v-stress correction [y][x]
	STFlux     *sparse.DenseArray // surface tracer flux correction [tracer][y][x]
}

// A Field pairs a named data array with the staggered grid its validity
// mask lives on. The mask applies pointwise in the horizontal and is
// broadcast over any leading (depth, tracer) dimensions.
type Field struct {
	Name string
	Data *sparse.DenseArray
	Kind MaskKind
}

// Fields enumerates the active fields in canonical order. The order is
// fixed: it determines both the per-field dot-product layout and the
// variable order in persisted snapshots.
func (v *ControlVector) Fields() []Field {
	ff := []Field{{"zeta", v.Zeta, RhoPoints}}
	if !v.FS.Solve3D {
		ff = append(ff,
			Field{"ubar", v.Ubar, UPoints},
			Field{"vbar", v.Vbar, VPoints})
	} else {
		ff = append(ff,
			Field{"u", v.U, UPoints},
			Field{"v", v.V, VPoints},
			Field{"tracer", v.Tracers, RhoPoints})
	}
	if v.FS.AdjustWindStress {
		ff = append(ff,
			Field{"sustr", v.SuStr, UPoints},
			Field{"svstr", v.SvStr, VPoints})
	}
	if v.FS.Solve3D && v.FS.AdjustTracerFlux {
		ff = append(ff, Field{"stflux", v.STFlux, RhoPoints})
	}
	return ff
}

// NewControlVector allocates a zero-valued control vector for the given
// grid and field set. It panics if the grid descriptor is invalid.
func NewControlVector(g *Grid, fs FieldSet) *ControlVector {
	if err := g.Check(); err != nil {
		panic(err)
	}
	nx, ny := g.TotalX(), g.TotalY()
	v := &ControlVector{Grid: g, FS: fs}
	v.Zeta = sparse.ZerosDense(ny, nx)
	if !fs.Solve3D {
		v.Ubar = sparse.ZerosDense(ny, nx)
		v.Vbar = sparse.ZerosDense(ny, nx)
	} else {
		if g.Nz < 1 {
			panic(fmt.Sprintf("fourdvar: 3D field set requires Nz >= 1; have %d", g.Nz))
		}
		if g.NTracers < 1 {
			panic(fmt.Sprintf("fourdvar: 3D field set requires NTracers >= 1; have %d", g.NTracers))
		}
		v.U = sparse.ZerosDense(g.Nz, ny, nx)
		v.V = sparse.ZerosDense(g.Nz, ny, nx)
		v.Tracers = sparse.ZerosDense(g.NTracers, g.Nz, ny, nx)
	}
	if fs.AdjustWindStress {
		v.SuStr = sparse.ZerosDense(ny, nx)
		v.SvStr = sparse.ZerosDense(ny, nx)
	}
	if fs.Solve3D && fs.AdjustTracerFlux {
		v.STFlux = sparse.ZerosDense(g.NTracers, ny, nx)
	}
	return v
}

// assertCompatible panics if o does not share v's grid dimensions and
// field set. A mismatch is a programming-contract violation: the field
// set is fixed per run, so no recovery is possible.
func (v *ControlVector) assertCompatible(o *ControlVector) {
	if o == nil {
		panic("fourdvar: nil control vector operand")
	}
	if v.FS != o.FS {
		panic(fmt.Sprintf("fourdvar: mismatched field sets: %+v != %+v", v.FS, o.FS))
	}
	if v.Grid.Nx != o.Grid.Nx || v.Grid.Ny != o.Grid.Ny ||
		v.Grid.Nz != o.Grid.Nz || v.Grid.Halo != o.Grid.Halo ||
		v.Grid.NTracers != o.Grid.NTracers {
		panic(fmt.Sprintf("fourdvar: mismatched grids: %+v != %+v", *v.Grid, *o.Grid))
	}
}
