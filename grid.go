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

// MaskKind selects which staggered grid a validity mask applies to.
// Scalar quantities (free surface, tracers, surface fluxes) live on rho
// points; the velocity components live on the u and v points of the
// Arakawa C-grid.
type MaskKind int

const (
	// RhoPoints are cell centers.
	RhoPoints MaskKind = iota
	// UPoints are east-west cell faces.
	UPoints
	// VPoints are north-south cell faces.
	VPoints
)

// Grid describes the structured terrain-following model grid that the
// assimilation control vector is defined on. Nx, Ny, and Nz are the
// interior dimensions; Halo is the width of the ghost-cell margin carried
// on each horizontal side. Halo exchange itself is the responsibility of
// the model driver; this package only needs to know the margin width so
// that global reductions can exclude it.
type Grid struct {
	Nx, Ny, Nz int
	Halo       int

	// NTracers is the number of active tracers (temperature, salinity,
	// and any passive tracers being adjusted).
	NTracers int

	// Rmask, Umask, and Vmask hold the land/sea masks on the three
	// staggered grids, dimensioned [TotalY][TotalX] with 1 at water
	// points and 0 at land points. A nil mask means every point is
	// active.
	Rmask, Umask, Vmask *sparse.DenseArray
}

// TotalX is the array extent in the x direction, including halo.
func (g *Grid) TotalX() int { return g.Nx + 2*g.Halo }

// TotalY is the array extent in the y direction, including halo.
func (g *Grid) TotalY() int { return g.Ny + 2*g.Halo }

// Mask returns the validity mask for the given staggered grid, or nil if
// every point on that grid is active.
func (g *Grid) Mask(kind MaskKind) *sparse.DenseArray {
	switch kind {
	case RhoPoints:
		return g.Rmask
	case UPoints:
		return g.Umask
	case VPoints:
		return g.Vmask
	default:
		panic(fmt.Sprintf("fourdvar: unknown mask kind %d", kind))
	}
}

// checkMask reports whether a present mask is correctly dimensioned.
func (g *Grid) checkMask(kind MaskKind) error {
	m := g.Mask(kind)
	if m == nil {
		return nil
	}
	if len(m.Shape) != 2 || m.Shape[0] != g.TotalY() || m.Shape[1] != g.TotalX() {
		return fmt.Errorf("fourdvar: mask kind %d has shape %v; want [%d %d]",
			kind, m.Shape, g.TotalY(), g.TotalX())
	}
	return nil
}

// Check validates the grid descriptor. It is called when allocating
// control vectors so that any dimension problem surfaces before the
// minimization starts.
func (g *Grid) Check() error {
	if g.Nx < 1 || g.Ny < 1 {
		return fmt.Errorf("fourdvar: grid has non-positive horizontal dimensions %d×%d", g.Nx, g.Ny)
	}
	if g.Halo < 0 {
		return fmt.Errorf("fourdvar: grid has negative halo width %d", g.Halo)
	}
	for _, kind := range []MaskKind{RhoPoints, UPoints, VPoints} {
		if err := g.checkMask(kind); err != nil {
			return err
		}
	}
	return nil
}
