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
	"runtime"
	"sync"
)

// The operations in this file are the primitive state-vector algebra that
// the Lanczos/conjugate-gradient minimization is written in terms of.
// Every operation applies the land/sea mask of each field's staggered
// grid, so land points are exactly zero in every output regardless of the
// input values there. All operations tolerate the destination aliasing a
// source operand.

// DotProduct is the result of a global masked dot product: the per-field
// partial sums in canonical field order, plus their total.
type DotProduct struct {
	Total  float64
	Fields []FieldDot
}

// FieldDot is the dot-product contribution of a single field.
type FieldDot struct {
	Name  string
	Value float64
}

// parRange runs f concurrently over [0,n) split into contiguous chunks,
// one per processor.
func parRange(n int, f func(lo, hi int)) {
	nprocs := runtime.GOMAXPROCS(0)
	if nprocs > n {
		nprocs = n
	}
	if nprocs <= 1 {
		f(0, n)
		return
	}
	var wg sync.WaitGroup
	wg.Add(nprocs)
	chunk := (n + nprocs - 1) / nprocs
	for pp := 0; pp < nprocs; pp++ {
		go func(lo int) {
			hi := lo + chunk
			if hi > n {
				hi = n
			}
			if lo < hi {
				f(lo, hi)
			}
			wg.Done()
		}(pp * chunk)
	}
	wg.Wait()
}

// Scale sets v = factor * src.
func (v *ControlVector) Scale(src *ControlVector, factor float64) {
	v.assertCompatible(src)
	plane := v.Grid.TotalX() * v.Grid.TotalY()
	dd, ss := v.Fields(), src.Fields()
	for fi := range dd {
		dst, s := dd[fi].Data.Elements, ss[fi].Data.Elements
		m := v.Grid.Mask(dd[fi].Kind)
		parRange(len(dst), func(lo, hi int) {
			if m == nil {
				for i := lo; i < hi; i++ {
					dst[i] = factor * s[i]
				}
			} else {
				for i := lo; i < hi; i++ {
					dst[i] = factor * s[i] * m.Elements[i%plane]
				}
			}
		})
	}
}

// AddScaled sets v = fa*a + fb*b. The destination may alias either
// operand; this is the accumulation primitive used by the Lanczos
// recurrence and the Gram-Schmidt re-orthogonalization.
func (v *ControlVector) AddScaled(a, b *ControlVector, fa, fb float64) {
	v.assertCompatible(a)
	v.assertCompatible(b)
	plane := v.Grid.TotalX() * v.Grid.TotalY()
	dd, aa, bb := v.Fields(), a.Fields(), b.Fields()
	for fi := range dd {
		dst, as, bs := dd[fi].Data.Elements, aa[fi].Data.Elements, bb[fi].Data.Elements
		m := v.Grid.Mask(dd[fi].Kind)
		parRange(len(dst), func(lo, hi int) {
			if m == nil {
				for i := lo; i < hi; i++ {
					dst[i] = fa*as[i] + fb*bs[i]
				}
			} else {
				for i := lo; i < hi; i++ {
					dst[i] = (fa*as[i] + fb*bs[i]) * m.Elements[i%plane]
				}
			}
		})
	}
}

// Init fills every active field with the constant c (masked, so land
// points stay zero). The minimization uses Init(0) to clear accumulation
// buffers.
func (v *ControlVector) Init(c float64) {
	plane := v.Grid.TotalX() * v.Grid.TotalY()
	for _, f := range v.Fields() {
		dst := f.Data.Elements
		m := v.Grid.Mask(f.Kind)
		parRange(len(dst), func(lo, hi int) {
			if m == nil {
				for i := lo; i < hi; i++ {
					dst[i] = c
				}
			} else {
				for i := lo; i < hi; i++ {
					dst[i] = c * m.Elements[i%plane]
				}
			}
		})
	}
}

// CopyFrom sets v = src.
func (v *ControlVector) CopyFrom(src *ControlVector) {
	v.Scale(src, 1)
}

// Dot computes the global dot product <v, o> over the active fields,
// excluding halo points. Masked points contribute exactly zero.
//
// The summation order is fixed: each grid row is summed left to right,
// row partial sums are combined in row order, and fields are combined in
// canonical order. Only the row sums are computed concurrently, so the
// result is bit-identical for any number of worker goroutines. This is
// the synchronization point of the minimization; every worker must reach
// it, and its result must not depend on the domain decomposition.
func (v *ControlVector) Dot(o *ControlVector) *DotProduct {
	v.assertCompatible(o)
	g := v.Grid
	nxTot := g.TotalX()
	plane := nxTot * g.TotalY()
	dp := &DotProduct{}
	vv, oo := v.Fields(), o.Fields()
	for fi := range vv {
		as, bs := vv[fi].Data.Elements, oo[fi].Data.Elements
		m := g.Mask(vv[fi].Kind)
		nlead := len(as) / plane // horizontal planes (depth × tracer)
		nrows := nlead * g.Ny
		rowsum := make([]float64, nrows)
		parRange(nrows, func(lo, hi int) {
			for r := lo; r < hi; r++ {
				lead, j := r/g.Ny, r%g.Ny
				off := lead*plane + (g.Halo+j)*nxTot + g.Halo
				moff := (g.Halo+j)*nxTot + g.Halo
				var s float64
				if m == nil {
					for i := 0; i < g.Nx; i++ {
						s += as[off+i] * bs[off+i]
					}
				} else {
					for i := 0; i < g.Nx; i++ {
						s += as[off+i] * bs[off+i] * m.Elements[moff+i]
					}
				}
				rowsum[r] = s
			}
		})
		var fdot float64
		for _, s := range rowsum {
			fdot += s
		}
		dp.Fields = append(dp.Fields, FieldDot{Name: vv[fi].Name, Value: fdot})
		dp.Total += fdot
	}
	return dp
}
