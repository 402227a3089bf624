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

// Package store persists indexed control-vector snapshots: the Lanczos
// basis built up by the minimization in package congrad, and the converged
// Hessian eigenvectors it produces for preconditioning later assimilation
// cycles.
//
// Records are addressed by positive integers 1..N. Within an assimilation
// cycle a record is written once and then read back many times: the full
// re-orthogonalization of the Lanczos recurrence revisits the entire
// iteration history every iteration, so the store must never assume the
// basis fits in memory. FileStore keeps it in NetCDF files; MemStore is an
// in-memory backend for tests and small problems.
package store

import (
	"fmt"

	"github.com/oceanmodel/fourdvar"
)

// Interface is the record-addressable snapshot store consumed by the
// minimization. Besides the state snapshot itself, each record carries
// named per-record scalar coefficients (the tridiagonal recurrence
// coefficients for Lanczos records; the Ritz value and error bound for
// Hessian eigenvector records).
type Interface interface {
	// WriteState stores the snapshot at record rec (1-based).
	WriteState(rec int, v *fourdvar.ControlVector) error
	// ReadState reads record rec into the preallocated vector v.
	ReadState(rec int, v *fourdvar.ControlVector) error
	// WriteScalar stores the named per-record coefficient at record rec.
	WriteScalar(name string, rec int, val float64) error
	// ReadScalar reads the named per-record coefficient at record rec.
	ReadScalar(name string, rec int) (float64, error)
	// Close releases any underlying resources.
	Close() error
}

// A StorageError is a failure to read or write a persisted record. Every
// storage failure is fatal to the minimization: a missing or unreadable
// record invalidates the re-orthogonalization history, so call sites
// propagate it to the driver rather than attempting recovery.
type StorageError struct {
	Record int    // the requested record
	File   string // the backing file, if any
	Var    string // the variable being accessed, if known
	Err    error  // the underlying failure
}

func (e *StorageError) Error() string {
	s := fmt.Sprintf("store: record %d", e.Record)
	if e.Var != "" {
		s += fmt.Sprintf(", variable %q", e.Var)
	}
	if e.File != "" {
		s += fmt.Sprintf(", file %s", e.File)
	}
	return fmt.Sprintf("%s: %v", s, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
