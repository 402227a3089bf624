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

package store

import (
	"errors"
	"fmt"

	"github.com/ctessum/sparse"
	"github.com/oceanmodel/fourdvar"
)

// MemStore is an in-memory snapshot store. It is the storage backend used
// in tests and is suitable for production runs whose basis fits in memory.
type MemStore struct {
	states  map[int]map[string][]float64
	scalars map[string]map[int]float64
}

var _ Interface = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		states:  make(map[int]map[string][]float64),
		scalars: make(map[string]map[int]float64),
	}
}

// forEachField visits the active fields of v in canonical order.
func forEachField(v *fourdvar.ControlVector, f func(name string, data *sparse.DenseArray)) {
	for _, fd := range v.Fields() {
		f(fd.Name, fd.Data)
	}
}

// WriteState stores a deep copy of v at record rec.
func (m *MemStore) WriteState(rec int, v *fourdvar.ControlVector) error {
	if rec < 1 {
		return &StorageError{Record: rec, Err: errors.New("record indices are 1-based")}
	}
	cp := make(map[string][]float64)
	forEachField(v, func(name string, data *sparse.DenseArray) {
		buf := make([]float64, len(data.Elements))
		copy(buf, data.Elements)
		cp[name] = buf
	})
	m.states[rec] = cp
	return nil
}

// ReadState reads record rec into v.
func (m *MemStore) ReadState(rec int, v *fourdvar.ControlVector) error {
	st, ok := m.states[rec]
	if !ok {
		return &StorageError{Record: rec, Err: errors.New("no such record")}
	}
	var err error
	forEachField(v, func(name string, data *sparse.DenseArray) {
		buf, ok := st[name]
		if !ok || len(buf) != len(data.Elements) {
			err = &StorageError{Record: rec, Var: name,
				Err: fmt.Errorf("stored field has %d elements; want %d", len(buf), len(data.Elements))}
			return
		}
		copy(data.Elements, buf)
	})
	return err
}

// WriteScalar stores a named per-record coefficient.
func (m *MemStore) WriteScalar(name string, rec int, val float64) error {
	if m.scalars[name] == nil {
		m.scalars[name] = make(map[int]float64)
	}
	m.scalars[name][rec] = val
	return nil
}

// ReadScalar reads a named per-record coefficient.
func (m *MemStore) ReadScalar(name string, rec int) (float64, error) {
	vals, ok := m.scalars[name]
	if !ok {
		return 0, &StorageError{Record: rec, Var: name, Err: errors.New("no such variable")}
	}
	v, ok := vals[rec]
	if !ok {
		return 0, &StorageError{Record: rec, Var: name, Err: errors.New("no such record")}
	}
	return v, nil
}

// Close is a no-op for the in-memory store.
func (m *MemStore) Close() error { return nil }
