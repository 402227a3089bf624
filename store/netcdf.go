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
	"os"
	"path/filepath"
	"strings"

	"github.com/ctessum/cdf"
	"github.com/oceanmodel/fourdvar"
)

// FileStore is a NetCDF-backed snapshot store. Each active field of the
// control vector becomes one NetCDF variable with a leading record
// dimension; per-record scalar coefficients become one-dimensional record
// variables.
//
// When RecsPerFile is zero all records go to a single file with an
// unlimited record dimension. When positive, records are split across
// numbered files basename_NNN.ext holding RecsPerFile records each, the
// layout the adjoint snapshot files use when a per-file record cap is
// configured.
type FileStore struct {
	basename    string
	recsPerFile int
	grid        *fourdvar.Grid
	fs          fourdvar.FieldSet
	scalars     []string

	files map[int]*ncFile
}

var _ Interface = (*FileStore)(nil)

type ncFile struct {
	name string
	ff   *os.File
	f    *cdf.File
}

// NewFileStore creates a NetCDF snapshot store. scalars names the
// per-record coefficient variables the store will carry (they must be
// declared up front because the NetCDF header is immutable once defined).
// recsPerFile of zero selects single-file mode.
func NewFileStore(basename string, g *fourdvar.Grid, fs fourdvar.FieldSet, scalars []string, recsPerFile int) (*FileStore, error) {
	if err := g.Check(); err != nil {
		return nil, err
	}
	if recsPerFile < 0 {
		return nil, fmt.Errorf("store: negative per-file record limit %d", recsPerFile)
	}
	return &FileStore{
		basename:    basename,
		recsPerFile: recsPerFile,
		grid:        g,
		fs:          fs,
		scalars:     scalars,
		files:       make(map[int]*ncFile),
	}, nil
}

// fieldDims returns the NetCDF dimension names for a field variable.
func fieldDims(name string) []string {
	switch name {
	case "u", "v":
		return []string{"record", "z", "y", "x"}
	case "tracer":
		return []string{"record", "tracer", "z", "y", "x"}
	case "stflux":
		return []string{"record", "tracer", "y", "x"}
	default: // zeta, ubar, vbar, sustr, svstr
		return []string{"record", "y", "x"}
	}
}

// header builds the NetCDF header for one backing file. nrecs of zero
// declares an unlimited record dimension.
func (s *FileStore) header(nrecs int) (*cdf.Header, error) {
	g := s.grid
	dims := []string{"record", "y", "x"}
	lens := []int{nrecs, g.TotalY(), g.TotalX()}
	if s.fs.Solve3D {
		dims = append(dims, "z", "tracer")
		lens = append(lens, g.Nz, g.NTracers)
	}
	h := cdf.NewHeader(dims, lens)
	probe := fourdvar.NewControlVector(g, s.fs)
	for _, f := range probe.Fields() {
		h.AddVariable(f.Name, fieldDims(f.Name), []float64{0})
	}
	for _, name := range s.scalars {
		h.AddVariable(name, []string{"record"}, []float64{0})
	}
	h.Define()
	for _, err := range h.Check() {
		return nil, fmt.Errorf("store: defining NetCDF header: %v", err)
	}
	return h, nil
}

// locate maps a global record index to a backing-file index and the
// record index local to that file.
func (s *FileStore) locate(rec int) (fileIdx, local int) {
	if s.recsPerFile == 0 {
		return 0, rec
	}
	return (rec-1)/s.recsPerFile + 1, (rec-1)%s.recsPerFile + 1
}

// fileName returns the backing-file name for a file index. Index zero is
// the single-file mode name.
func (s *FileStore) fileName(fileIdx int) string {
	if fileIdx == 0 {
		return s.basename
	}
	ext := filepath.Ext(s.basename)
	return fmt.Sprintf("%s_%03d%s", strings.TrimSuffix(s.basename, ext), fileIdx, ext)
}

// open returns the open backing file for fileIdx, creating it if create
// is set and it does not yet exist.
func (s *FileStore) open(fileIdx int, create bool) (*ncFile, error) {
	if nc, ok := s.files[fileIdx]; ok {
		return nc, nil
	}
	name := s.fileName(fileIdx)
	if _, err := os.Stat(name); err == nil {
		ff, err := os.OpenFile(name, os.O_RDWR, os.ModePerm)
		if err != nil {
			return nil, err
		}
		f, err := cdf.Open(ff)
		if err != nil {
			ff.Close()
			return nil, err
		}
		nc := &ncFile{name: name, ff: ff, f: f}
		s.files[fileIdx] = nc
		return nc, nil
	} else if !create {
		return nil, err
	}
	nrecs := s.recsPerFile // 0 in single-file mode: unlimited
	h, err := s.header(nrecs)
	if err != nil {
		return nil, err
	}
	ff, err := os.Create(name)
	if err != nil {
		return nil, err
	}
	f, err := cdf.Create(ff, h)
	if err != nil {
		ff.Close()
		return nil, err
	}
	nc := &ncFile{name: name, ff: ff, f: f}
	s.files[fileIdx] = nc
	return nc, nil
}

// writeVar writes one full record of a variable.
func (nc *ncFile) writeVar(name string, local int, data []float64) error {
	ndims := len(nc.f.Header.Dimensions(name))
	begin, end := make([]int, ndims), make([]int, ndims)
	begin[0], end[0] = local-1, local
	w := nc.f.Writer(name, begin, end)
	if _, err := w.Write(data); err != nil {
		return err
	}
	return nil
}

// readVar reads one full record of a variable into data.
func (nc *ncFile) readVar(name string, local int, data []float64) error {
	ndims := len(nc.f.Header.Dimensions(name))
	begin, end := make([]int, ndims), make([]int, ndims)
	begin[0], end[0] = local-1, local
	r := nc.f.Reader(name, begin, end)
	buf := r.Zero(len(data))
	if _, err := r.Read(buf); err != nil {
		return err
	}
	copy(data, buf.([]float64))
	return nil
}

// sync updates the record count in the file header so that records
// written through the unlimited dimension become visible to readers.
func (s *FileStore) sync(nc *ncFile) error {
	if s.recsPerFile != 0 {
		return nil
	}
	return cdf.UpdateNumRecs(nc.ff)
}

// WriteState stores the snapshot at record rec.
func (s *FileStore) WriteState(rec int, v *fourdvar.ControlVector) error {
	if rec < 1 {
		return &StorageError{Record: rec, Err: errors.New("record indices are 1-based")}
	}
	fileIdx, local := s.locate(rec)
	nc, err := s.open(fileIdx, true)
	if err != nil {
		return &StorageError{Record: rec, File: s.fileName(fileIdx), Err: err}
	}
	for _, f := range v.Fields() {
		if err := nc.writeVar(f.Name, local, f.Data.Elements); err != nil {
			return &StorageError{Record: rec, File: nc.name, Var: f.Name, Err: err}
		}
	}
	if err := s.sync(nc); err != nil {
		return &StorageError{Record: rec, File: nc.name, Err: err}
	}
	return nil
}

// ReadState reads record rec into the preallocated vector v.
func (s *FileStore) ReadState(rec int, v *fourdvar.ControlVector) error {
	fileIdx, local := s.locate(rec)
	nc, err := s.open(fileIdx, false)
	if err != nil {
		return &StorageError{Record: rec, File: s.fileName(fileIdx), Err: err}
	}
	for _, f := range v.Fields() {
		if err := nc.readVar(f.Name, local, f.Data.Elements); err != nil {
			return &StorageError{Record: rec, File: nc.name, Var: f.Name, Err: err}
		}
	}
	return nil
}

// WriteScalar stores a named per-record coefficient.
func (s *FileStore) WriteScalar(name string, rec int, val float64) error {
	if rec < 1 {
		return &StorageError{Record: rec, Var: name, Err: errors.New("record indices are 1-based")}
	}
	fileIdx, local := s.locate(rec)
	nc, err := s.open(fileIdx, true)
	if err != nil {
		return &StorageError{Record: rec, File: s.fileName(fileIdx), Var: name, Err: err}
	}
	if err := nc.writeVar(name, local, []float64{val}); err != nil {
		return &StorageError{Record: rec, File: nc.name, Var: name, Err: err}
	}
	if err := s.sync(nc); err != nil {
		return &StorageError{Record: rec, File: nc.name, Var: name, Err: err}
	}
	return nil
}

// ReadScalar reads a named per-record coefficient.
func (s *FileStore) ReadScalar(name string, rec int) (float64, error) {
	fileIdx, local := s.locate(rec)
	nc, err := s.open(fileIdx, false)
	if err != nil {
		return 0, &StorageError{Record: rec, File: s.fileName(fileIdx), Var: name, Err: err}
	}
	buf := make([]float64, 1)
	if err := nc.readVar(name, local, buf); err != nil {
		return 0, &StorageError{Record: rec, File: nc.name, Var: name, Err: err}
	}
	return buf[0], nil
}

// Close closes all backing files.
func (s *FileStore) Close() error {
	var first error
	for _, nc := range s.files {
		if err := nc.ff.Close(); err != nil && first == nil {
			first = err
		}
	}
	s.files = make(map[int]*ncFile)
	return first
}
