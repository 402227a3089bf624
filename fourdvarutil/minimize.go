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

package fourdvarutil

import (
	"fmt"
	"math/rand"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/oceanmodel/fourdvar"
	"github.com/oceanmodel/fourdvar/congrad"
	"github.com/oceanmodel/fourdvar/quadratic"
	"github.com/oceanmodel/fourdvar/store"
)

// getFloat reads a float option, tolerating the string and integer
// forms that configuration files produce.
func getFloat(cfg *viper.Viper, key string) (float64, error) {
	v, err := cast.ToFloat64E(cfg.Get(key))
	if err != nil {
		return 0, fmt.Errorf("fourdvar: option %s: %v", key, err)
	}
	return v, nil
}

// gridFromConfig builds the grid descriptor from configuration.
func gridFromConfig(cfg *viper.Viper) (*fourdvar.Grid, fourdvar.FieldSet, error) {
	g := &fourdvar.Grid{
		Nx:       cfg.GetInt("Grid.Nx"),
		Ny:       cfg.GetInt("Grid.Ny"),
		Nz:       cfg.GetInt("Grid.Nz"),
		Halo:     cfg.GetInt("Grid.Halo"),
		NTracers: cfg.GetInt("Grid.NTracers"),
	}
	fs := fourdvar.FieldSet{
		Solve3D:          cfg.GetBool("Fields.Solve3D"),
		AdjustWindStress: cfg.GetBool("Fields.AdjustWindStress"),
		AdjustTracerFlux: cfg.GetBool("Fields.AdjustTracerFlux"),
	}
	if err := g.Check(); err != nil {
		return nil, fourdvar.FieldSet{}, err
	}
	return g, fs, nil
}

// openStore opens the configured snapshot store: a NetCDF file store
// when a file name is given, in-memory otherwise.
func openStore(file string, recsPerFile int, g *fourdvar.Grid, fs fourdvar.FieldSet, scalars []string) (store.Interface, error) {
	if file == "" {
		return store.NewMemStore(), nil
	}
	return store.NewFileStore(file, g, fs, scalars, recsPerFile)
}

// synthModel builds the seeded synthetic quadratic cost model.
func synthModel(cfg *viper.Viper, g *fourdvar.Grid, fs fourdvar.FieldSet) (*quadratic.Model, error) {
	curv, err := getFloat(cfg, "Model.Curvature")
	if err != nil {
		return nil, err
	}
	spread, err := getFloat(cfg, "Model.Spread")
	if err != nil {
		return nil, err
	}
	coupling, err := getFloat(cfg, "Model.Coupling")
	if err != nil {
		return nil, err
	}
	rnd := rand.New(rand.NewSource(int64(cfg.GetInt("Model.Seed"))))
	m := &quadratic.Model{
		Diag:     fourdvar.NewControlVector(g, fs),
		G0:       fourdvar.NewControlVector(g, fs),
		Coupling: coupling,
	}
	for _, f := range m.Diag.Fields() {
		for i := range f.Data.Elements {
			f.Data.Elements[i] = curv + spread*rnd.Float64()
		}
	}
	for _, f := range m.G0.Fields() {
		for i := range f.Data.Elements {
			f.Data.Elements[i] = rnd.NormFloat64()
		}
	}
	// Self-copy applies the land masks, keeping the synthetic model
	// consistent with the state algebra.
	m.Diag.CopyFrom(m.Diag)
	m.G0.CopyFrom(m.G0)
	if err := m.Check(); err != nil {
		return nil, err
	}
	return m, nil
}

// Minimize assembles a self-check minimization from configuration and
// runs one complete inner loop.
func Minimize(cfg *viper.Viper) error {
	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.GetString("LogLevel"))
	if err != nil {
		return fmt.Errorf("fourdvar: option LogLevel: %v", err)
	}
	log.SetLevel(level)

	g, fs, err := gridFromConfig(cfg)
	if err != nil {
		return err
	}
	m, err := synthModel(cfg, g, fs)
	if err != nil {
		return err
	}

	records, err := openStore(cfg.GetString("LanczosFile"), cfg.GetInt("RecordsPerFile"),
		g, fs, []string{congrad.ScalarDelta, congrad.ScalarBeta, congrad.ScalarQG})
	if err != nil {
		return err
	}
	defer records.Close()
	evecs, err := openStore(cfg.GetString("HessianFile"), 0,
		g, fs, []string{congrad.ScalarRitz, congrad.ScalarRitzErr, congrad.ScalarNConv})
	if err != nil {
		return err
	}
	defer evecs.Close()

	stepSize, err := getFloat(cfg, "StepSize")
	if err != nil {
		return err
	}
	gradErr, err := getFloat(cfg, "GradErr")
	if err != nil {
		return err
	}
	hevecErr, err := getFloat(cfg, "HevecErr")
	if err != nil {
		return err
	}
	d := &congrad.Descent{
		Records:     records,
		Evecs:       evecs,
		StepSize:    stepSize,
		MaxInner:    cfg.GetInt("Inner"),
		GradErr:     gradErr,
		HevecErr:    hevecErr,
		ComputeEigs: cfg.GetBool("ComputeEigs"),
		Log:         log,
	}
	s := congrad.NewState(g, fs)

	res, err := d.Run(m, s)
	if err != nil {
		return err
	}

	cost, err := m.Cost(s.TrialNew)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"gradient norm":  res.GradNorm,
		"reduction":      res.Reduction,
		"ritz converged": res.Converged,
		"final cost":     cost,
		"model calls":    m.Evals,
	}).Info("fourdvar: minimization finished")
	return nil
}
