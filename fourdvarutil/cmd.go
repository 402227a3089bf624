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

// Package fourdvarutil holds the command-line interface of the
// minimization engine and the glue that assembles a run from
// configuration.
package fourdvarutil

import (
	"fmt"

	"github.com/lnashier/viper"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/oceanmodel/fourdvar"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to OceanVar.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Grid.Nx",
			usage: `
              Grid.Nx is the number of interior grid points in the X
              direction.`,
			defaultVal: 32,
			flagsets:   []*pflag.FlagSet{minimizeCmd.Flags()},
		},
		{
			name: "Grid.Ny",
			usage: `
              Grid.Ny is the number of interior grid points in the Y
              direction.`,
			defaultVal: 24,
			flagsets:   []*pflag.FlagSet{minimizeCmd.Flags()},
		},
		{
			name: "Grid.Nz",
			usage: `
              Grid.Nz is the number of vertical levels. Only used when
              Fields.Solve3D is true.`,
			defaultVal: 8,
			flagsets:   []*pflag.FlagSet{minimizeCmd.Flags()},
		},
		{
			name: "Grid.Halo",
			usage: `
              Grid.Halo is the halo margin width, in grid points, carried
              around each field array. Halo points never contribute to
              dot products.`,
			defaultVal: 1,
			flagsets:   []*pflag.FlagSet{minimizeCmd.Flags()},
		},
		{
			name: "Grid.NTracers",
			usage: `
              Grid.NTracers is the number of tracer fields. Only used when
              Fields.Solve3D is true.`,
			defaultVal: 2,
			flagsets:   []*pflag.FlagSet{minimizeCmd.Flags()},
		},
		{
			name: "Fields.Solve3D",
			usage: `
              Fields.Solve3D selects the baroclinic control vector: 3D
              momentum and tracers instead of depth-averaged momentum.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{minimizeCmd.Flags()},
		},
		{
			name: "Fields.AdjustWindStress",
			usage: `
              Fields.AdjustWindStress adds the surface wind stress
              corrections to the control vector.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{minimizeCmd.Flags()},
		},
		{
			name: "Fields.AdjustTracerFlux",
			usage: `
              Fields.AdjustTracerFlux adds the surface tracer flux
              corrections to the control vector. Only used when
              Fields.Solve3D is true.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{minimizeCmd.Flags()},
		},
		{
			name: "Inner",
			usage: `
              Inner is the number of inner-loop iterations per
              assimilation cycle. The minimizer is reconstructed on the
              final iteration.`,
			shorthand:  "n",
			defaultVal: 15,
			flagsets:   []*pflag.FlagSet{minimizeCmd.Flags()},
		},
		{
			name: "StepSize",
			usage: `
              StepSize is the fixed conjugate-gradient step size used for
              the finite-difference Hessian estimates and the trial
              increments.`,
			defaultVal: 0.001,
			flagsets:   []*pflag.FlagSet{minimizeCmd.Flags()},
		},
		{
			name: "GradErr",
			usage: `
              GradErr is the relative error bound below which a Ritz
              eigenpair of the Lanczos tridiagonal matrix is accepted as
              converged during the iteration.`,
			defaultVal: 0.0001,
			flagsets:   []*pflag.FlagSet{minimizeCmd.Flags()},
		},
		{
			name: "HevecErr",
			usage: `
              HevecErr is the relative error bound used on the final inner
              iteration to select which Hessian eigenvectors are written
              to the Hessian file.`,
			defaultVal: 0.01,
			flagsets:   []*pflag.FlagSet{minimizeCmd.Flags()},
		},
		{
			name: "ComputeEigs",
			usage: `
              ComputeEigs enables the Ritz eigenpair analysis and the
              materialization of the converged Hessian eigenvectors for
              preconditioning later assimilation cycles.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{minimizeCmd.Flags()},
		},
		{
			name: "LanczosFile",
			usage: `
              LanczosFile is the NetCDF file holding the Lanczos basis
              vectors. An empty value keeps the basis in memory.`,
			defaultVal: "lanczos.nc",
			flagsets:   []*pflag.FlagSet{minimizeCmd.Flags()},
		},
		{
			name: "HessianFile",
			usage: `
              HessianFile is the NetCDF file receiving the converged
              Hessian eigenvectors. An empty value keeps them in memory.`,
			defaultVal: "hessian.nc",
			flagsets:   []*pflag.FlagSet{minimizeCmd.Flags()},
		},
		{
			name: "RecordsPerFile",
			usage: `
              RecordsPerFile splits the Lanczos basis across numbered
              files holding this many records each. Zero keeps all
              records in a single file.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{minimizeCmd.Flags()},
		},
		{
			name: "Model.Curvature",
			usage: `
              Model.Curvature is the base diagonal of the synthetic cost
              function Hessian used by the self-check minimization.`,
			defaultVal: 5.0,
			flagsets:   []*pflag.FlagSet{minimizeCmd.Flags()},
		},
		{
			name: "Model.Spread",
			usage: `
              Model.Spread is the range of the synthetic Hessian diagonal
              above Model.Curvature, so the spectrum spans
              [Curvature, Curvature+Spread].`,
			defaultVal: 10.0,
			flagsets:   []*pflag.FlagSet{minimizeCmd.Flags()},
		},
		{
			name: "Model.Coupling",
			usage: `
              Model.Coupling is the nearest-neighbor horizontal coupling
              of the synthetic Hessian. It must be smaller than a quarter
              of Model.Curvature to keep the Hessian positive definite.`,
			defaultVal: 0.5,
			flagsets:   []*pflag.FlagSet{minimizeCmd.Flags()},
		},
		{
			name: "Model.Seed",
			usage: `
              Model.Seed seeds the synthetic gradient and Hessian
              generator, making self-check runs reproducible.`,
			defaultVal: 1,
			flagsets:   []*pflag.FlagSet{minimizeCmd.Flags()},
		},
		{
			name: "LogLevel",
			usage: `
              LogLevel sets the logging verbosity: debug, info, warn or
              error.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("OCEANVAR")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(minimizeCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("fourdvar: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "oceanvar",
	Short: "A 4D-Var minimization engine.",
	Long: `OceanVar minimizes the incremental four-dimensional variational data
assimilation cost function with a Lanczos-based preconditioned
conjugate-gradient algorithm.

Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'OCEANVAR_var' where 'var'
is the name of the variable to be set.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of OceanVar.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("OceanVar v%s\n", fourdvar.Version)
	},
	DisableAutoGenTag: true,
}

// minimizeCmd runs a self-contained minimization of the synthetic
// quadratic cost function.
var minimizeCmd = &cobra.Command{
	Use:   "minimize",
	Short: "Run a self-check minimization.",
	Long: `minimize runs one inner loop of the conjugate-gradient minimization
against a synthetic quadratic cost function with a known Hessian, writing the
Lanczos basis and the converged Hessian eigenvectors to the configured files.
It is a full end-to-end exercise of the descent algorithm and its storage
layer, usable both as an installation check and as a performance probe.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return Minimize(Cfg)
	},
	DisableAutoGenTag: true,
}
