// Package main provides limsctl, a command line companion to the form
// service: it prints form templates, renders section exports, validates
// saved aggregates and mints development tokens.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lims-forms/internal/config"
	"lims-forms/internal/metadata"
)

var (
	// cfg and registry are initialized by PersistentPreRunE.
	cfg      *config.Config
	registry *metadata.Registry

	flagFormsDir string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "limsctl",
	Short:         "limsctl works with LIMS form definitions and records",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded

		registry = metadata.NewDefaultRegistry()
		dir := flagFormsDir
		if dir == "" {
			dir = cfg.FormsDir
		}
		if _, err := metadata.LoadDir(dir, registry, zap.NewNop()); err != nil {
			return fmt.Errorf("load forms: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagFormsDir, "forms-dir", "", "directory of extra JSON form definitions")

	rootCmd.AddCommand(formsCmd)
	rootCmd.AddCommand(templateCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(tokenCmd)
}

func lookupForm(name string) (*metadata.FormDefinition, error) {
	def := registry.GetForm(name)
	if def == nil {
		names := make([]string, 0)
		for _, f := range registry.AllForms() {
			names = append(names, f.Name)
		}
		return nil, fmt.Errorf("unknown form %q (valid: %v)", name, names)
	}
	return def, nil
}
