package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lims-forms/internal/client"
	"lims-forms/internal/export"
	"lims-forms/internal/form"
)

var (
	exportOutput string
	exportInput  string
	exportRemote bool
	exportToken  string
)

var exportCmd = &cobra.Command{
	Use:   "export <form> <section>",
	Short: "Render one section as a spreadsheet",
	Long: `Export renders a section of a form as xlsx. The section comes from the
form defaults, or from a saved aggregate given with --input. With --remote
the payload is sent to the backend's document exporter instead.

Example:
  limsctl export pqr base_metals -o base_metals.xlsx
  limsctl export pqr tensile_test --input pqr-17.json -o tensile.xlsx`,
	Args: cobra.ExactArgs(2),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default <form>-<section>.xlsx)")
	exportCmd.Flags().StringVar(&exportInput, "input", "", "aggregate JSON file to export from")
	exportCmd.Flags().BoolVar(&exportRemote, "remote", false, "use the backend document exporter")
	exportCmd.Flags().StringVar(&exportToken, "token", "", "bearer token for --remote")
}

func runExport(cmd *cobra.Command, args []string) error {
	def, err := lookupForm(args[0])
	if err != nil {
		return err
	}
	name := args[1]
	if def.GetSection(name) == nil {
		return fmt.Errorf("form %s has no section %q (valid: %v)", def.Name, name, def.SectionNames())
	}

	var initial *form.Aggregate
	if exportInput != "" {
		initial, err = readAggregate(exportInput)
		if err != nil {
			return err
		}
	}
	agg := form.NewAggregator(def, initial, nil).Serialize()

	base := def.Name + "-" + name
	payload := export.FromSection(agg.Sections[name], base)

	var data []byte
	out := exportOutput
	if exportRemote {
		c := client.New(cfg.Backend.BaseURL, cfg.Backend.Timeout, client.WithExportPath(cfg.Backend.ExportPath))
		ctx := context.Background()
		if exportToken != "" {
			ctx = client.WithToken(ctx, exportToken)
		}
		if data, _, err = c.Export(ctx, payload); err != nil {
			return fmt.Errorf("remote export: %w", err)
		}
		if out == "" {
			out = base
		}
	} else {
		if data, err = export.Bytes(payload); err != nil {
			return err
		}
		if out == "" {
			out = export.XLSXName(payload, base)
		}
	}

	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d rows)\n", out, len(payload.Data))
	return nil
}

func readAggregate(path string) (*form.Aggregate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var agg form.Aggregate
	if err := json.Unmarshal(data, &agg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &agg, nil
}
