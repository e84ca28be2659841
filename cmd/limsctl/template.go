package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"lims-forms/internal/form"
	"lims-forms/internal/metadata"
)

var formsCmd = &cobra.Command{
	Use:   "forms",
	Short: "List the known forms",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, def := range registry.AllForms() {
			fmt.Fprintf(cmd.OutOrStdout(), "%-20s %-22s %s\n", def.Name, def.Resource, def.Title)
		}
		return nil
	},
}

var templateFlags []string

var templateCmd = &cobra.Command{
	Use:   "template <form>",
	Short: "Print the default aggregate of a form",
	Long: `Template prints the aggregate a new record of the form starts from.

Example:
  limsctl template pqr
  limsctl template pqr --flag asme_equivalent`,
	Args: cobra.ExactArgs(1),
	RunE: runTemplate,
}

func init() {
	templateCmd.Flags().StringSliceVar(&templateFlags, "flag", nil, "mode flags to enable")
}

func runTemplate(cmd *cobra.Command, args []string) error {
	def, err := lookupForm(args[0])
	if err != nil {
		return err
	}
	initial := &form.Aggregate{Flags: metadata.Flags{}}
	for _, f := range templateFlags {
		if !def.HasFlag(f) {
			return fmt.Errorf("form %s has no flag %q", def.Name, f)
		}
		initial.Flags[f] = true
	}
	agg := form.NewAggregator(def, initial, nil).Serialize()

	out, err := json.MarshalIndent(agg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal aggregate: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
