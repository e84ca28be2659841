package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"lims-forms/internal/form"
)

var validateForm string

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a saved aggregate the way submission does",
	Long: `Validate reads an aggregate JSON file and runs the submission checks:
section shapes, required and enumerated fields, then the form's rules.
The form is taken from the file unless --form is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&validateForm, "form", "", "form name (default: the file's form)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	agg, err := readAggregate(args[0])
	if err != nil {
		return err
	}
	name := validateForm
	if name == "" {
		name = agg.Form
	}
	def, err := lookupForm(name)
	if err != nil {
		return err
	}

	// Missing sections are filled from the template, as on load.
	full := form.NewAggregator(def, agg, nil).Serialize()
	err = form.Validate(def, full)
	var vErr *form.ValidationError
	if errors.As(err, &vErr) {
		for _, p := range vErr.Problems {
			fmt.Fprintf(cmd.OutOrStdout(), "%-24s %-26s %s\n", p.Field, p.Rule, p.Message)
		}
		return fmt.Errorf("%s: %d problem(s)", args[0], len(vErr.Problems))
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", args[0])
	return nil
}
