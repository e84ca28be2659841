package form

import (
	"errors"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"lims-forms/internal/metadata"
	"lims-forms/internal/section"
)

// Problem is one reason a form cannot be submitted.
type Problem struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

// ValidationError carries every problem found at submission time.
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %d problem(s)", len(e.Problems))
}

var programs sync.Map // expression -> *vm.Program

// ruleTypes declares the shape of the rule environment for the compiler.
var ruleTypes = map[string]any{
	"fields":   map[string]any{},
	"flags":    map[string]any{},
	"sections": map[string]any{},
	"rows":     func(string) []map[string]any { return nil },
	"cell":     func(string, string, string) string { return "" },
}

// Validate checks an aggregate before it is submitted: section shapes and
// fixed row sets, scalar field constraints, then the form's rules. It returns
// nil or a *ValidationError.
func Validate(def *metadata.FormDefinition, agg *Aggregate) error {
	var problems []Problem

	// 1. Section shapes
	for _, tpl := range def.Sections {
		s, ok := agg.Sections[tpl.Name]
		if !ok {
			problems = append(problems, Problem{Field: tpl.Name, Rule: "shape", Message: "section missing"})
			continue
		}
		if err := s.Validate(); err != nil {
			var shapeErr *section.ShapeError
			if errors.As(err, &shapeErr) {
				for _, p := range shapeErr.Problems {
					problems = append(problems, Problem{Field: tpl.Name, Rule: "shape", Message: describe(p)})
				}
			}
		}
		if tpl.Cardinality == section.Fixed && !tpl.SameRows(s.Data) {
			problems = append(problems, Problem{
				Field:   tpl.Name,
				Rule:    "cardinality",
				Message: fmt.Sprintf("fixed section needs its %d template rows, got %d rows", len(tpl.Rows), len(s.Data)),
			})
		}
	}

	// 2. Scalar fields
	for _, f := range def.Fields {
		if msg := f.Check(agg.Fields[f.Name]); msg != "" {
			problems = append(problems, Problem{Field: f.Name, Rule: "field", Message: msg})
		}
	}

	// 3. Expression rules
	env := ruleEnv(def, agg)
	for _, r := range def.Rules {
		violated, err := evaluateRule(r, env)
		if err != nil {
			problems = append(problems, Problem{Field: r.Field, Rule: r.Name, Message: err.Error()})
			continue
		}
		if !violated {
			continue
		}
		msg := r.Message
		if msg == "" {
			msg = fmt.Sprintf("rule %s violated", r.Name)
		}
		problems = append(problems, Problem{Field: r.Field, Rule: r.Name, Message: msg})
		if r.StopOnFail {
			break
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// CompileRule compiles a rule expression, caching the program.
func CompileRule(expression string) (*vm.Program, error) {
	if p, ok := programs.Load(expression); ok {
		return p.(*vm.Program), nil
	}
	prog, err := expr.Compile(expression, expr.Env(ruleTypes), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile expression: %w", err)
	}
	programs.Store(expression, prog)
	return prog, nil
}

func evaluateRule(r *metadata.Rule, env map[string]any) (bool, error) {
	prog, err := CompileRule(r.Expression)
	if err != nil {
		return false, err
	}
	result, err := expr.Run(prog, env)
	if err != nil {
		return false, fmt.Errorf("rule %s evaluation error: %w", r.Name, err)
	}
	violated, _ := result.(bool)
	return violated, nil
}

// ruleEnv exposes the aggregate to rule expressions:
//
//	fields.<name>, flags.<name>, sections.<name> (list of row maps),
//	rows("section"), cell("section", "rowID", "accessorKey")
func ruleEnv(def *metadata.FormDefinition, agg *Aggregate) map[string]any {
	fields := def.DefaultFields()
	for k, v := range agg.Fields {
		fields[k] = v
	}
	flags := make(map[string]any, len(def.Flags))
	for _, f := range def.Flags {
		flags[f] = agg.Flags[f]
	}
	sections := make(map[string]any, len(agg.Sections))
	for name, s := range agg.Sections {
		sections[name] = s.Records()
	}

	return map[string]any{
		"fields":   fields,
		"flags":    flags,
		"sections": sections,
		"rows": func(name string) []map[string]any {
			s, ok := agg.Sections[name]
			if !ok {
				return []map[string]any{}
			}
			return s.Records()
		},
		"cell": func(name, rowID, key string) string {
			s, ok := agg.Sections[name]
			if !ok {
				return ""
			}
			idx := s.FindRow(rowID)
			if idx < 0 {
				return ""
			}
			return s.Data[idx].Cells[key]
		},
	}
}

func describe(p section.Problem) string {
	switch {
	case p.Row != "" && p.Column != "":
		return fmt.Sprintf("row %s, column %s: %s", p.Row, p.Column, p.Reason)
	case p.Row != "":
		return fmt.Sprintf("row %s: %s", p.Row, p.Reason)
	case p.Column != "":
		return fmt.Sprintf("column %s: %s", p.Column, p.Reason)
	}
	return p.Reason
}
