package stack

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	"github.com/zclconf/go-cty/cty/gocty"

	"devstack/internal/config"
)

type hclStack struct {
	Name         string            `hcl:"name"`
	Project      string            `hcl:"project,optional"`
	ComposeFiles []string          `hcl:"compose_files,optional"`
	Environment  map[string]string `hcl:"environment,optional"`
	Directories  hcl.Expression    `hcl:"directories,optional"`
	Keys         []hclKey          `hcl:"key,block"`
	Probe        *hclProbe         `hcl:"probe,block"`
	Units        []hclUnit         `hcl:"unit,block"`
}

type hclKey struct {
	Key         string `hcl:"name,label"`
	Type        string `hcl:"type,optional"`
	Required    bool   `hcl:"required,optional"`
	Default     string `hcl:"default,optional"`
	Secret      bool   `hcl:"secret,optional"`
	Generate    string `hcl:"generate,optional"`
	Description string `hcl:"description,optional"`
}

type hclProbe struct {
	MaxAttempts int         `hcl:"max_attempts,optional"`
	Backoff     *rawBackoff `hcl:"backoff,block"`
}

type hclUnit struct {
	ID          string        `hcl:"id,label"`
	Description string        `hcl:"description,optional"`
	Services    []string      `hcl:"services,optional"`
	DependsOn   []string      `hcl:"depends_on,optional"`
	Requires    []string      `hcl:"requires,optional"`
	Readiness   *hclReadiness `hcl:"readiness,block"`
}

type hclReadiness struct {
	Kind        string         `hcl:"kind,optional"`
	Target      hcl.Expression `hcl:"target,optional"`
	Command     hcl.Expression `hcl:"command,optional"`
	Timeout     string         `hcl:"timeout,optional"`
	MaxAttempts int            `hcl:"max_attempts,optional"`
	Backoff     *rawBackoff    `hcl:"backoff,block"`
}

// exprValue is an HCL expression evaluated with the configuration exposed
// as env.<KEY>.
type exprValue struct {
	expr hcl.Expression
}

func (e exprValue) Eval(env map[string]string) (string, error) {
	v, diags := e.expr.Value(evalContext(env))
	if diags.HasErrors() {
		return "", fmt.Errorf("%s", diags.Error())
	}
	if v.IsNull() {
		return "", nil
	}
	if !v.IsWhollyKnown() {
		return "", fmt.Errorf("value is not known")
	}
	s, err := convert.Convert(v, cty.String)
	if err != nil {
		return "", fmt.Errorf("want a string: %w", err)
	}
	return s.AsString(), nil
}

// exprList is an HCL expression producing a list or tuple of strings.
type exprList struct {
	expr hcl.Expression
}

func (e exprList) Eval(env map[string]string) ([]string, error) {
	v, diags := e.expr.Value(evalContext(env))
	if diags.HasErrors() {
		return nil, fmt.Errorf("%s", diags.Error())
	}
	if v.IsNull() {
		return nil, nil
	}
	v, err := convert.Convert(v, cty.List(cty.String))
	if err != nil {
		return nil, fmt.Errorf("want a list of strings: %w", err)
	}
	var out []string
	if err := gocty.FromCtyValue(v, &out); err != nil {
		return nil, err
	}
	return out, nil
}

var hclFunctions = map[string]function.Function{
	"upper":     stdlib.UpperFunc,
	"lower":     stdlib.LowerFunc,
	"join":      stdlib.JoinFunc,
	"format":    stdlib.FormatFunc,
	"coalesce":  stdlib.CoalesceFunc,
	"trimspace": stdlib.TrimSpaceFunc,
}

func evalContext(env map[string]string) *hcl.EvalContext {
	vals := make(map[string]cty.Value, len(env))
	for k, v := range env {
		vals[k] = cty.StringVal(v)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": cty.ObjectVal(vals)},
		Functions: hclFunctions,
	}
}

// ParseHCL decodes an HCL stack. Readiness targets, commands and
// directories stay unevaluated until Build.
func ParseHCL(data []byte, filename string) (*Stack, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, hclError(filename, diags)
	}

	var raw hclStack
	if diags := gohcl.DecodeBody(file.Body, nil, &raw); diags.HasErrors() {
		return nil, hclError(filename, diags)
	}

	var (
		maxAttempts int
		backoff     *rawBackoff
	)
	if raw.Probe != nil {
		maxAttempts, backoff = raw.Probe.MaxAttempts, raw.Probe.Backoff
	}
	probe, err := probeDefaults(maxAttempts, backoff)
	if err != nil {
		return nil, &Error{File: filename, Msg: err.Error()}
	}

	s := &Stack{
		Name:         raw.Name,
		Project:      raw.Project,
		ComposeFiles: raw.ComposeFiles,
		Environment:  raw.Environment,
		Probe:        probe,
		Source:       filename,
	}
	if !isNullExpr(raw.Directories) {
		s.Directories = exprList{expr: raw.Directories}
	}
	for _, k := range raw.Keys {
		s.Keys = append(s.Keys, config.KeySpec{
			Key:         k.Key,
			Type:        config.Type(k.Type),
			Required:    k.Required,
			Default:     k.Default,
			Secret:      k.Secret,
			Generate:    k.Generate,
			Description: k.Description,
		})
	}

	for _, u := range raw.Units {
		var r Readiness
		if u.Readiness != nil {
			rd := u.Readiness
			r, err = readinessBase(u.ID, rd.Kind, rd.Timeout, rd.MaxAttempts, rd.Backoff, probe)
			if err != nil {
				return nil, &Error{File: filename, Msg: err.Error()}
			}
			if !isNullExpr(rd.Target) {
				r.Target = exprValue{expr: rd.Target}
			}
			if !isNullExpr(rd.Command) {
				r.Command = exprList{expr: rd.Command}
			}
		}
		s.Units = append(s.Units, UnitDef{
			ID:          u.ID,
			Description: u.Description,
			Services:    u.Services,
			DependsOn:   u.DependsOn,
			Requires:    u.Requires,
			Readiness:   r,
		})
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// isNullExpr reports an optional attribute that was not set. gohcl fills
// missing hcl.Expression fields with a static null.
func isNullExpr(expr hcl.Expression) bool {
	if expr == nil {
		return true
	}
	if len(expr.Variables()) > 0 {
		return false
	}
	v, diags := expr.Value(nil)
	return !diags.HasErrors() && v.IsNull()
}

func hclError(filename string, diags hcl.Diagnostics) error {
	e := &Error{File: filename, Msg: diags.Error()}
	for _, d := range diags {
		if d.Severity == hcl.DiagError && d.Subject != nil {
			e.Line = d.Subject.Start.Line
			e.Msg = d.Summary
			if d.Detail != "" {
				e.Msg += ": " + d.Detail
			}
			break
		}
	}
	return e
}
