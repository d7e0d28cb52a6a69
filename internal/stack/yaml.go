package stack

import (
	"bytes"
	"errors"
	"io"

	"gopkg.in/yaml.v3"

	"devstack/internal/config"
)

type yamlStack struct {
	Name         string            `yaml:"name"`
	Project      string            `yaml:"project"`
	ComposeFiles []string          `yaml:"compose_files"`
	Environment  map[string]string `yaml:"environment"`
	Directories  []string          `yaml:"directories"`
	Keys         config.Schema     `yaml:"keys"`
	Probe        struct {
		MaxAttempts int         `yaml:"max_attempts"`
		Backoff     *rawBackoff `yaml:"backoff"`
	} `yaml:"probe"`
	Units []yamlUnit `yaml:"units"`
}

type yamlUnit struct {
	ID          string        `yaml:"id"`
	Description string        `yaml:"description"`
	Services    []string      `yaml:"services"`
	DependsOn   []string      `yaml:"depends_on"`
	Requires    []string      `yaml:"requires"`
	Readiness   yamlReadiness `yaml:"readiness"`
}

type yamlReadiness struct {
	Kind        string      `yaml:"kind"`
	Target      string      `yaml:"target"`
	Command     []string    `yaml:"command"`
	Timeout     string      `yaml:"timeout"`
	MaxAttempts int         `yaml:"max_attempts"`
	Backoff     *rawBackoff `yaml:"backoff"`
}

// templateValue is a Go template rendered with the sprig functions over the
// configuration.
type templateValue string

func (t templateValue) Eval(env map[string]string) (string, error) {
	return config.Render(string(t), env)
}

// templateList renders every element as a templateValue.
type templateList []string

func (t templateList) Eval(env map[string]string) ([]string, error) {
	out := make([]string, 0, len(t))
	for _, s := range t {
		v, err := config.Render(s, env)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// ParseYAML decodes a YAML stack. Unknown fields are rejected.
func ParseYAML(data []byte, filename string) (*Stack, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var raw yamlStack
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &Error{File: filename, Msg: "file is empty"}
		}
		return nil, &Error{File: filename, Msg: err.Error()}
	}

	probe, err := probeDefaults(raw.Probe.MaxAttempts, raw.Probe.Backoff)
	if err != nil {
		return nil, &Error{File: filename, Msg: err.Error()}
	}

	s := &Stack{
		Name:         raw.Name,
		Project:      raw.Project,
		ComposeFiles: raw.ComposeFiles,
		Keys:         raw.Keys,
		Environment:  raw.Environment,
		Probe:        probe,
		Source:       filename,
	}
	if len(raw.Directories) > 0 {
		s.Directories = templateList(raw.Directories)
	}

	for _, u := range raw.Units {
		r, err := readinessBase(u.ID, u.Readiness.Kind, u.Readiness.Timeout, u.Readiness.MaxAttempts, u.Readiness.Backoff, probe)
		if err != nil {
			return nil, &Error{File: filename, Msg: err.Error()}
		}
		if u.Readiness.Target != "" {
			r.Target = templateValue(u.Readiness.Target)
		}
		if len(u.Readiness.Command) > 0 {
			r.Command = templateList(u.Readiness.Command)
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
