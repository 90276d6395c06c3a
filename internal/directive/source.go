package directive

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Vars are the values injected into directive sources.
type Vars struct {
	DBName string
	DBUser string
}

// Source produces the directive list for a database.
type Source interface {
	Directives(vars Vars) ([]Directive, error)
}

// List is a fixed directive list.
type List []Directive

// Directives returns a copy of l.
func (l List) Directives(Vars) ([]Directive, error) {
	return slices.Clone(l), nil
}

// SourceFunc computes the directive list from the injected vars.
type SourceFunc func(vars Vars) ([]Directive, error)

// Directives calls f.
func (f SourceFunc) Directives(vars Vars) ([]Directive, error) {
	return f(vars)
}

// FileSource reads directives from a YAML file holding a list of
// [user, database, payload] sequences. Every field is a text/template
// rendered with Vars, for example:
//
//	# build.yaml
//	- [postgres, template1, "DROP DATABASE IF EXISTS {{.DBName}}"]
//	- ["{{.DBUser}}", "{{.DBName}}", schema.sql]
//
// Relative file payloads resolve against the directory of the YAML file.
type FileSource struct {
	Path string
}

// Directives reads and renders the file.
func (s FileSource) Directives(vars Vars) ([]Directive, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directive file %s: %w", s.Path, err)
	}

	var raw [][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedDirective, s.Path, err)
	}

	dir := filepath.Dir(s.Path)
	out := make([]Directive, 0, len(raw))
	for i, fields := range raw {
		if len(fields) != 3 {
			return nil, fmt.Errorf("%w: %s entry %d has %d fields, want 3",
				ErrMalformedDirective, s.Path, i, len(fields))
		}

		rendered := make([]string, 3)
		for j, field := range fields {
			text, err := render(field, vars)
			if err != nil {
				return nil, fmt.Errorf("%w: %s entry %d field %d: %v",
					ErrMalformedDirective, s.Path, i, j, err)
			}
			rendered[j] = text
		}

		d := Directive{User: rendered[0], Database: rendered[1], Payload: rendered[2]}
		if Classify(d.Payload) != Literal && !filepath.IsAbs(d.Payload) {
			d.Payload = filepath.Join(dir, d.Payload)
		}
		out = append(out, d)
	}
	return out, nil
}

func render(text string, vars Vars) (string, error) {
	tmpl, err := template.New("directive").Option("missingkey=error").Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", err
	}
	return buf.String(), nil
}
