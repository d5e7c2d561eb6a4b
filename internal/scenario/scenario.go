// Package scenario loads HCL scenario files describing observed objects,
// effects that read them and steps that mutate them, and replays them
// against a reactive system to produce a dependency trace.
package scenario

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/delaneyj/proxyparty/internal/ctxlog"
)

var ErrInvalid = errors.New("scenario: invalid")

// File is the decoded form of a scenario file.
type File struct {
	Objects []*ObjectBlock `hcl:"object,block"`
	Effects []*EffectBlock `hcl:"effect,block"`
	Steps   []*StepBlock   `hcl:"step,block"`
}

// ObjectBlock declares a raw object and how it is wrapped.
type ObjectBlock struct {
	Name     string         `hcl:"name,label"`
	Kind     string         `hcl:"kind,optional"`
	Fields   hcl.Expression `hcl:"fields,optional"`
	Items    hcl.Expression `hcl:"items,optional"`
	Readonly bool           `hcl:"readonly,optional"`
}

// EffectBlock declares an effect by the paths it reads.
type EffectBlock struct {
	Name      string   `hcl:"name,label"`
	Reads     []string `hcl:"reads,optional"`
	Computed  bool     `hcl:"computed,optional"`
	Scheduled bool     `hcl:"scheduled,optional"`
}

// StepBlock is one batch of mutations. They are applied in the order set,
// delete, add, clear; scheduled effects are flushed after the step.
type StepBlock struct {
	Name   string         `hcl:"name,label"`
	Set    hcl.Expression `hcl:"set,optional"`
	Delete []string       `hcl:"delete,optional"`
	Add    hcl.Expression `hcl:"add,optional"`
	Clear  []string       `hcl:"clear,optional"`
	Unlock bool           `hcl:"unlock,optional"`
}

// Load parses and validates the scenario file at path.
func Load(ctx context.Context, path string) (*File, error) {
	_, logger := ctxlog.With(ctx, "path", path)
	logger.Debug("Decoding scenario file.")

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse scenario file %s: %w", path, diags)
	}
	sc, err := decode(file.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode scenario file %s: %w", path, err)
	}

	logger.Debug("Decoded scenario file.", "objects", len(sc.Objects), "effects", len(sc.Effects), "steps", len(sc.Steps))
	return sc, nil
}

// Parse decodes scenario source held in memory. filename is only used in
// diagnostics.
func Parse(src []byte, filename string) (*File, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse scenario %s: %w", filename, diags)
	}
	return decode(file.Body)
}

func decode(body hcl.Body) (*File, error) {
	var sc File
	if diags := gohcl.DecodeBody(body, nil, &sc); diags.HasErrors() {
		return nil, diags
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks names, kinds and that every path refers to a declared
// object.
func (sc *File) Validate() error {
	objects := map[string]*ObjectBlock{}
	for _, o := range sc.Objects {
		if _, dup := objects[o.Name]; dup {
			return fmt.Errorf("%w: duplicate object %q", ErrInvalid, o.Name)
		}
		if _, err := parseKind(o.Kind); err != nil {
			return fmt.Errorf("object %q: %w", o.Name, err)
		}
		objects[o.Name] = o
	}

	known := func(p path) error {
		if _, ok := objects[p.object]; !ok {
			return fmt.Errorf("%w: unknown object %q", ErrInvalid, p.object)
		}
		return nil
	}

	effects := map[string]bool{}
	for _, e := range sc.Effects {
		if effects[e.Name] {
			return fmt.Errorf("%w: duplicate effect %q", ErrInvalid, e.Name)
		}
		effects[e.Name] = true
		for _, r := range e.Reads {
			p, err := parseReadPath(r)
			if err != nil {
				return fmt.Errorf("effect %q: %w", e.Name, err)
			}
			if err := known(p); err != nil {
				return fmt.Errorf("effect %q: %w", e.Name, err)
			}
		}
	}

	for _, st := range sc.Steps {
		for _, d := range st.Delete {
			p, err := parseWritePath(d)
			if err != nil {
				return fmt.Errorf("step %q: %w", st.Name, err)
			}
			if err := known(p); err != nil {
				return fmt.Errorf("step %q: %w", st.Name, err)
			}
		}
		for _, c := range st.Clear {
			if err := known(path{object: c}); err != nil {
				return fmt.Errorf("step %q: %w", st.Name, err)
			}
		}
	}
	return nil
}
