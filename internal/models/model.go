package models

import (
	"errors"
	"fmt"

	"github.com/berfenger/sunspec2mqtt/pkg/sunspec"
	"gopkg.in/yaml.v3"
)

var ErrInvalidModel = errors.New("models: invalid model definition")

// File is the YAML layout of a model file. One file may define several
// models.
type File struct {
	Models []ModelDef `yaml:"models"`
}

type ModelDef struct {
	Name    string      `yaml:"name"`
	Dids    []DidDef    `yaml:"dids"`
	Blocks  []BlockDef  `yaml:"blocks"`
	Defines []DefineDef `yaml:"defines,omitempty"`
}

type DidDef struct {
	Did  uint16 `yaml:"did"`
	Name string `yaml:"name,omitempty"`
}

type BlockDef struct {
	Repeating bool       `yaml:"repeating,omitempty"`
	Feature   string     `yaml:"feature,omitempty"`
	Points    []PointDef `yaml:"points"`
}

// PointDef declares one data point. At most one of Len, Scale, SF and Define
// may be set: Len for strings, Scale for a literal exponent, SF for a scale
// factor sibling, Define for the label table of an enum or bitfield.
type PointDef struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Offset      int    `yaml:"offset,omitempty"`
	Len         int    `yaml:"len,omitempty"`
	Scale       *int   `yaml:"scale,omitempty"`
	SF          string `yaml:"sf,omitempty"`
	Define      string `yaml:"define,omitempty"`
	Units       string `yaml:"units,omitempty"`
	Label       string `yaml:"label,omitempty"`
	Description string `yaml:"description,omitempty"`
}

type DefineDef struct {
	Name    string      `yaml:"name"`
	Symbols []SymbolDef `yaml:"symbols"`
}

type SymbolDef struct {
	Name  string `yaml:"name"`
	Value uint32 `yaml:"value"`
	Label string `yaml:"label,omitempty"`
}

// Parse decodes a model file and builds its models. Offsets are not resolved.
func Parse(data []byte) ([]*sunspec.Model, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse model YAML: %w", err)
	}
	if len(f.Models) == 0 {
		return nil, fmt.Errorf("%w: no models", ErrInvalidModel)
	}

	models := make([]*sunspec.Model, 0, len(f.Models))
	for i := range f.Models {
		m, err := f.Models[i].Build()
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, nil
}

// Build converts the definition into a sunspec.Model with its dids bound.
func (def *ModelDef) Build() (*sunspec.Model, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("%w: model without name", ErrInvalidModel)
	}
	if len(def.Dids) == 0 {
		return nil, fmt.Errorf("%w: model %s has no did", ErrInvalidModel, def.Name)
	}

	m := &sunspec.Model{Name: def.Name}
	for _, d := range def.Defines {
		define := sunspec.Define{Name: d.Name}
		for _, s := range d.Symbols {
			define.Symbols = append(define.Symbols, sunspec.Symbol{Name: s.Name, Value: s.Value, Label: s.Label})
		}
		m.Defines = append(m.Defines, define)
	}

	for bi, b := range def.Blocks {
		block := sunspec.DataPointBlock{Repeating: b.Repeating, Feature: b.Feature}
		for _, p := range b.Points {
			dp, err := p.build()
			if err != nil {
				return nil, fmt.Errorf("%w: model %s block %d: %w", ErrInvalidModel, def.Name, bi, err)
			}
			if dp.Spec.Sub == sunspec.SubName && sunspec.IsSymbolic(dp.Spec.Type) {
				if _, ok := m.Define(dp.Spec.Name); !ok {
					return nil, fmt.Errorf("%w: model %s point %s: unknown define %q", ErrInvalidModel, def.Name, p.Name, dp.Spec.Name)
				}
			}
			block.Points = append(block.Points, dp)
		}
		m.Blocks = append(m.Blocks, block)
	}

	for _, d := range def.Dids {
		name := d.Name
		if name == "" {
			name = def.Name
		}
		m.AddDid(d.Did, name)
	}
	return m, nil
}

func (p *PointDef) build() (sunspec.DataPoint, error) {
	dp := sunspec.DataPoint{
		Name:        p.Name,
		Offset:      sunspec.OffsetUnset,
		Units:       p.Units,
		Label:       p.Label,
		Description: p.Description,
	}
	if p.Name == "" {
		return dp, errors.New("point without name")
	}
	if p.Offset > 0 {
		dp.Offset = p.Offset
	}
	t, err := sunspec.ParseType(p.Type)
	if err != nil {
		return dp, fmt.Errorf("point %s: %w", p.Name, err)
	}

	subs := 0
	for _, set := range []bool{p.Len != 0, p.Scale != nil, p.SF != "", p.Define != ""} {
		if set {
			subs++
		}
	}
	if subs > 1 {
		return dp, fmt.Errorf("point %s: more than one of len, scale, sf, define", p.Name)
	}

	switch {
	case t == sunspec.TypeString:
		if p.Len <= 0 {
			return dp, fmt.Errorf("point %s: string needs a positive len", p.Name)
		}
		dp.Spec = sunspec.StringSpec(p.Len)
	case p.Len != 0:
		return dp, fmt.Errorf("point %s: len on a %s point", p.Name, t)
	case p.Scale != nil:
		dp.Spec = sunspec.ScaledSpec(t, *p.Scale)
	case p.SF != "":
		dp.Spec = sunspec.RefSpec(t, p.SF)
	case p.Define != "":
		if !sunspec.IsSymbolic(t) {
			return dp, fmt.Errorf("point %s: define on a %s point", p.Name, t)
		}
		dp.Spec = sunspec.RefSpec(t, p.Define)
	default:
		dp.Spec = sunspec.Spec(t)
	}
	return dp, nil
}
