package domain

import (
	"encoding/hex"
	"fmt"
	"image/color"
	"sort"
	"strings"
)

// DerivationMode controls when a derived file is produced.
type DerivationMode int

const (
	DerivationManual      DerivationMode = 0 // only on explicit request
	DerivationLazy        DerivationMode = 1 // the first time it is looked up
	DerivationImmediately DerivationMode = 2 // when the original is uploaded
)

// ResizeMode says how a resize reconciles differing aspect ratios.
type ResizeMode int

const (
	ResizeCrop        ResizeMode = 0 // fill the target, cropping the excess
	ResizeExpand      ResizeMode = 1 // show the whole image, padding the rest
	ResizeMinimumSize ResizeMode = 2 // no crop or pad; target is the minimum size
	ResizeMaximumSize ResizeMode = 3 // no crop or pad; target is the maximum size
)

type AnchorHorizontal int

const (
	AnchorLeft    AnchorHorizontal = 0
	AnchorHCenter AnchorHorizontal = 1
	AnchorRight   AnchorHorizontal = 2
)

type AnchorVertical int

const (
	AnchorTop     AnchorVertical = 0
	AnchorVCenter AnchorVertical = 1
	AnchorBottom  AnchorVertical = 2
)

var (
	derivationModeNames = []string{"MANUAL", "LAZY", "IMMEDIATELY"}
	resizeModeNames     = []string{"CROP", "EXPAND", "MINIMUM_SIZE", "MAXIMUM_SIZE"}
	anchorHNames        = []string{"LEFT", "CENTER", "RIGHT"}
	anchorVNames        = []string{"TOP", "CENTER", "BOTTOM"}
)

func enumName(names []string, v int) string {
	if v >= 0 && v < len(names) {
		return names[v]
	}
	return fmt.Sprintf("UNKNOWN(%d)", v)
}

func parseEnum(kind string, names []string, text []byte) (int, error) {
	s := strings.ToUpper(strings.TrimSpace(string(text)))
	s = strings.ReplaceAll(s, "-", "_")
	for i, name := range names {
		if name == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown %s %q", ErrInvalidDerivations, kind, string(text))
}

func (m DerivationMode) String() string { return enumName(derivationModeNames, int(m)) }

func (m DerivationMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *DerivationMode) UnmarshalText(text []byte) error {
	v, err := parseEnum("derivation mode", derivationModeNames, text)
	*m = DerivationMode(v)
	return err
}

func (m ResizeMode) String() string { return enumName(resizeModeNames, int(m)) }

func (m ResizeMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *ResizeMode) UnmarshalText(text []byte) error {
	v, err := parseEnum("resize mode", resizeModeNames, text)
	*m = ResizeMode(v)
	return err
}

func (a AnchorHorizontal) String() string { return enumName(anchorHNames, int(a)) }

func (a AnchorHorizontal) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *AnchorHorizontal) UnmarshalText(text []byte) error {
	v, err := parseEnum("horizontal anchor", anchorHNames, text)
	*a = AnchorHorizontal(v)
	return err
}

func (a AnchorVertical) String() string { return enumName(anchorVNames, int(a)) }

func (a AnchorVertical) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *AnchorVertical) UnmarshalText(text []byte) error {
	v, err := parseEnum("vertical anchor", anchorVNames, text)
	*a = AnchorVertical(v)
	return err
}

// Color is an opaque RGB colour written as "#rrggbb".
type Color struct {
	R, G, B uint8
}

func (c Color) RGBA() color.NRGBA { return color.NRGBA{R: c.R, G: c.G, B: c.B, A: 0xff} }

func (c Color) MarshalText() ([]byte, error) {
	return []byte("#" + hex.EncodeToString([]byte{c.R, c.G, c.B})), nil
}

func (c *Color) UnmarshalText(text []byte) error {
	s := strings.TrimPrefix(strings.TrimSpace(string(text)), "#")
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 3 {
		return fmt.Errorf("%w: bad colour %q", ErrInvalidDerivations, string(text))
	}
	c.R, c.G, c.B = b[0], b[1], b[2]
	return nil
}

// OperationResize is the only operation kind currently understood.
const OperationResize = "resize"

// Operation is one processing step of a derivation.
type Operation struct {
	Operation        string           `yaml:"operation" json:"operation"`
	TargetSize       [2]int           `yaml:"target_size" json:"target_size"`
	ResizeMode       ResizeMode       `yaml:"resize_mode" json:"resize_mode"`
	AnchorHorizontal AnchorHorizontal `yaml:"anchor_horizontal" json:"anchor_horizontal"`
	AnchorVertical   AnchorVertical   `yaml:"anchor_vertical" json:"anchor_vertical"`
	BackgroundColor  *Color           `yaml:"background_color" json:"background_color,omitempty"`
}

// DerivationType is a named rule for producing a derived file.
type DerivationType struct {
	Value      int            `yaml:"value" json:"value"`
	Name       string         `yaml:"name" json:"name"`
	Label      string         `yaml:"label" json:"label"`
	Mode       DerivationMode `yaml:"mode" json:"mode"`
	Operations []Operation    `yaml:"operations" json:"operations"`
}

// Key is the lower-case name used in result payloads and URLs.
func (d DerivationType) Key() string { return strings.ToLower(d.Name) }

// DefaultDerivationTypes is a single 50x50 centre-cropped thumbnail made at upload time.
func DefaultDerivationTypes() []DerivationType {
	return []DerivationType{{
		Value: 0,
		Name:  "THUMBNAIL",
		Label: "Thumbnail",
		Mode:  DerivationImmediately,
		Operations: []Operation{{
			Operation:        OperationResize,
			TargetSize:       [2]int{50, 50},
			ResizeMode:       ResizeCrop,
			AnchorHorizontal: AnchorHCenter,
			AnchorVertical:   AnchorVCenter,
		}},
	}}
}

// Registry holds the configured derivation types.
type Registry struct {
	byValue map[int]DerivationType
	byName  map[string]int
	ordered []DerivationType
}

// NewRegistry validates the given types and indexes them.
func NewRegistry(types []DerivationType) (*Registry, error) {
	r := &Registry{
		byValue: make(map[int]DerivationType, len(types)),
		byName:  make(map[string]int, len(types)),
	}
	for _, t := range types {
		if t.Name == "" {
			return nil, fmt.Errorf("%w: derivation %d has no name", ErrInvalidDerivations, t.Value)
		}
		if _, dup := r.byValue[t.Value]; dup {
			return nil, fmt.Errorf("%w: duplicate value %d", ErrInvalidDerivations, t.Value)
		}
		name := strings.ToUpper(t.Name)
		if _, dup := r.byName[name]; dup {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrInvalidDerivations, t.Name)
		}
		if t.Mode < DerivationManual || t.Mode > DerivationImmediately {
			return nil, fmt.Errorf("%w: derivation %s has invalid mode", ErrInvalidDerivations, t.Name)
		}
		if len(t.Operations) == 0 {
			return nil, fmt.Errorf("%w: derivation %s has no operations", ErrInvalidDerivations, t.Name)
		}
		for _, op := range t.Operations {
			if op.Operation != OperationResize {
				return nil, fmt.Errorf("%w: %q in derivation %s", ErrUnknownOperation, op.Operation, t.Name)
			}
			if op.TargetSize[0] <= 0 || op.TargetSize[1] <= 0 {
				return nil, fmt.Errorf("%w: derivation %s needs a positive target size", ErrInvalidDerivations, t.Name)
			}
		}
		t.Name = name
		r.byValue[t.Value] = t
		r.byName[name] = t.Value
		r.ordered = append(r.ordered, t)
	}
	sort.Slice(r.ordered, func(i, j int) bool { return r.ordered[i].Value < r.ordered[j].Value })
	return r, nil
}

// ByValue looks a derivation up by its persisted value.
func (r *Registry) ByValue(v int) (DerivationType, error) {
	t, ok := r.byValue[v]
	if !ok {
		return DerivationType{}, fmt.Errorf("%w: %d", ErrUnknownDerivation, v)
	}
	return t, nil
}

// ByName looks a derivation up by name, ignoring case.
func (r *Registry) ByName(name string) (DerivationType, error) {
	v, ok := r.byName[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return DerivationType{}, fmt.Errorf("%w: %q", ErrUnknownDerivation, name)
	}
	return r.byValue[v], nil
}

// Immediate returns the types generated at upload time.
func (r *Registry) Immediate() []DerivationType {
	var out []DerivationType
	for _, t := range r.ordered {
		if t.Mode == DerivationImmediately {
			out = append(out, t)
		}
	}
	return out
}
