package payload

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"github.com/Vasu1712/scenesync/internal/models"
)

// Structure is a live atomic model that can render itself as coordinate text.
type Structure interface {
	AsPDB() (string, error)
	AsMMCIF() (string, error)
}

// Volume is a live density map. Values are flattened in row-major order,
// the last axis of Shape varying fastest.
type Volume interface {
	Values() []float32
	Shape() [3]int
	PixelSizes() [3]float64
}

// Object is a model or map payload under construction. The inline
// representation of the live object is only computed when the payload has
// no external source, and then at most once.
type Object struct {
	kind string
	obj  any
	doc  models.Payload

	materialized bool
	inline       models.Payload
	inlineErr    error
}

// Build validates obj against kind and assembles its payload from the kind's
// template and overrides. obj may be nil when overrides name an external
// source. Only keys present in the template are taken from overrides.
func Build(kind string, obj any, overrides models.Payload) (*Object, error) {
	tmpl, ok := Template(kind)
	if !ok || kind == models.KindScene {
		return nil, fmt.Errorf("%w: kind %q", models.ErrUnsupportedObjectType, kind)
	}
	if err := checkObject(kind, obj); err != nil {
		return nil, err
	}

	working := models.Payload{}
	for key, value := range overrides {
		if _, ok := tmpl[key]; ok {
			working[key] = value
		}
	}
	working = working.Clone()
	if id, _ := working["id"].(string); id == "" {
		working["id"] = uuid.NewString()
	}

	// derived fields are checked on the override layer, before template
	// defaults can mask an unsupported user-specified suffix
	if err := deriveSource(kind, working); err != nil {
		return nil, err
	}

	doc := models.Merge(tmpl, working)
	doc["object"] = kind
	return &Object{kind: kind, obj: obj, doc: doc}, nil
}

// MustBuild is like Build but panics on error.
func MustBuild(kind string, obj any, overrides models.Payload) *Object {
	o, err := Build(kind, obj, overrides)
	if err != nil {
		panic(err)
	}
	return o
}

// ID returns the payload id.
func (o *Object) ID() string { return o.doc.ID() }

// Kind returns the object kind.
func (o *Object) Kind() string { return o.kind }

// Payload returns the complete document.
func (o *Object) Payload() (models.Payload, error) {
	out := o.doc.Clone()
	if HasExternalSource(out) {
		return out, nil
	}
	inline, err := o.inlineRep()
	if err != nil {
		return nil, err
	}
	if inline != nil {
		return models.Merge(out, models.Payload{"source": inline}), nil
	}
	return out, nil
}

// Payloads collects the documents of objs in order.
func Payloads(objs ...*Object) ([]models.Payload, error) {
	out := make([]models.Payload, 0, len(objs))
	for _, o := range objs {
		p, err := o.Payload()
		if err != nil {
			return nil, fmt.Errorf("payload %s: %w", o.ID(), err)
		}
		out = append(out, p)
	}
	return out, nil
}

// HasExternalSource reports whether a data payload references its content by
// file path, URL or fetch key rather than carrying it inline.
func HasExternalSource(p models.Payload) bool {
	for _, key := range []string{"read_filepath", "read_url", "fetch"} {
		if p.String("source", key) != "" {
			return true
		}
	}
	return false
}

func (o *Object) inlineRep() (models.Payload, error) {
	if o.materialized {
		return o.inline, o.inlineErr
	}
	o.materialized = true
	switch o.kind {
	case models.KindModel:
		o.inline, o.inlineErr = o.modelString()
	case models.KindMap:
		o.inline, o.inlineErr = o.mapList()
	}
	return o.inline, o.inlineErr
}

func (o *Object) modelString() (models.Payload, error) {
	if v, _ := o.doc.Lookup("source", "filestring", "string"); v != nil {
		return nil, nil
	}
	st, ok := o.obj.(Structure)
	if !ok {
		return nil, fmt.Errorf("%w: model %s", models.ErrNoSource, o.ID())
	}
	suffix := o.doc.String("source", "filestring", "suffix")
	var (
		text string
		err  error
	)
	switch suffix {
	case ".cif", ".mmcif":
		text, err = st.AsMMCIF()
	default:
		text, err = st.AsPDB()
	}
	if err != nil {
		return nil, fmt.Errorf("model %s as %s: %w", o.ID(), suffix, err)
	}
	return models.Payload{"filestring": models.Payload{"string": text}}, nil
}

func (o *Object) mapList() (models.Payload, error) {
	if v, _ := o.doc.Lookup("source", "list", "list_rep"); v != nil {
		return nil, nil
	}
	vol, ok := o.obj.(Volume)
	if !ok {
		return nil, fmt.Errorf("%w: map %s", models.ErrNoSource, o.ID())
	}
	shape := vol.Shape()
	pixels := vol.PixelSizes()
	return models.Payload{"list": models.Payload{
		"list_rep":    vol.Values(),
		"shape":       []any{shape[0], shape[1], shape[2]},
		"pixel_sizes": []any{pixels[0], pixels[1], pixels[2]},
	}}, nil
}

func checkObject(kind string, obj any) error {
	if obj == nil {
		return nil
	}
	switch kind {
	case models.KindModel:
		if _, ok := obj.(Structure); ok {
			return nil
		}
	case models.KindMap:
		if _, ok := obj.(Volume); ok {
			return nil
		}
	case models.KindObject:
		return nil
	}
	return fmt.Errorf("%w: %T for %s", models.ErrUnsupportedObjectType, obj, kind)
}

func deriveSource(kind string, working models.Payload) error {
	known := KnownSuffixes(kind)
	if len(known) == 0 {
		return nil
	}
	if path := working.String("source", "read_filepath"); path != "" {
		if !slices.ContainsFunc(pathSuffixes(path), func(s string) bool { return slices.Contains(known, s) }) {
			return fmt.Errorf("%w: %s", models.ErrUnsupportedSuffix, path)
		}
	}
	if kind != models.KindModel {
		return nil
	}
	v, ok := working.Lookup("source", "filestring", "suffix")
	if !ok || v == nil {
		return nil
	}
	suffix, _ := v.(string)
	normalized, ok := NormalizeSuffix(kind, suffix)
	if !ok {
		return fmt.Errorf("%w: %q", models.ErrUnsupportedSuffix, suffix)
	}
	working.Set(normalized, "source", "filestring", "suffix")
	return nil
}

// NormalizeSuffix maps "pdb", ".pdb" and similar spellings onto a known suffix.
func NormalizeSuffix(kind, suffix string) (string, bool) {
	known := KnownSuffixes(kind)
	for _, s := range []string{suffix, "." + suffix, strings.Trim(suffix, ".")} {
		if slices.Contains(known, s) {
			return s, true
		}
	}
	return "", false
}

// pathSuffixes returns every dotted suffix of the file name, e.g.
// "a.pdb.gz" -> [".pdb", ".gz"].
func pathSuffixes(path string) []string {
	name := filepath.Base(path)
	name = strings.TrimLeft(name, ".")
	parts := strings.Split(name, ".")
	if len(parts) < 2 {
		return nil
	}
	out := make([]string, 0, len(parts)-1)
	for _, p := range parts[1:] {
		out = append(out, "."+p)
	}
	return out
}

// FromFile builds a payload that references the file at path. The kind is
// chosen by suffix, models first; the name defaults to the file name.
func FromFile(path string, overrides models.Payload) (*Object, error) {
	suffixes := pathSuffixes(path)
	for _, kind := range []string{models.KindModel, models.KindMap} {
		known := KnownSuffixes(kind)
		if !slices.ContainsFunc(suffixes, func(s string) bool { return slices.Contains(known, s) }) {
			continue
		}
		doc := models.Merge(models.Payload{"name": filepath.Base(path)}, overrides)
		doc.Set(path, "source", "read_filepath")
		return Build(kind, nil, doc)
	}
	return nil, fmt.Errorf("%w: %s", models.ErrUnsupportedSuffix, path)
}
