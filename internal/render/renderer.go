// Package render defines the command surface the sync engine drives and a
// renderer that writes those commands out as a ChimeraX script.
package render

import (
	"context"
	"strings"
)

// Model is a renderable opened by a Renderer.
type Model struct {
	ID string // renderer-side id, addressed as "#<ID>"
	// Name is shown by the renderer. Callers may change it before AddModels.
	Name     string
	Location string

	openedAs string // Name assigned by OpenData
	atoms    []Atom
}

// Spec returns the command-line specifier of the model.
func (m *Model) Spec() string { return "#" + m.ID }

// Atom is one atom of an added model, used for focus resolution.
type Atom struct {
	Coord         [3]float64
	ModelID       string
	Chain         string
	ResidueNumber int
	Name          string
}

// Renderer consumes opened data and string commands.
type Renderer interface {
	// OpenData loads the file, URL or fetch key at location. The returned
	// models are not shown until AddModels.
	OpenData(ctx context.Context, location string) ([]*Model, error)
	AddModels(models []*Model) error
	RunCommand(cmd string) error
	// Atoms returns the atoms of every added model.
	Atoms() []Atom
}

// IsRemote reports whether location is a URL or fetch key rather than a
// local file.
func IsRemote(location string) bool {
	return strings.Contains(location, "://") || strings.HasPrefix(location, "pdb:") || strings.HasPrefix(location, "emdb:")
}
