package client

import (
	"fmt"

	"github.com/Vasu1712/scenesync/internal/render"
)

// atomIndex answers nearest-atom queries over a snapshot of the renderer's
// atoms. It is rebuilt after models are added.
type atomIndex struct {
	atoms []render.Atom
}

func newAtomIndex(atoms []render.Atom) *atomIndex {
	return &atomIndex{atoms: atoms}
}

func (ix *atomIndex) nearest(p [3]float64) (render.Atom, bool) {
	if len(ix.atoms) == 0 {
		return render.Atom{}, false
	}
	best, bestD := 0, dist2(ix.atoms[0].Coord, p)
	for i := 1; i < len(ix.atoms); i++ {
		if d := dist2(ix.atoms[i].Coord, p); d < bestD {
			best, bestD = i, d
		}
	}
	return ix.atoms[best], true
}

func dist2(a, b [3]float64) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return dx*dx + dy*dy + dz*dz
}

// expand widens an atom to the selection named by mode: "model", "chain",
// "residue" (the default) or "atom".
func expand(a render.Atom, mode string) string {
	switch mode {
	case "model":
		return "#" + a.ModelID
	case "chain":
		return fmt.Sprintf("#%s/%s", a.ModelID, a.Chain)
	case "atom":
		return fmt.Sprintf("#%s/%s:%d@%s", a.ModelID, a.Chain, a.ResidueNumber, a.Name)
	}
	return fmt.Sprintf("#%s/%s:%d", a.ModelID, a.Chain, a.ResidueNumber)
}
