package payload

import "fmt"

// TextStructure is a Structure backed by coordinate text already held in
// memory in one format.
type TextStructure struct {
	Text   string
	Suffix string
}

func (t TextStructure) AsPDB() (string, error) {
	switch t.Suffix {
	case ".pdb", ".mol", "":
		return t.Text, nil
	}
	return "", fmt.Errorf("structure held as %s, not PDB", t.Suffix)
}

func (t TextStructure) AsMMCIF() (string, error) {
	switch t.Suffix {
	case ".cif", ".mmcif":
		return t.Text, nil
	}
	return "", fmt.Errorf("structure held as %s, not mmCIF", t.Suffix)
}

// Grid is a Volume over an in-memory float32 grid.
type Grid struct {
	Data   []float32
	Dims   [3]int
	Pixels [3]float64
}

func (g Grid) Values() []float32      { return g.Data }
func (g Grid) Shape() [3]int          { return g.Dims }
func (g Grid) PixelSizes() [3]float64 { return g.Pixels }
