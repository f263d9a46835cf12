package render

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pdbText = `HEADER    TEST
ATOM      1  N   ALA A  12      11.104   6.134  -6.504  1.00  0.00           N
ATOM      2  CA  ALA A  12      11.639   6.071  -5.147  1.00  0.00           C
HETATM    3  O   HOH B 101       1.000   2.000   3.000  1.00  0.00           O
TER
END
`

func TestReadPDBAtoms(t *testing.T) {
	atoms, err := ReadPDBAtoms(strings.NewReader(pdbText), "1")
	require.NoError(t, err)
	require.Len(t, atoms, 3)

	assert.Equal(t, Atom{Coord: [3]float64{11.104, 6.134, -6.504}, ModelID: "1", Chain: "A", ResidueNumber: 12, Name: "N"}, atoms[0])
	assert.Equal(t, "CA", atoms[1].Name)
	assert.Equal(t, "B", atoms[2].Chain)
	assert.Equal(t, 101, atoms[2].ResidueNumber)
}

func TestScriptRenderer(t *testing.T) {
	src := t.TempDir()
	path := filepath.Join(src, "model one.pdb")
	require.NoError(t, os.WriteFile(path, []byte(pdbText), 0o644))

	var script bytes.Buffer
	r, err := NewScriptRenderer(&script, filepath.Join(t.TempDir(), "work"))
	require.NoError(t, err)
	ctx := context.Background()

	models, err := r.OpenData(ctx, path)
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "#1", models[0].Spec())
	assert.Empty(t, r.Atoms(), "atoms appear only once models are added")

	// the original may go away once opened
	require.NoError(t, os.Remove(path))
	require.NoError(t, r.AddModels(models))
	assert.Len(t, r.Atoms(), 3)

	remote, err := r.OpenData(ctx, "pdb:1abc")
	require.NoError(t, err)
	assert.Equal(t, "#2", remote[0].Spec())
	require.NoError(t, r.AddModels(remote))
	require.NoError(t, r.RunCommand("color #1 #3465A4"))

	lines := strings.Split(strings.TrimSpace(script.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], `open "`))
	assert.Contains(t, lines[0], "1_model one.pdb")
	assert.Equal(t, "open pdb:1abc", lines[1])
	assert.Equal(t, "color #1 #3465A4", lines[2])
	assert.Len(t, r.Models(), 2)

	_, err = r.OpenData(ctx, filepath.Join(src, "missing.pdb"))
	assert.Error(t, err)
	next, err := r.OpenData(ctx, "https://files.example/x.cif")
	require.NoError(t, err)
	assert.Equal(t, "3", next[0].ID, "failed opens do not consume ids")
}

func TestScriptRendererRenames(t *testing.T) {
	var script bytes.Buffer
	r, err := NewScriptRenderer(&script, t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	named, err := r.OpenData(ctx, "pdb:1abc")
	require.NoError(t, err)
	named[0].Name = "apo form"
	kept, err := r.OpenData(ctx, "emdb:1234")
	require.NoError(t, err)
	require.NoError(t, r.AddModels(append(named, kept...)))

	assert.Equal(t, []string{
		"open pdb:1abc",
		`rename #1 "apo form"`,
		"open emdb:1234",
	}, strings.Split(strings.TrimSpace(script.String()), "\n"))
}

func TestWriteMRC(t *testing.T) {
	values := []float32{0, 1, 2, 3, 4, 5}
	var buf bytes.Buffer
	require.NoError(t, WriteMRC(&buf, values, [3]int{1, 2, 3}, [3]float64{1, 1, 0.5}))

	data := buf.Bytes()
	require.Len(t, data, 1024+4*len(values))
	word := func(i int) uint32 { return binary.LittleEndian.Uint32(data[4*i:]) }
	float := func(i int) float32 { return math.Float32frombits(word(i)) }

	assert.Equal(t, uint32(3), word(0), "nx is the fastest axis")
	assert.Equal(t, uint32(2), word(1))
	assert.Equal(t, uint32(1), word(2))
	assert.Equal(t, uint32(2), word(3))
	assert.Equal(t, float32(1.5), float(10))
	assert.Equal(t, float32(0), float(19))
	assert.Equal(t, float32(5), float(20))
	assert.Equal(t, float32(2.5), float(21))
	assert.Equal(t, "MAP ", string(data[52*4:53*4]))
	assert.Equal(t, float32(5), math.Float32frombits(binary.LittleEndian.Uint32(data[1024+20:])))

	assert.Error(t, WriteMRC(&buf, values, [3]int{2, 2, 2}, [3]float64{1, 1, 1}))
	assert.Error(t, WriteMRC(&buf, nil, [3]int{0, 1, 1}, [3]float64{1, 1, 1}))
}
