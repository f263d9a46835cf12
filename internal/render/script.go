package render

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/golang/glog"
)

// ScriptRenderer writes every command as one line of a ChimeraX command
// script. Opened files are copied into dir so the script stays valid after
// the originals are removed.
type ScriptRenderer struct {
	mu     sync.Mutex
	out    io.Writer
	dir    string
	next   int
	atoms  []Atom
	models []*Model
}

// NewScriptRenderer writes commands to out and keeps copies of opened files
// under dir, which is created if needed.
func NewScriptRenderer(out io.Writer, dir string) (*ScriptRenderer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &ScriptRenderer{out: out, dir: dir}, nil
}

func (s *ScriptRenderer) OpenData(ctx context.Context, location string) ([]*Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	m := &Model{ID: strconv.Itoa(s.next), Name: filepath.Base(location), Location: location}
	m.openedAs = m.Name
	if IsRemote(location) {
		return []*Model{m}, nil
	}

	dst := filepath.Join(s.dir, m.ID+"_"+filepath.Base(location))
	if err := copyFile(dst, location); err != nil {
		s.next--
		return nil, fmt.Errorf("open %s: %w", location, err)
	}
	m.Location = dst

	if strings.EqualFold(filepath.Ext(location), ".pdb") {
		f, err := os.Open(dst)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		m.atoms, err = ReadPDBAtoms(f, m.ID)
		if err != nil {
			glog.Warningf("[render] reading atoms of %s: %v", location, err)
		}
	}
	return []*Model{m}, nil
}

func (s *ScriptRenderer) AddModels(models []*Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range models {
		if err := s.writeLocked("open " + quote(m.Location)); err != nil {
			return err
		}
		if m.Name != "" && m.Name != m.openedAs {
			if err := s.writeLocked(fmt.Sprintf("rename %s %s", m.Spec(), quote(m.Name))); err != nil {
				return err
			}
		}
		s.models = append(s.models, m)
		s.atoms = append(s.atoms, m.atoms...)
	}
	return nil
}

func (s *ScriptRenderer) RunCommand(cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(cmd)
}

func (s *ScriptRenderer) Atoms() []Atom {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Atom(nil), s.atoms...)
}

// Models returns the added models in order.
func (s *ScriptRenderer) Models() []*Model {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Model(nil), s.models...)
}

func (s *ScriptRenderer) writeLocked(line string) error {
	glog.V(2).Infof("[render] %s", line)
	_, err := io.WriteString(s.out, line+"\n")
	return err
}

func quote(path string) string {
	if strings.ContainsAny(path, " \t") {
		return strconv.Quote(path)
	}
	return path
}

func copyFile(dst, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// ReadPDBAtoms extracts ATOM and HETATM coordinates from PDB text.
func ReadPDBAtoms(r io.Reader, modelID string) ([]Atom, error) {
	var atoms []Atom
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "ATOM") && !strings.HasPrefix(line, "HETATM") {
			continue
		}
		if len(line) < 54 {
			continue
		}
		var coord [3]float64
		ok := true
		for i := 0; i < 3; i++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(line[30+8*i:38+8*i]), 64)
			if err != nil {
				ok = false
				break
			}
			coord[i] = v
		}
		if !ok {
			continue
		}
		resnum, _ := strconv.Atoi(strings.TrimSpace(line[22:26]))
		atoms = append(atoms, Atom{
			Coord:         coord,
			ModelID:       modelID,
			Chain:         strings.TrimSpace(line[21:22]),
			ResidueNumber: resnum,
			Name:          strings.TrimSpace(line[12:16]),
		})
	}
	return atoms, sc.Err()
}
