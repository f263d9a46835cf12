package client

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Vasu1712/scenesync/internal/models"
	"github.com/Vasu1712/scenesync/internal/render"
)

// open hands a data payload to the renderer. External sources are opened
// directly; inline content goes through a temporary file that is removed
// before open returns.
func (e *Engine) open(ctx context.Context, p models.Payload) ([]*render.Model, error) {
	if loc := location(p); loc != "" {
		return e.renderer.OpenData(ctx, loc)
	}

	src := p.Doc("source")
	switch p.Kind() {
	case models.KindModel:
		text := src.String("filestring", "string")
		if text == "" {
			break
		}
		suffix := src.String("filestring", "suffix")
		if suffix == "" {
			suffix = ".pdb"
		}
		return e.openTemp(ctx, suffix, func(w io.Writer) error {
			_, err := io.WriteString(w, text)
			return err
		})
	case models.KindMap:
		list := src.Doc("list")
		if v, _ := list.Lookup("list_rep"); v == nil {
			break
		}
		values, shape, pixels, err := grid(list)
		if err != nil {
			return nil, fmt.Errorf("map %s: %w", p.ID(), err)
		}
		return e.openTemp(ctx, ".mrc", func(w io.Writer) error {
			return render.WriteMRC(w, values, shape, pixels)
		})
	}
	return nil, fmt.Errorf("%w: %s", models.ErrNoSource, p.ID())
}

// location returns the file path, URL or fetch key of p, empty when the
// content is inline.
func location(p models.Payload) string {
	if path := p.String("source", "read_filepath"); path != "" {
		return path
	}
	if url := p.String("source", "read_url"); url != "" {
		return url
	}
	key := p.String("source", "fetch")
	if key == "" || strings.Contains(key, ":") {
		return key
	}
	if p.Kind() == models.KindMap {
		return "emdb:" + key
	}
	return "pdb:" + key
}

func (e *Engine) openTemp(ctx context.Context, suffix string, write func(io.Writer) error) ([]*render.Model, error) {
	f, err := os.CreateTemp(e.opts.WorkDir, "scenesync-*"+suffix)
	if err != nil {
		return nil, err
	}
	defer os.Remove(f.Name())

	if err := write(f); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return e.renderer.OpenData(ctx, f.Name())
}

func grid(list models.Payload) ([]float32, [3]int, [3]float64, error) {
	var (
		shape  [3]int
		pixels = [3]float64{1, 1, 1}
	)
	rawValues, _ := list.Lookup("list_rep")
	values, err := float32s(rawValues)
	if err != nil {
		return nil, shape, pixels, fmt.Errorf("list_rep: %w", err)
	}

	rawShape, _ := list.Lookup("shape")
	dims, err := float64s(rawShape)
	if err != nil || len(dims) != 3 {
		return nil, shape, pixels, fmt.Errorf("shape %v is not three dimensional", rawShape)
	}
	for i, d := range dims {
		shape[i] = int(d)
	}

	if rawPixels, _ := list.Lookup("pixel_sizes"); rawPixels != nil {
		sizes, err := float64s(rawPixels)
		if err != nil || len(sizes) != 3 {
			return nil, shape, pixels, fmt.Errorf("pixel_sizes %v is not three dimensional", rawPixels)
		}
		copy(pixels[:], sizes)
	}
	return values, shape, pixels, nil
}

func float32s(v any) ([]float32, error) {
	if f, ok := v.([]float32); ok {
		return f, nil
	}
	f64, err := float64s(v)
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(f64))
	for i, x := range f64 {
		out[i] = float32(x)
	}
	return out, nil
}

func float64s(v any) ([]float64, error) {
	switch t := v.(type) {
	case []float64:
		return t, nil
	case []float32:
		out := make([]float64, len(t))
		for i, x := range t {
			out[i] = float64(x)
		}
		return out, nil
	case []int:
		out := make([]float64, len(t))
		for i, x := range t {
			out[i] = float64(x)
		}
		return out, nil
	case []any:
		out := make([]float64, len(t))
		for i, x := range t {
			switch n := x.(type) {
			case float64:
				out[i] = n
			case float32:
				out[i] = float64(n)
			case int:
				out[i] = float64(n)
			default:
				return nil, fmt.Errorf("element %d is %T", i, x)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("unexpected %T", v)
}
