package payload

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Vasu1712/scenesync/internal/models"
)

// SceneOptions controls ComposeScene.
type SceneOptions struct {
	// ID of the scene; a new UUID when empty.
	ID          string
	Colors      []models.Payload
	Styles      []models.Payload
	Focus       models.Payload
	Environment models.Payload
	// ReferencesOnly stores {id, object} stubs in data instead of full
	// payloads. The server must already hold the referenced data.
	ReferencesOnly bool
	// SkipDefaultColors disables palette assignment.
	SkipDefaultColors bool
}

// ComposeScene assembles a scene from data payloads. Data keeps the order of
// parts. Explicit colors and styles are appended, focus and environment are
// merged over their templates, and default colors are then assigned over the
// final data order.
func ComposeScene(parts []models.Payload, opts SceneOptions) (models.Payload, error) {
	scene := sceneTemplate()
	scene["id"] = opts.ID
	if opts.ID == "" {
		scene["id"] = uuid.NewString()
	}

	data := make([]any, 0, len(parts))
	for _, p := range parts {
		switch p.Kind() {
		case models.KindModel, models.KindMap:
		default:
			return nil, fmt.Errorf("%w: scene data of kind %q", models.ErrUnsupportedObjectType, p.Kind())
		}
		if p.ID() == "" {
			return nil, fmt.Errorf("%w: data without id", models.ErrMalformedScene)
		}
		if opts.ReferencesOnly {
			data = append(data, p.Stub())
		} else {
			data = append(data, p.Clone())
		}
	}
	scene["data"] = data
	scene["colors"] = appendDocs(nil, opts.Colors)
	scene["styles"] = appendDocs(nil, opts.Styles)
	scene["focus"] = models.Merge(FocusTemplate(), opts.Focus)
	scene["environment"] = models.Merge(EnvironmentTemplate(), opts.Environment)

	if !opts.SkipDefaultColors {
		ApplyDefaultColors(scene)
	}
	return scene, nil
}

// ComposeObjects builds the payloads of objs and composes them into a scene.
func ComposeObjects(objs []*Object, opts SceneOptions) (models.Payload, error) {
	parts, err := Payloads(objs...)
	if err != nil {
		return nil, err
	}
	return ComposeScene(parts, opts)
}

// CopyScene returns scene merged over the scene template. The id and every
// other field of scene are preserved.
func CopyScene(scene models.Payload) models.Payload {
	return models.Merge(sceneTemplate(), scene)
}

// ApplyDefaultColors appends a palette color for every model and map in the
// scene's data that has no explicit color yet. Each object gets the first
// palette entry not already in use, explicit colors included. Once a palette
// is exhausted the remaining objects get a directive with a null color.
func ApplyDefaultColors(scene models.Payload) {
	s := models.AsScene(scene)
	colored := map[string]bool{}
	taken := map[string]bool{}
	for _, c := range s.Colors() {
		if color := c.String("color"); color != "" {
			colored[c.ID()] = true
			taken[strings.ToUpper(color)] = true
		}
	}

	palettes := map[string][]string{
		models.KindModel: modelPalette,
		models.KindMap:   mapPalette,
	}
	var added []models.Payload
	for _, kind := range []string{models.KindModel, models.KindMap} {
		for _, d := range s.Data() {
			if d.Kind() != kind || colored[d.ID()] {
				continue
			}
			colored[d.ID()] = true
			color := ""
			for _, candidate := range palettes[kind] {
				if !taken[strings.ToUpper(candidate)] {
					color = candidate
					break
				}
			}
			if color == "" {
				added = append(added, models.Payload{"id": d.ID(), "color": nil, "selection": nil})
				continue
			}
			taken[strings.ToUpper(color)] = true
			added = append(added, Color(d.ID(), color, ""))
		}
	}
	colors, _ := models.AsList(scene["colors"])
	scene["colors"] = appendDocs(colors, added)
}

// DefaultColors returns the id -> color mapping ApplyDefaultColors would
// produce for data. Uncolored entries map to "".
func DefaultColors(data []models.Payload) map[string]string {
	scene := models.Payload{"data": appendDocs(nil, data), "colors": []any{}}
	ApplyDefaultColors(scene)
	out := map[string]string{}
	for _, c := range models.AsScene(scene).Colors() {
		color, _ := c["color"].(string)
		out[c.ID()] = color
	}
	return out
}

func appendDocs(dst []any, docs []models.Payload) []any {
	if dst == nil {
		dst = []any{}
	}
	for _, d := range docs {
		dst = append(dst, d.Clone())
	}
	return dst
}
