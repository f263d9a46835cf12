// Package payload builds the model, map and scene documents exchanged with the
// scene server. Every document starts from a fixed per-kind template and is
// completed by a deep merge of caller overrides.
package payload

import "github.com/Vasu1712/scenesync/internal/models"

var (
	modelSuffixes = []string{".pdb", ".cif", ".mmcif", ".mol"}
	mapSuffixes   = []string{".ccp4", ".mrc", ".map"}

	// Preferred default colors, assigned in this order.
	modelPalette = []string{"#3465A4", "#761c94"}
	mapPalette   = []string{"#B0B0B0", "#3d3a3a", "#6e1710", "#3f8f6f"}
)

// Template returns a fresh copy of the template for kind.
func Template(kind string) (models.Payload, bool) {
	switch kind {
	case models.KindObject:
		return objectTemplate(), true
	case models.KindModel:
		return modelTemplate(), true
	case models.KindMap:
		return mapTemplate(), true
	case models.KindScene:
		return sceneTemplate(), true
	}
	return nil, false
}

// KnownSuffixes returns the file suffixes accepted for kind.
func KnownSuffixes(kind string) []string {
	switch kind {
	case models.KindModel:
		return append([]string(nil), modelSuffixes...)
	case models.KindMap:
		return append([]string(nil), mapSuffixes...)
	}
	return nil
}

func objectTemplate() models.Payload {
	return models.Payload{
		"id":     nil,
		"object": models.KindObject,
	}
}

func modelTemplate() models.Payload {
	return models.Payload{
		"id":       nil,
		"object":   models.KindModel,
		"name":     "model",
		"database": models.Payload{"pdb": nil},
		"source": models.Payload{
			"read_filepath": nil,
			"read_url":      nil,
			"fetch":         nil,
			"filestring": models.Payload{
				"string": nil,
				"suffix": ".pdb",
			},
		},
		"destination": models.Payload{
			"write_filepath": nil,
			"suffix":         ".mmcif",
		},
	}
}

func mapTemplate() models.Payload {
	return models.Payload{
		"id":       nil,
		"object":   models.KindMap,
		"name":     "map",
		"database": models.Payload{"emdb": nil},
		"source": models.Payload{
			"read_filepath": nil,
			"read_url":      nil,
			"fetch":         nil,
			"list": models.Payload{
				"list_rep":    nil, // flattened, row-major
				"dtype":       "float32",
				"shape":       []any{},
				"pixel_sizes": []any{},
			},
			"shift_cart": []any{},
		},
		"destination": models.Payload{
			"write_filepath": nil,
			"suffix":         ".mrc",
		},
	}
}

func sceneTemplate() models.Payload {
	return models.Payload{
		"id":          nil,
		"object":      models.KindScene,
		"revision":    0,
		"data":        []any{},
		"colors":      []any{},
		"styles":      []any{},
		"focus":       FocusTemplate(),
		"environment": EnvironmentTemplate(),
	}
}

// FocusTemplate is the default focus directive. xyz_expand is one of
// "model", "chain", "residue" or "atom"; unset means residue.
func FocusTemplate() models.Payload {
	return models.Payload{
		"id":         nil,
		"selection":  nil,
		"xyz":        nil,
		"xyz_expand": nil,
	}
}

// EnvironmentTemplate is the default scene-wide environment.
func EnvironmentTemplate() models.Payload {
	return models.Payload{
		"background_color": "#FFFFFF",
		"lighting":         "full",
	}
}

// Color returns a color directive. selection may be empty.
func Color(id, color, selection string) models.Payload {
	return models.Payload{"id": id, "color": color, "selection": nullable(selection)}
}

// Style returns a style directive; style is "ribbon", "sphere" or "stick".
func Style(id, style, selection string) models.Payload {
	return models.Payload{"id": id, "style": style, "selection": nullable(selection)}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
