package memory

import (
	"fmt"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/exp/slices"

	"github.com/Vasu1712/scenesync/internal/models"
)

// SceneStore is the authoritative in-memory scene state of a server: stored
// scenes by id, data objects by id, and the current scene.
//
// Scenes are last-write-wins by id. Data objects are first-write-wins: once
// published a data payload is immutable. Every stored scene gets a new
// revision from a store-wide counter so clients can detect changes that keep
// the scene id, such as focus updates.
type SceneStore struct {
	mu       sync.RWMutex              // Guards every field below
	scenes   map[string]models.Payload // sceneID -> scene payload
	data     map[string]models.Payload // dataID -> model or map payload
	current  string                    // Current scene id, "" when unset
	revision uint64                    // Last revision handed out
}

// NewSceneStore creates and returns a new, empty SceneStore.
func NewSceneStore() *SceneStore {
	return &SceneStore{
		scenes: make(map[string]models.Payload),
		data:   make(map[string]models.Payload),
	}
}

// AddScene stores scene under its id and flattens its data entries into the
// data map without overwriting entries already present. When setCurrent is
// true the scene becomes the current scene.
//
// A scene that references data by stub which is neither carried in full by
// the scene nor already stored is rejected with ErrMalformedScene, and the
// store is left unchanged.
func (s *SceneStore) AddScene(scene models.Payload, setCurrent bool) (models.Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addSceneLocked(scene, setCurrent)
}

func (s *SceneStore) addSceneLocked(scene models.Payload, setCurrent bool) (models.Payload, error) {
	sceneID := scene.ID()
	if sceneID == "" {
		return nil, fmt.Errorf("%w: scene without id", models.ErrMalformedScene)
	}
	if kind := scene.Kind(); kind != "" && kind != models.KindScene {
		return nil, fmt.Errorf("%w: object %q is not a scene", models.ErrMalformedScene, kind)
	}

	// validate before mutating anything
	full := map[string]models.Payload{}
	var order []string
	for _, d := range models.AsScene(scene).Data() {
		id := d.ID()
		if id == "" {
			return nil, fmt.Errorf("%w: scene %s has data without id", models.ErrMalformedScene, sceneID)
		}
		if !slices.Contains(order, id) {
			order = append(order, id)
		}
		if _, seen := full[id]; !seen && !d.IsStub() {
			full[id] = d
		}
	}
	for _, id := range order {
		if _, ok := full[id]; ok {
			continue
		}
		if _, ok := s.data[id]; !ok {
			return nil, fmt.Errorf("%w: scene %s references unknown data %s", models.ErrMalformedScene, sceneID, id)
		}
	}

	for _, id := range order {
		d, ok := full[id]
		if !ok {
			continue
		}
		if _, exists := s.data[id]; !exists {
			s.data[id] = d.Clone()
		}
	}

	stored := scene.Clone()
	s.revision++
	stored["revision"] = s.revision
	s.scenes[sceneID] = stored
	if setCurrent {
		s.current = sceneID
	}

	glog.V(1).Infof("[scene] stored scene=%s revision=%d data=%d current=%t", sceneID, s.revision, len(order), setCurrent)
	return stored.Clone(), nil
}

// SetCurrentScene makes scene current. A scene not yet stored is added first;
// for a known id the stored scene becomes current.
func (s *SceneStore) SetCurrentScene(scene models.Payload) (models.Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stored, ok := s.scenes[scene.ID()]; ok {
		s.current = scene.ID()
		return stored.Clone(), nil
	}
	return s.addSceneLocked(scene, true)
}

// CurrentScene returns the current scene, if any.
func (s *SceneStore) CurrentScene() (models.Payload, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == "" {
		return nil, false
	}
	return s.scenes[s.current].Clone(), true
}

// RetrieveScene retrieves a stored scene by its ID.
func (s *SceneStore) RetrieveScene(sceneID string) (models.Payload, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scene, ok := s.scenes[sceneID]
	if !ok {
		return nil, false
	}
	return scene.Clone(), true
}

// ListScenes returns the ids of all stored scenes, sorted.
func (s *SceneStore) ListScenes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.scenes))
	for id := range s.scenes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// AddData stores a data payload unless one with the same id exists. It
// reports whether the payload was stored.
func (s *SceneStore) AddData(p models.Payload) (bool, error) {
	id := p.ID()
	if id == "" {
		return false, fmt.Errorf("%w: data without id", models.ErrUnsupportedObjectType)
	}
	switch p.Kind() {
	case models.KindModel, models.KindMap:
	default:
		return false, fmt.Errorf("%w: %q", models.ErrUnsupportedObjectType, p.Kind())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[id]; exists {
		glog.V(1).Infof("[scene] data %s already stored, keeping first", id)
		return false, nil
	}
	s.data[id] = p.Clone()
	return true, nil
}

// HasData reports whether the data object id is stored. With an empty id it
// reports whether any data is stored.
func (s *SceneStore) HasData(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id == "" {
		return len(s.data) > 0
	}
	_, ok := s.data[id]
	return ok
}

// RetrieveData retrieves a data payload by its ID.
func (s *SceneStore) RetrieveData(id string) (models.Payload, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.data[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// UpdateFocus replaces the current scene with a copy whose focus is focus.
// The copy keeps the scene id, gets a new revision and becomes current.
func (s *SceneStore) UpdateFocus(focus models.Payload) (models.Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == "" {
		return nil, models.ErrNoCurrentScene
	}
	next := s.scenes[s.current].Clone()
	next["focus"] = focus.Clone()
	return s.addSceneLocked(next, true)
}
