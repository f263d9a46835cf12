// Package scenes exposes the scene store as a remote service: the call-by-name
// method table served by the transport daemon, a typed client stub for it, and
// the websocket route pushing scene change events.
package scenes

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/Vasu1712/scenesync/internal/models"
	"github.com/Vasu1712/scenesync/internal/storage/memory"
	"github.com/Vasu1712/scenesync/internal/transport"
	"github.com/Vasu1712/scenesync/internal/ws"
)

// Wire names of the scene service methods.
const (
	MethodRetrieveData    = "retrieveData"
	MethodAddData         = "addData"
	MethodHasData         = "hasData"
	MethodCurrentScene    = "currentScene"
	MethodSetCurrentScene = "setCurrentScene"
	MethodRetrieveScene   = "retrieveScene"
	MethodAddScene        = "addScene"
	MethodUpdateFocus     = "updateFocus"
	MethodListScenes      = "listScenes"
)

// SceneHandler holds the dependencies for serving the scene store remotely.
type SceneHandler struct {
	Store *memory.SceneStore
	Hub   *ws.Hub // optional; receives an event after every scene mutation
	Topic string  // object id the service is registered under
}

type idArgs struct {
	ID string `json:"id"`
}

type payloadArgs struct {
	Payload json.RawMessage `json:"payload"`
}

type sceneArgs struct {
	Scene      json.RawMessage `json:"scene"`
	SetCurrent *bool           `json:"set_current,omitempty"`
}

type focusArgs struct {
	Focus models.Payload `json:"focus"`
}

// Methods implements transport.Service.
func (h *SceneHandler) Methods() map[string]transport.Method {
	return map[string]transport.Method{
		MethodRetrieveData:    h.retrieveData,
		MethodAddData:         h.addData,
		MethodHasData:         h.hasData,
		MethodCurrentScene:    h.currentScene,
		MethodSetCurrentScene: h.setCurrentScene,
		MethodRetrieveScene:   h.retrieveScene,
		MethodAddScene:        h.addScene,
		MethodUpdateFocus:     h.updateFocus,
		MethodListScenes:      h.listScenes,
	}
}

func (h *SceneHandler) retrieveData(_ context.Context, args json.RawMessage) (any, error) {
	var req idArgs
	if err := transport.DecodeArgs(args, &req); err != nil {
		return nil, err
	}
	if d, ok := h.Store.RetrieveData(req.ID); ok {
		return d, nil
	}
	return nil, nil
}

func (h *SceneHandler) addData(_ context.Context, args json.RawMessage) (any, error) {
	var req payloadArgs
	if err := transport.DecodeArgs(args, &req); err != nil {
		return nil, err
	}
	if err := models.ValidateData(req.Payload); err != nil {
		return nil, err
	}
	p, err := models.Decode(req.Payload)
	if err != nil {
		return nil, err
	}
	return h.Store.AddData(p)
}

func (h *SceneHandler) hasData(_ context.Context, args json.RawMessage) (any, error) {
	var req idArgs
	if err := transport.DecodeArgs(args, &req); err != nil {
		return nil, err
	}
	return h.Store.HasData(req.ID), nil
}

func (h *SceneHandler) currentScene(_ context.Context, _ json.RawMessage) (any, error) {
	if s, ok := h.Store.CurrentScene(); ok {
		return s, nil
	}
	return nil, nil
}

func (h *SceneHandler) setCurrentScene(_ context.Context, args json.RawMessage) (any, error) {
	var req sceneArgs
	if err := transport.DecodeArgs(args, &req); err != nil {
		return nil, err
	}
	scene, err := h.decodeScene(req.Scene, true)
	if err != nil {
		return nil, err
	}
	stored, err := h.Store.SetCurrentScene(scene)
	if err != nil {
		return nil, err
	}
	h.notify(stored)
	return nil, nil
}

func (h *SceneHandler) retrieveScene(_ context.Context, args json.RawMessage) (any, error) {
	var req idArgs
	if err := transport.DecodeArgs(args, &req); err != nil {
		return nil, err
	}
	if s, ok := h.Store.RetrieveScene(req.ID); ok {
		return s, nil
	}
	return nil, nil
}

func (h *SceneHandler) addScene(_ context.Context, args json.RawMessage) (any, error) {
	var req sceneArgs
	if err := transport.DecodeArgs(args, &req); err != nil {
		return nil, err
	}
	scene, err := h.decodeScene(req.Scene, false)
	if err != nil {
		return nil, err
	}
	setCurrent := req.SetCurrent == nil || *req.SetCurrent
	stored, err := h.Store.AddScene(scene, setCurrent)
	if err != nil {
		return nil, err
	}
	h.notify(stored)
	return true, nil
}

func (h *SceneHandler) updateFocus(_ context.Context, args json.RawMessage) (any, error) {
	var req focusArgs
	if err := transport.DecodeArgs(args, &req); err != nil {
		return nil, err
	}
	stored, err := h.Store.UpdateFocus(req.Focus)
	if err != nil {
		return nil, err
	}
	h.notify(stored)
	return nil, nil
}

func (h *SceneHandler) listScenes(_ context.Context, _ json.RawMessage) (any, error) {
	return h.Store.ListScenes(), nil
}

// decodeScene validates raw as a full scene document. A bare {id} naming an
// already stored scene is accepted when byID is set.
func (h *SceneHandler) decodeScene(raw json.RawMessage, byID bool) (models.Payload, error) {
	p, err := models.Decode(raw)
	if err != nil {
		return nil, err
	}
	if byID && p != nil {
		if _, ok := h.Store.RetrieveScene(p.ID()); ok {
			return p, nil
		}
	}
	if err := models.ValidateScene(raw); err != nil {
		return nil, err
	}
	return p, nil
}

func (h *SceneHandler) notify(stored models.Payload) {
	if h.Hub == nil {
		return
	}
	h.Hub.Notify(h.Topic, ws.SceneEvent{
		SceneID:  stored.ID(),
		Revision: models.AsScene(stored).Revision(),
	})
}

var sceneUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS subscribes the caller to scene events of the service named by the
// "service" query parameter.
func (h *SceneHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("service")
	if topic == "" {
		http.Error(w, "service is required", http.StatusBadRequest)
		return
	}
	if h.Hub == nil || topic != h.Topic {
		http.Error(w, "unknown service", http.StatusNotFound)
		return
	}
	select {
	case <-h.Hub.Done():
		http.Error(w, "scene feed stopped", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := sceneUpgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Warningf("[scene] websocket upgrade for %s: %v", topic, err)
		return
	}
	glog.V(1).Infof("[scene] subscriber %s joined %s", r.RemoteAddr, topic)

	client := &ws.Client{
		Topic: topic,
		Send:  make(chan []byte, 16),
		Conn:  conn,
	}
	if !h.Hub.Subscribe(client) {
		conn.Close()
		return
	}

	// Read pump: only detects disconnects; subscribers send nothing.
	go func() {
		defer func() {
			h.Hub.Unsubscribe(client)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					glog.V(1).Infof("[scene] subscriber %s: %v", r.RemoteAddr, err)
				}
				return
			}
		}
	}()

	// Write pump
	go func() {
		defer conn.Close()
		for message := range client.Send {
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				glog.V(1).Infof("[scene] write to %s: %v", r.RemoteAddr, err)
				return
			}
		}
	}()
}
