// Package transport is the remote object layer: a daemon that exposes
// registered service objects over HTTP as call-by-name methods, and a proxy
// that calls them. Requests are synchronous, JSON encoded, and never retried.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"
	"github.com/oklog/ulid/v2"

	"github.com/Vasu1712/scenesync/internal/models"
)

// RequestIDHeader carries the per-call correlation id.
const RequestIDHeader = "X-Request-Id"

const maxRequestBytes = 512 << 20

// Method is a remotely callable method. args is the raw JSON argument
// object, "{}" when the caller sent none.
type Method func(ctx context.Context, args json.RawMessage) (any, error)

// Service is an object whose methods can be exposed by a Daemon.
type Service interface {
	Methods() map[string]Method
}

// ErrUnknownMethod is returned for calls to unregistered objects or methods.
var ErrUnknownMethod = errors.New("unknown method")

// Daemon dispatches incoming calls to registered service objects.
type Daemon struct {
	mu      sync.RWMutex
	objects map[string]map[string]Method // objectID -> method name -> method
	base    string                       // Advertised base URL, e.g. http://127.0.0.1:9090
}

// NewDaemon creates a daemon whose object URIs are rooted at base.
func NewDaemon(base string) *Daemon {
	return &Daemon{
		objects: make(map[string]map[string]Method),
		base:    strings.TrimRight(base, "/"),
	}
}

// Register exposes svc under a new object id and returns its URI.
func (d *Daemon) Register(svc Service) string {
	return d.RegisterAs(uuid.NewString(), svc)
}

// RegisterAs exposes svc under objectID, replacing any previous object, and
// returns its URI.
func (d *Daemon) RegisterAs(objectID string, svc Service) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.objects[objectID] = svc.Methods()
	return d.URI(objectID)
}

// Unregister removes the object with the given id.
func (d *Daemon) Unregister(objectID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.objects, objectID)
}

// URI returns the address clients use to reach objectID.
func (d *Daemon) URI(objectID string) string {
	return d.base + "/rpc/" + objectID
}

// ObjectID extracts the object id from a URI produced by this daemon.
func ObjectID(uri string) string {
	i := strings.LastIndex(uri, "/rpc/")
	if i < 0 {
		return ""
	}
	return strings.Trim(uri[i+len("/rpc/"):], "/")
}

// Routes registers the call endpoint on r.
func (d *Daemon) Routes(r *mux.Router) {
	r.HandleFunc("/rpc/{object}/{method}", d.handleCall).Methods(http.MethodPost)
}

// Handler returns a compressed handler serving only the daemon's routes.
func (d *Daemon) Handler() http.Handler {
	r := mux.NewRouter()
	d.Routes(r)
	return gzhttp.GzipHandler(r)
}

func (d *Daemon) lookup(objectID, name string) (Method, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	methods, ok := d.objects[objectID]
	if !ok {
		return nil, false
	}
	m, ok := methods[name]
	return m, ok
}

type wireError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type callResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *wireError      `json:"error,omitempty"`
}

func (d *Daemon) handleCall(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	objectID, name := vars["object"], vars["method"]

	reqID := r.Header.Get(RequestIDHeader)
	if reqID == "" {
		reqID = ulid.Make().String()
	}
	w.Header().Set(RequestIDHeader, reqID)

	method, ok := d.lookup(objectID, name)
	if !ok {
		glog.Warningf("[rpc] %s unknown %s.%s", reqID, objectID, name)
		writeError(w, http.StatusNotFound, &wireError{Kind: "unknown_method", Message: fmt.Sprintf("%s: %s.%s", ErrUnknownMethod, objectID, name)})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, &wireError{Kind: "internal", Message: "read request: " + err.Error()})
		return
	}
	args := json.RawMessage(body)
	if len(strings.TrimSpace(string(body))) == 0 {
		args = json.RawMessage("{}")
	}

	glog.V(2).Infof("[rpc] %s -> %s.%s (%d bytes)", reqID, objectID, name, len(body))
	result, err := method(r.Context(), args)
	if err != nil {
		kind := models.ErrorKind(err)
		if kind == "internal" {
			glog.Errorf("[rpc] %s %s.%s failed: %v", reqID, objectID, name, err)
		} else {
			glog.V(1).Infof("[rpc] %s %s.%s: %v", reqID, objectID, name, err)
		}
		writeError(w, statusFor(kind), &wireError{Kind: kind, Message: err.Error()})
		return
	}

	raw, err := json.Marshal(result)
	if err != nil {
		glog.Errorf("[rpc] %s encode %s.%s result: %v", reqID, objectID, name, err)
		writeError(w, http.StatusInternalServerError, &wireError{Kind: "internal", Message: "encode result: " + err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(callResponse{Result: raw})
}

func writeError(w http.ResponseWriter, status int, e *wireError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(callResponse{Result: json.RawMessage("null"), Error: e})
}

func statusFor(kind string) int {
	switch kind {
	case "not_found", "missing_data", "unknown_method":
		return http.StatusNotFound
	case "bad_request", "malformed_scene", "unsupported_object_type", "unsupported_suffix", "no_source":
		return http.StatusBadRequest
	case "no_current_scene":
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// DecodeArgs unmarshals a method's argument object into v.
func DecodeArgs(args json.RawMessage, v any) error {
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("%w: %v", models.ErrBadRequest, err)
	}
	return nil
}
