package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/mux"
)

// NameServer serves a Backend over HTTP so that processes without direct
// access to it can publish and discover services.
type NameServer struct {
	backend Backend
}

func NewNameServer(b Backend) *NameServer {
	return &NameServer{backend: b}
}

// Routes registers the name server endpoints on r.
func (ns *NameServer) Routes(r *mux.Router) {
	r.HandleFunc("/ns/ping", ns.handlePing).Methods(http.MethodGet)
	r.HandleFunc("/ns/services", ns.handleList).Methods(http.MethodGet)
	r.HandleFunc("/ns/services", ns.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/ns/services/{name}", ns.handleUnregister).Methods(http.MethodDelete)
}

// Handler returns a router serving only the name server endpoints.
func (ns *NameServer) Handler() http.Handler {
	r := mux.NewRouter()
	ns.Routes(r)
	return r
}

func (ns *NameServer) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (ns *NameServer) handleList(w http.ResponseWriter, r *http.Request) {
	entries, err := ns.backend.List(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		glog.Errorf("[ns] list: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (ns *NameServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var e Entry
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if e.Name == "" || e.Address == "" {
		http.Error(w, "name and address are required", http.StatusBadRequest)
		return
	}
	if err := ns.backend.Register(r.Context(), e.Name, e.Address); err != nil {
		glog.Errorf("[ns] register %s: %v", e.Name, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	glog.Infof("[ns] registered %s -> %s", e.Name, e.Address)
	w.WriteHeader(http.StatusNoContent)
}

func (ns *NameServer) handleUnregister(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := ns.backend.Unregister(r.Context(), name); err != nil {
		glog.Errorf("[ns] unregister %s: %v", name, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	glog.Infof("[ns] unregistered %s", name)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// HTTPBackend is a Backend living in a remote name server.
type HTTPBackend struct {
	base   string
	client *http.Client
}

// NewHTTPBackend returns a backend for the name server at base, e.g.
// http://127.0.0.1:9090.
func NewHTTPBackend(base string) *HTTPBackend {
	return &HTTPBackend{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (h *HTTPBackend) Register(ctx context.Context, name, address string) error {
	return h.do(ctx, http.MethodPost, "/ns/services", Entry{Name: name, Address: address}, nil)
}

func (h *HTTPBackend) Unregister(ctx context.Context, name string) error {
	return h.do(ctx, http.MethodDelete, "/ns/services/"+url.PathEscape(name), nil, nil)
}

func (h *HTTPBackend) List(ctx context.Context, prefix string) ([]Entry, error) {
	var out []Entry
	err := h.do(ctx, http.MethodGet, "/ns/services?prefix="+url.QueryEscape(prefix), nil, &out)
	return out, err
}

func (h *HTTPBackend) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s %s: %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Locate reports whether a name server answers at base.
func Locate(ctx context.Context, base string) bool {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	var pong map[string]bool
	if err := NewHTTPBackend(base).do(ctx, http.MethodGet, "/ns/ping", nil, &pong); err != nil {
		glog.V(1).Infof("[ns] no name server at %s: %v", base, err)
		return false
	}
	return pong["ok"]
}
