// Package bootstrap brings up the transport substrate of a scene server: it
// locates a name server (serving one in-process when none answers), starts
// the HTTP daemon for remote objects and publishes services under
// timestamped names.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/Vasu1712/scenesync/internal/middleware"
	"github.com/Vasu1712/scenesync/internal/registry"
	"github.com/Vasu1712/scenesync/internal/transport"
)

type Options struct {
	Listen string
	// Advertise is the base URL published for this process. Defaults to
	// http://<bound address>.
	Advertise string
	// NameServer is located first; when it does not answer this process
	// serves the name server itself. Ignored when Backend is set.
	NameServer string
	// Backend, when set, is used directly for registration.
	Backend    registry.Backend
	CORSOrigin string
	// Secret enables bearer-token checks on everything but the name server.
	Secret string
	// Mount adds extra routes once the daemon exists.
	Mount func(r *mux.Router, d *transport.Daemon)
}

type Manager struct {
	opts Options

	daemon   *transport.Daemon
	backend  registry.Backend
	server   *http.Server
	address  string
	servesNS bool

	mu    sync.Mutex
	names []string
}

func New(opts Options) *Manager {
	return &Manager{opts: opts}
}

// Start binds the listener, settles the registry backend and serves in the
// background until Close.
func (m *Manager) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", m.opts.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", m.opts.Listen, err)
	}
	m.address = strings.TrimRight(m.opts.Advertise, "/")
	if m.address == "" {
		m.address = "http://" + ln.Addr().String()
	}
	m.daemon = transport.NewDaemon(m.address)

	r := mux.NewRouter()
	r.Use(middleware.CORS(m.opts.CORSOrigin))
	r.Use(middleware.RequireToken(m.opts.Secret, "/ns/"))

	switch {
	case m.opts.Backend != nil:
		m.backend = m.opts.Backend
	case m.opts.NameServer != "" && registry.Locate(ctx, m.opts.NameServer):
		glog.Infof("[ns] using name server at %s", m.opts.NameServer)
		m.backend = registry.NewHTTPBackend(m.opts.NameServer)
	default:
		mem := registry.NewMemoryBackend()
		registry.NewNameServer(mem).Routes(r)
		m.backend = mem
		m.servesNS = true
		glog.Infof("[ns] serving name server at %s", m.address)
	}

	r.PathPrefix("/rpc/").Handler(m.daemon.Handler())
	if m.opts.Mount != nil {
		m.opts.Mount(r, m.daemon)
	}

	m.server = &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			glog.Errorf("[rpc] daemon stopped: %v", err)
		}
	}()
	glog.Infof("[rpc] daemon listening on %s (advertised %s)", ln.Addr(), m.address)
	return nil
}

// Address returns the advertised base URL.
func (m *Manager) Address() string { return m.address }

// ServesNameServer reports whether the name server runs in this process.
func (m *Manager) ServesNameServer() bool { return m.servesNS }

func (m *Manager) Daemon() *transport.Daemon { return m.daemon }

func (m *Manager) Backend() registry.Backend { return m.backend }

// RegisterService exposes svc under objectID (a new id when empty) and
// publishes it as "<prefix>.<unix millis>". It returns the published name
// and the object URI.
func (m *Manager) RegisterService(ctx context.Context, objectID string, svc transport.Service, prefix string) (string, string, error) {
	if objectID == "" {
		objectID = uuid.NewString()
	}
	uri := m.daemon.RegisterAs(objectID, svc)
	name := fmt.Sprintf("%s.%d", prefix, time.Now().UnixMilli())
	if err := m.backend.Register(ctx, name, uri); err != nil {
		m.daemon.Unregister(objectID)
		return "", "", fmt.Errorf("register %s: %w", name, err)
	}

	m.mu.Lock()
	m.names = append(m.names, name)
	m.mu.Unlock()
	glog.Infof("[ns] published %s -> %s", name, uri)
	return name, uri, nil
}

// Close unpublishes every registered service and stops the daemon.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	names := m.names
	m.names = nil
	m.mu.Unlock()

	var errs []error
	for _, name := range names {
		if err := m.backend.Unregister(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("unregister %s: %w", name, err))
		}
	}
	if m.server != nil {
		if err := m.server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
