package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/Vasu1712/scenesync/internal/models"
)

// FeedPath is the websocket route serving scene events.
const FeedPath = "/ws/scenes"

// FeedURL derives the change feed URL from a service address of the form
// http://host/rpc/<object id>.
func FeedURL(address string) (string, error) {
	u, err := url.Parse(address)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: bad address %q", models.ErrConnectionFailed, address)
	}
	i := strings.LastIndex(u.Path, "/rpc/")
	if i < 0 {
		return "", fmt.Errorf("%w: %q is not a service address", models.ErrConnectionFailed, address)
	}
	objectID := strings.Trim(u.Path[i+len("/rpc/"):], "/")

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = u.Path[:i] + FeedPath
	u.RawQuery = url.Values{"service": {objectID}}.Encode()
	return u.String(), nil
}

// Listener subscribes to a server's scene feed and emits one tick per event.
type Listener struct {
	URL    string
	Dialer *websocket.Dialer
	// Token is sent as a bearer credential when set.
	Token string
	// Events, when set, receives every decoded event before its tick.
	Events func(SceneEvent)
}

// NewListener returns a listener for the service at address.
func NewListener(address string) (*Listener, error) {
	feed, err := FeedURL(address)
	if err != nil {
		return nil, err
	}
	return &Listener{URL: feed, Dialer: websocket.DefaultDialer}, nil
}

// Ticks dials the feed. An initial tick is sent so that the first scene is
// picked up without waiting for a mutation. The channel closes when ctx is
// done or the connection drops.
func (l *Listener) Ticks(ctx context.Context) (<-chan struct{}, error) {
	dialer := l.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	var header http.Header
	if l.Token != "" {
		header = http.Header{"Authorization": {"Bearer " + l.Token}}
	}
	conn, _, err := dialer.DialContext(ctx, l.URL, header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrConnectionFailed, err)
	}

	ticks := make(chan struct{}, 1)
	ticks <- struct{}{}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	go func() {
		defer close(ticks)
		defer close(done)
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					glog.Warningf("[ws] feed %s closed: %v", l.URL, err)
				}
				return
			}
			var ev SceneEvent
			if err := json.Unmarshal(msg, &ev); err != nil {
				glog.V(1).Infof("[ws] ignoring message: %v", err)
				continue
			}
			if l.Events != nil {
				l.Events(ev)
			}
			// coalesce: a pending tick already covers this event
			select {
			case ticks <- struct{}{}:
			default:
			}
		}
	}()
	return ticks, nil
}
