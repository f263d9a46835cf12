package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/scenesync/internal/models"
)

type echoService struct {
	calls int
}

func (e *echoService) Methods() map[string]Method {
	return map[string]Method{
		"echo": func(ctx context.Context, args json.RawMessage) (any, error) {
			e.calls++
			var in struct {
				Text string `json:"text"`
			}
			if err := DecodeArgs(args, &in); err != nil {
				return nil, err
			}
			return map[string]string{"text": strings.ToUpper(in.Text)}, nil
		},
		"nothing": func(ctx context.Context, args json.RawMessage) (any, error) {
			return nil, nil
		},
		"fail": func(ctx context.Context, args json.RawMessage) (any, error) {
			return nil, models.ErrNoCurrentScene
		},
		"crash": func(ctx context.Context, args json.RawMessage) (any, error) {
			return nil, errors.New("disk on fire")
		},
		"slow": func(ctx context.Context, args json.RawMessage) (any, error) {
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
			}
			return true, nil
		},
		"big": func(ctx context.Context, args json.RawMessage) (any, error) {
			return strings.Repeat("0.125 ", 50000), nil
		},
	}
}

func startDaemon(t *testing.T) (*Daemon, *echoService, *httptest.Server) {
	t.Helper()
	svc := &echoService{}
	d := NewDaemon("http://placeholder")
	srv := httptest.NewServer(d.Handler())
	t.Cleanup(srv.Close)
	d.base = srv.URL
	return d, svc, srv
}

func TestDaemonAndProxy(t *testing.T) {
	d, svc, _ := startDaemon(t)
	uri := d.Register(svc)
	require.True(t, strings.HasPrefix(uri, d.base+"/rpc/"))

	p, err := Dial(uri)
	require.NoError(t, err)
	defer p.Close()
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		var out struct {
			Text string `json:"text"`
		}
		require.NoError(t, p.Call(ctx, "echo", map[string]string{"text": "hi"}, &out))
		assert.Equal(t, "HI", out.Text)
		assert.Equal(t, 1, svc.calls)
	})

	t.Run("null result leaves out untouched", func(t *testing.T) {
		out := models.Payload{"kept": true}
		require.NoError(t, p.Call(ctx, "nothing", nil, &out))
		assert.Equal(t, models.Payload{"kept": true}, out)
	})

	t.Run("typed remote errors", func(t *testing.T) {
		err := p.Call(ctx, "fail", nil, nil)
		assert.ErrorIs(t, err, models.ErrNoCurrentScene)

		err = p.Call(ctx, "crash", nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk on fire")

		err = p.Call(ctx, "echo", "not an object", nil)
		assert.ErrorIs(t, err, models.ErrBadRequest)
	})

	t.Run("unknown method", func(t *testing.T) {
		err := p.Call(ctx, "missing", nil, nil)
		assert.ErrorIs(t, err, ErrUnknownMethod)
	})

	t.Run("large compressed result", func(t *testing.T) {
		var out string
		require.NoError(t, p.Call(ctx, "big", nil, &out))
		assert.Len(t, out, 6*50000)
	})

	t.Run("context timeout", func(t *testing.T) {
		cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		err := p.Call(cctx, "slow", nil, nil)
		assert.ErrorIs(t, err, models.ErrConnectionFailed)
	})

	t.Run("unregister", func(t *testing.T) {
		d.Unregister(ObjectID(uri))
		err := p.Call(ctx, "echo", map[string]string{"text": "x"}, nil)
		assert.ErrorIs(t, err, ErrUnknownMethod)
	})
}

func TestRequestID(t *testing.T) {
	d, svc, srv := startDaemon(t)
	uri := d.RegisterAs("obj", svc)
	assert.Equal(t, srv.URL+"/rpc/obj", uri)

	resp, err := http.Post(uri+"/nothing", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, resp.Header.Get(RequestIDHeader), 26)
}

func TestDial(t *testing.T) {
	for _, addr := range []string{"", "localhost:9090", "ftp://host/rpc/x", "http://"} {
		_, err := Dial(addr)
		assert.ErrorIs(t, err, models.ErrConnectionFailed, addr)
	}

	p, err := Dial("http://127.0.0.1:1/rpc/x", WithTimeout(200*time.Millisecond))
	require.NoError(t, err)
	err = p.Call(context.Background(), "echo", nil, nil)
	assert.ErrorIs(t, err, models.ErrConnectionFailed)
}

func TestObjectID(t *testing.T) {
	assert.Equal(t, "abc", ObjectID("http://h:1/rpc/abc"))
	assert.Equal(t, "abc", ObjectID("http://h:1/rpc/abc/"))
	assert.Equal(t, "", ObjectID("http://h:1/other"))
}
