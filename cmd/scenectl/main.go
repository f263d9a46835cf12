package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/golang/glog"

	"github.com/Vasu1712/scenesync/internal/api/scenes"
	"github.com/Vasu1712/scenesync/internal/bootstrap"
	"github.com/Vasu1712/scenesync/internal/config"
	"github.com/Vasu1712/scenesync/internal/middleware"
	"github.com/Vasu1712/scenesync/internal/models"
	"github.com/Vasu1712/scenesync/internal/payload"
	"github.com/Vasu1712/scenesync/internal/registry"
	"github.com/Vasu1712/scenesync/internal/transport"
)

const SceneCtlVersion = "0.1.0"

var Out = log.New(os.Stdout, "", 0)

func main() {
	usage := `Scene sync control.

Service selection: --uri connects to an exact service address, otherwise the
newest service under --prefix is used.

Usage:
    scenectl services [--config=<path>] [--prefix=<prefix>]
    scenectl scenes [--config=<path>] [--uri=<uri>] [--prefix=<prefix>]
    scenectl current [--config=<path>] [--uri=<uri>] [--prefix=<prefix>]
    scenectl show [--config=<path>] [--uri=<uri>] [--prefix=<prefix>] <scene_id>
    scenectl select [--config=<path>] [--uri=<uri>] [--prefix=<prefix>] <scene_id>
    scenectl add-scene [--config=<path>] [--uri=<uri>] [--prefix=<prefix>]
        [--no_current] <scene_json>
    scenectl publish [--config=<path>] [--uri=<uri>] [--prefix=<prefix>]
        [--scene_id=<scene_id>] [--refs] <file>...
    scenectl focus [--config=<path>] [--uri=<uri>] [--prefix=<prefix>]
        [--data_id=<data_id>] [--selection=<selection>]
        [--xyz=<xyz>] [--expand=<expand>]
    scenectl token [--config=<path>] [--subject=<subject>] [--ttl=<ttl>]
    scenectl -h | --help
    scenectl --version

Options:
    -h --help                  Show this screen.
    --version                  Show version.
    --config=<path>            YAML config file.
    --uri=<uri>                Service address.
    --prefix=<prefix>          Service name prefix.
    --no_current               Store the scene without making it current.
    --scene_id=<scene_id>      Id of the published scene.
    --refs                     Upload data first and reference it by id.
    --data_id=<data_id>        Focus on this data object.
    --selection=<selection>    Selection within the focused object.
    --xyz=<xyz>                Focus point as x,y,z.
    --expand=<expand>          model, chain, residue or atom.
    --subject=<subject>        Token subject [default: scenectl].
    --ttl=<ttl>                Token lifetime, 0 for none [default: 24h].`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], SceneCtlVersion)
	if err != nil {
		panic(err)
	}

	flag.Set("logtostderr", "true")
	flag.CommandLine.Parse(nil)
	defer glog.Flush()

	configPath, _ := opts.String("--config")
	cfg, err := config.Load(configPath)
	if err != nil {
		glog.Exitf("[ctl] %v", err)
	}
	if uri, _ := opts.String("--uri"); uri != "" {
		cfg.Client.URI = uri
	}
	if prefix, _ := opts.String("--prefix"); prefix != "" {
		cfg.Client.Prefix = prefix
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	commands := []struct {
		name string
		run  func(context.Context, config.Config, docopt.Opts) error
	}{
		{"services", listServices},
		{"scenes", listScenes},
		{"current", showCurrent},
		{"show", showScene},
		{"select", selectScene},
		{"add-scene", addScene},
		{"publish", publish},
		{"focus", focus},
		{"token", issueToken},
	}
	for _, c := range commands {
		if on, _ := opts.Bool(c.name); on {
			if err := c.run(ctx, cfg, opts); err != nil {
				glog.Exitf("[ctl] %s: %v", c.name, err)
			}
			return
		}
	}
}

func registryClient(cfg config.Config) (*registry.Client, func(), error) {
	backend, err := bootstrap.ClientBackend(cfg.Registry)
	if err != nil {
		return nil, nil, err
	}
	release := func() {}
	if closer, ok := backend.(interface{ Close() }); ok {
		release = closer.Close
	}
	reg := registry.NewClient(backend,
		transport.WithToken(cfg.Auth.Token),
		transport.WithTimeout(cfg.Client.CallTimeout),
	)
	return reg, release, nil
}

func connect(ctx context.Context, cfg config.Config) (*scenes.Remote, func(), error) {
	reg, release, err := registryClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	res, err := reg.Resolve(ctx, registry.ResolveOptions{URI: cfg.Client.URI, Prefix: cfg.Client.Prefix})
	if err != nil {
		release()
		return nil, nil, err
	}
	glog.V(1).Infof("[ctl] using %s (%s)", res.Name, res.Address)
	remote := scenes.NewRemote(res.Handle)
	return remote, func() {
		remote.Close()
		release()
	}, nil
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	Out.Println(string(b))
	return nil
}

func listServices(ctx context.Context, cfg config.Config, _ docopt.Opts) error {
	reg, release, err := registryClient(cfg)
	if err != nil {
		return err
	}
	defer release()

	entries, err := reg.Discover(ctx, cfg.Client.Prefix)
	if err != nil {
		return err
	}
	for _, e := range entries {
		Out.Printf("%s\t%s", e.Name, e.Address)
	}
	return nil
}

func listScenes(ctx context.Context, cfg config.Config, _ docopt.Opts) error {
	remote, done, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer done()

	ids, err := remote.ListScenes(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		Out.Println(id)
	}
	return nil
}

func showCurrent(ctx context.Context, cfg config.Config, _ docopt.Opts) error {
	remote, done, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer done()

	scene, err := remote.CurrentScene(ctx)
	if err != nil {
		return err
	}
	if scene == nil {
		return models.ErrNoCurrentScene
	}
	return printJSON(scene)
}

func showScene(ctx context.Context, cfg config.Config, opts docopt.Opts) error {
	remote, done, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer done()

	id, _ := opts.String("<scene_id>")
	scene, err := remote.RetrieveScene(ctx, id)
	if err != nil {
		return err
	}
	if scene == nil {
		return fmt.Errorf("%w: scene %s", models.ErrNotFound, id)
	}
	return printJSON(scene)
}

func selectScene(ctx context.Context, cfg config.Config, opts docopt.Opts) error {
	remote, done, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer done()

	id, _ := opts.String("<scene_id>")
	return remote.SetCurrentScene(ctx, models.Payload{"id": id})
}

func addScene(ctx context.Context, cfg config.Config, opts docopt.Opts) error {
	path, _ := opts.String("<scene_json>")
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	raw, err := models.Decode(b)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	scene := payload.CopyScene(raw)
	if scene.ID() == "" {
		return fmt.Errorf("%w: %s has no id", models.ErrMalformedScene, path)
	}

	remote, done, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer done()

	noCurrent, _ := opts.Bool("--no_current")
	if err := remote.AddScene(ctx, scene, !noCurrent); err != nil {
		return err
	}
	Out.Println(scene.ID())
	return nil
}

func publish(ctx context.Context, cfg config.Config, opts docopt.Opts) error {
	files, _ := opts["<file>"].([]string)
	objs := make([]*payload.Object, 0, len(files))
	for _, path := range files {
		o, err := payload.FromFile(path, nil)
		if err != nil {
			return err
		}
		objs = append(objs, o)
	}
	parts, err := payload.Payloads(objs...)
	if err != nil {
		return err
	}

	remote, done, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer done()

	refs, _ := opts.Bool("--refs")
	if refs {
		for _, p := range parts {
			stored, err := remote.AddData(ctx, p)
			if err != nil {
				return err
			}
			if !stored {
				glog.Warningf("[ctl] data %s already on the server, keeping its copy", p.ID())
			}
		}
	}

	sceneID, _ := opts.String("--scene_id")
	scene, err := payload.ComposeScene(parts, payload.SceneOptions{ID: sceneID, ReferencesOnly: refs})
	if err != nil {
		return err
	}
	if err := remote.AddScene(ctx, scene, true); err != nil {
		return err
	}
	Out.Println(scene.ID())
	return nil
}

func focus(ctx context.Context, cfg config.Config, opts docopt.Opts) error {
	f := payload.FocusTemplate()
	if id, _ := opts.String("--data_id"); id != "" {
		f["id"] = id
	}
	if sel, _ := opts.String("--selection"); sel != "" {
		f["selection"] = sel
	}
	if xyz, _ := opts.String("--xyz"); xyz != "" {
		point, err := parsePoint(xyz)
		if err != nil {
			return err
		}
		f["xyz"] = point
	}
	if expand, _ := opts.String("--expand"); expand != "" {
		f["xyz_expand"] = expand
	}

	remote, done, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer done()
	return remote.UpdateFocus(ctx, f)
}

func parsePoint(s string) ([]any, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: point %q is not x,y,z", models.ErrBadRequest, s)
	}
	out := make([]any, 3)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: point %q: %v", models.ErrBadRequest, s, err)
		}
		out[i] = v
	}
	return out, nil
}

func issueToken(_ context.Context, cfg config.Config, opts docopt.Opts) error {
	if cfg.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is not configured")
	}
	subject, _ := opts.String("--subject")
	ttlText, _ := opts.String("--ttl")
	ttl, err := time.ParseDuration(ttlText)
	if err != nil {
		return err
	}
	token, err := middleware.SignToken(cfg.Auth.Secret, subject, ttl)
	if err != nil {
		return err
	}
	Out.Println(token)
	return nil
}
