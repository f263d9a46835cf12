package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/docopt/docopt-go"
	"github.com/golang/glog"

	"github.com/Vasu1712/scenesync/internal/bootstrap"
	"github.com/Vasu1712/scenesync/internal/client"
	"github.com/Vasu1712/scenesync/internal/config"
	"github.com/Vasu1712/scenesync/internal/models"
	"github.com/Vasu1712/scenesync/internal/registry"
	"github.com/Vasu1712/scenesync/internal/render"
	"github.com/Vasu1712/scenesync/internal/transport"
	"github.com/Vasu1712/scenesync/internal/ws"
)

const ClientVersion = "0.1.0"

func main() {
	usage := `Scene sync client.

Follows the current scene of a scene server and writes the renderer
commands that reproduce it to a ChimeraX command script.

Usage:
    scenesync-client [--config=<path>] [--uri=<uri>] [--prefix=<prefix>]
        [--script=<path>] [--push] [--first] [--debug]
    scenesync-client -h | --help
    scenesync-client --version

Options:
    -h --help            Show this screen.
    --version            Show version.
    --config=<path>      YAML config file.
    --uri=<uri>          Connect to this service address, skipping discovery.
    --prefix=<prefix>    Service name prefix to discover.
    --script=<path>      Command script to write.
    --push               Sync on server events instead of every frame.
    --first              Use the first discovered service instead of the newest.
    --debug              Log every sync pass and command.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], ClientVersion)
	if err != nil {
		panic(err)
	}

	configPath, _ := opts.String("--config")
	cfg, err := config.Load(configPath)
	if err != nil {
		glog.Exitf("[client] %v", err)
	}
	if uri, _ := opts.String("--uri"); uri != "" {
		cfg.Client.URI = uri
	}
	if prefix, _ := opts.String("--prefix"); prefix != "" {
		cfg.Client.Prefix = prefix
	}
	if script, _ := opts.String("--script"); script != "" {
		cfg.Client.ScriptPath = script
	}
	if push, _ := opts.Bool("--push"); push {
		cfg.Client.Push = true
	}
	if debug, _ := opts.Bool("--debug"); debug {
		cfg.Client.Debug = true
	}
	first, _ := opts.Bool("--first")

	flag.Set("logtostderr", "true")
	if cfg.Client.Debug {
		flag.Set("v", "1")
	}
	flag.CommandLine.Parse(nil)
	defer glog.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, first); err != nil {
		glog.Exitf("[client] %v", err)
	}
}

func run(ctx context.Context, cfg config.Config, first bool) error {
	backend, err := bootstrap.ClientBackend(cfg.Registry)
	if err != nil {
		return err
	}
	if closer, ok := backend.(interface{ Close() }); ok {
		defer closer.Close()
	}
	reg := registry.NewClient(backend,
		transport.WithToken(cfg.Auth.Token),
		transport.WithTimeout(cfg.Client.CallTimeout),
	)

	script, err := os.Create(cfg.Client.ScriptPath)
	if err != nil {
		return err
	}
	defer script.Close()

	if err := os.MkdirAll(cfg.Client.WorkDir, 0o755); err != nil {
		return err
	}
	renderer, err := render.NewScriptRenderer(script, filepath.Join(cfg.Client.WorkDir, "opened"))
	if err != nil {
		return err
	}

	engineOpts := client.Options{
		URI:             cfg.Client.URI,
		Prefix:          cfg.Client.Prefix,
		Debug:           cfg.Client.Debug,
		UpdateFrequency: cfg.Client.UpdateFrequency,
		MaxFailures:     cfg.Client.MaxFailures,
		CallTimeout:     cfg.Client.CallTimeout,
		WorkDir:         cfg.Client.WorkDir,
	}
	if cfg.Client.Push {
		engineOpts.UpdateFrequency = 1
	}
	engine := client.NewEngine(client.RegistryDialer{Registry: reg, FirstMatch: first}, renderer, engineOpts)
	if err := engine.Connect(ctx); err != nil {
		return err
	}
	defer engine.Disconnect()

	var src client.TickSource = client.FrameTicker{Interval: cfg.Client.FrameInterval}
	if cfg.Client.Push {
		listener, err := ws.NewListener(engine.Address())
		if err != nil {
			return err
		}
		listener.Token = cfg.Auth.Token
		listener.Events = func(ev ws.SceneEvent) {
			glog.V(1).Infof("[client] scene %s revision %d", ev.SceneID, ev.Revision)
		}
		src = listener
	}

	glog.Infof("[client] writing %s", cfg.Client.ScriptPath)
	err = engine.Run(ctx, src)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if errors.Is(err, models.ErrSyncCeilingReached) {
		glog.Errorf("[client] lost %s", cfg.Client.Prefix)
	}
	return err
}
