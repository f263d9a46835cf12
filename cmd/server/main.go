package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/Vasu1712/scenesync/internal/api/scenes"
	"github.com/Vasu1712/scenesync/internal/bootstrap"
	"github.com/Vasu1712/scenesync/internal/config"
	"github.com/Vasu1712/scenesync/internal/payload"
	"github.com/Vasu1712/scenesync/internal/storage/memory"
	"github.com/Vasu1712/scenesync/internal/transport"
	"github.com/Vasu1712/scenesync/internal/ws"
)

const ServerVersion = "0.1.0"

func main() {
	usage := `Scene sync server.

Serves a scene store as a remote object and publishes it under
"<prefix>.<unix millis>". When no name server answers at the configured
address, this process serves one. Files given on the command line are
published as the first scene.

Usage:
    scenesync-server [--config=<path>] [--listen=<addr>] [--prefix=<prefix>]
        [--scene_id=<scene_id>] [--debug] [<file>...]
    scenesync-server -h | --help
    scenesync-server --version

Options:
    -h --help                Show this screen.
    --version                Show version.
    --config=<path>          YAML config file.
    --listen=<addr>          Listen address.
    --prefix=<prefix>        Service name prefix.
    --scene_id=<scene_id>    Id of the scene built from <file>.
    --debug                  Verbose logging.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], ServerVersion)
	if err != nil {
		panic(err)
	}

	debug, _ := opts.Bool("--debug")
	setupLogging(debug)
	defer glog.Flush()

	configPath, _ := opts.String("--config")
	cfg, err := config.Load(configPath)
	if err != nil {
		glog.Exitf("[server] %v", err)
	}
	if listen, _ := opts.String("--listen"); listen != "" {
		cfg.Server.Listen = listen
		cfg.Server.Advertise = ""
		cfg.Normalize()
	}
	if prefix, _ := opts.String("--prefix"); prefix != "" {
		cfg.Server.Prefix = prefix
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, opts); err != nil {
		glog.Exitf("[server] %v", err)
	}
}

func setupLogging(debug bool) {
	flag.Set("logtostderr", "true")
	if debug {
		flag.Set("v", "1")
	}
	flag.CommandLine.Parse(nil)
}

func serve(ctx context.Context, cfg config.Config, opts docopt.Opts) error {
	backend, err := bootstrap.ServerBackend(cfg.Registry)
	if err != nil {
		return err
	}
	if closer, ok := backend.(interface{ Close() }); ok {
		defer closer.Close()
	}

	store := memory.NewSceneStore()
	hub := ws.NewHub()
	go hub.Run(ctx)

	handler := &scenes.SceneHandler{Store: store, Hub: hub, Topic: uuid.NewString()}
	if files, _ := opts["<file>"].([]string); len(files) > 0 {
		sceneID, _ := opts.String("--scene_id")
		if err := publishFiles(store, files, sceneID); err != nil {
			return err
		}
	}

	manager := bootstrap.New(bootstrap.Options{
		Listen:     cfg.Server.Listen,
		Advertise:  cfg.Server.Advertise,
		NameServer: cfg.Registry.NameServer,
		Backend:    backend,
		CORSOrigin: cfg.Server.CORSOrigin,
		Secret:     cfg.Auth.Secret,
		Mount: func(r *mux.Router, _ *transport.Daemon) {
			scenes.RegisterSceneRoutes(r, handler)
		},
	})
	if err := manager.Start(ctx); err != nil {
		return err
	}
	name, uri, err := manager.RegisterService(ctx, handler.Topic, handler, cfg.Server.Prefix)
	if err != nil {
		shutdown(manager)
		return err
	}
	glog.Infof("[server] scene service %s at %s", name, uri)

	<-ctx.Done()
	glog.Infof("[server] shutting down")
	shutdown(manager)
	return nil
}

func shutdown(manager *bootstrap.Manager) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := manager.Close(ctx); err != nil {
		glog.Warningf("[server] close: %v", err)
	}
}

func publishFiles(store *memory.SceneStore, files []string, sceneID string) error {
	objs := make([]*payload.Object, 0, len(files))
	for _, path := range files {
		o, err := payload.FromFile(path, nil)
		if err != nil {
			return err
		}
		objs = append(objs, o)
	}
	scene, err := payload.ComposeObjects(objs, payload.SceneOptions{ID: sceneID})
	if err != nil {
		return err
	}
	stored, err := store.AddScene(scene, true)
	if err != nil {
		return err
	}
	glog.Infof("[server] published %d files as scene %s", len(files), stored.ID())
	return nil
}
