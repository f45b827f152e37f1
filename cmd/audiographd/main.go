// Command audiographd loads a node-graph configuration file and runs
// the engine until interrupted: construct, check each step, log, run.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/gordonklaus/portaudio"

	"github.com/axleaudio/graphengine/config"
	"github.com/axleaudio/graphengine/driverio"
	"github.com/axleaudio/graphengine/engine"
	"github.com/axleaudio/graphengine/node"
	"github.com/axleaudio/graphengine/nodes/midictl"
	"github.com/axleaudio/graphengine/oscctl"

	_ "github.com/axleaudio/graphengine/nodes/asio"
	_ "github.com/axleaudio/graphengine/nodes/fileio"
	_ "github.com/axleaudio/graphengine/nodes/filter"
)

func main() {
	configPath := flag.String("config", "", "path to the node-graph configuration file (json or yaml)")
	flag.Parse()

	logger := log.Default()
	if *configPath == "" {
		logger.Fatal("missing required -config flag")
	}

	rawCfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("loading configuration", "err", err)
	}
	cfg := config.Resolve(rawCfg)

	eng := engine.New()

	eng.StatusRegistry().Add(func(category, message string) {
		switch category {
		case "Error":
			logger.Error(message)
		case "Warning", "Underrun", "Overrun":
			logger.Warn(message)
		default:
			logger.Info(message)
		}
	})

	if err := eng.Initialize(cfg); err != nil {
		logger.Fatal("initializing engine", "err", err)
	}
	wireMidiTargets(eng)

	if cfg.AudioDevice != "none" {
		if err := portaudio.Initialize(); err != nil {
			logger.Fatal("initializing portaudio", "err", err)
		}
		defer portaudio.Terminate()
		bridge := driverio.New()
		if err := bridge.Load(cfg.AudioDevice); err != nil {
			logger.Fatal("loading audio device", "device", cfg.AudioDevice, "err", err)
		}
		if _, _, err := bridge.Init(cfg.SampleRate, cfg.BlockFrames); err != nil {
			logger.Fatal("initializing audio device", "err", err)
		}
		eng.SetDriverBridge(bridge)
	}

	var control *oscctl.Surface
	if cfg.Control != nil {
		control = oscctl.NewSurface()
		if err := control.Configure(cfg.Control.TargetIP, cfg.Control.TargetPort, cfg.Control.ReceivePort); err != nil {
			logger.Fatal("configuring external control", "err", err)
		}
		control.AddEventCallback(eng.HandleControlEvent)
		eng.SetControlSurface(control)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := eng.Run(ctx); err != nil {
		logger.Fatal("running engine", "err", err)
	}
	logger.Info("engine running", "id", eng.ID(), "sample_rate", cfg.SampleRate, "block_frames", cfg.BlockFrames)

	<-ctx.Done()

	logger.Info("shutting down")
	if err := eng.Stop(); err != nil {
		logger.Error("stopping engine", "err", err)
	}
	if control != nil {
		_ = control.Close()
	}
	if err := eng.Cleanup(); err != nil {
		logger.Error("cleaning up engine", "err", err)
	}
}

// wireMidiTargets points every configured MIDI-control node at the
// engine's filter processors: a decoded CC update is offered to each
// node as an update_parameter control message until one of them owns
// the addressed sub-filter instance.
func wireMidiTargets(eng *engine.Engine) {
	target := func(instance, key string, value float64) error {
		params := map[string]any{
			"instance": instance,
			"key":      key,
			"value":    strconv.FormatFloat(value, 'f', -1, 64),
		}
		var lastErr error
		for _, name := range eng.NodeNames() {
			err := eng.ControlMessage(name, "update_parameter", params)
			if err == nil {
				return nil
			}
			if !errors.Is(err, node.ErrUnhandled) {
				lastErr = err
			}
		}
		return lastErr
	}
	for _, name := range eng.NodeNames() {
		n, ok := eng.Node(name)
		if !ok {
			continue
		}
		if mc, ok := n.(*midictl.Node); ok {
			mc.SetTarget(target)
		}
	}
}
