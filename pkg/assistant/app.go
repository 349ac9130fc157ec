// Package assistant wires the kavach components into one application and
// owns their lifecycle.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/teslashibe/kavach/internal/config"
	"github.com/teslashibe/kavach/pkg/audioio"
	"github.com/teslashibe/kavach/pkg/dispatch"
	"github.com/teslashibe/kavach/pkg/hub"
	"github.com/teslashibe/kavach/pkg/ir"
	"github.com/teslashibe/kavach/pkg/irio"
	"github.com/teslashibe/kavach/pkg/journal"
	"github.com/teslashibe/kavach/pkg/playback"
	"github.com/teslashibe/kavach/pkg/pubsub"
	"github.com/teslashibe/kavach/pkg/sensor"
	"github.com/teslashibe/kavach/pkg/voice"
	"github.com/teslashibe/kavach/pkg/web"
)

// App is the assistant. Create it with New, then Init, Run and Shutdown.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	// UI
	hub     *hub.Hub
	display *web.Display
	server  *web.Server

	// IR
	store    *ir.Store
	session  *ir.Session
	pipeline *ir.Pipeline

	// Audio
	sink   audioio.Sink
	player *playback.Player

	// Network and sensors
	mqtt   *pubsub.Client
	sensor *dispatch.SensorLoop

	input      io.ReadCloser
	source     *voice.LineSource
	journal    *journal.Journal
	dispatcher *dispatch.Dispatcher

	wg sync.WaitGroup
}

// New validates cfg and creates an uninitialised app.
func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &App{cfg: cfg, logger: logger}, nil
}

// Init creates every component. Call it once before Run. On error the
// components created so far are released.
func (a *App) Init() (err error) {
	defer func() {
		if err != nil {
			a.Shutdown()
		}
	}()

	a.hub = hub.New("status", a.logger)
	a.display = web.NewDisplay(a.cfg.Display, a.hub, a.logger)

	if err := a.initIR(); err != nil {
		return fmt.Errorf("ir init: %w", err)
	}
	if err := a.initAudio(); err != nil {
		return fmt.Errorf("audio init: %w", err)
	}

	a.mqtt, err = pubsub.New(a.cfg.MQTT, a.logger.With("component", "mqtt"))
	if err != nil {
		return fmt.Errorf("mqtt init: %w", err)
	}

	reader, err := sensor.New(a.cfg.Sensor)
	if err != nil {
		return fmt.Errorf("sensor init: %w", err)
	}
	a.sensor = dispatch.NewSensorLoop(reader, a.mqtt, a.cfg.MQTT.SensorInterval, a.logger)

	deps := dispatch.Deps{
		Display:   a.display,
		Publisher: a.mqtt,
		Audio:     a.player,
		Remote:    a.pipeline,
		Learner:   a.session,
	}
	if a.cfg.Journal != "" {
		a.journal, err = journal.Open(a.cfg.Journal)
		if err != nil {
			return fmt.Errorf("journal init: %w", err)
		}
		deps.Journal = a.journal
	}
	a.dispatcher, err = dispatch.New(deps, a.logger)
	if err != nil {
		return err
	}

	a.display.OnGasDismissed(a.dispatcher.GasAlertDismissed)
	a.mqtt.SetHandlers(pubsub.Handlers{
		OnConnect:        a.sensor.Resume,
		OnConnectionLost: func(error) { a.sensor.Pause() },
		OnGasLeak:        a.dispatcher.HandleGasLeak,
		OnIntruder:       a.dispatcher.HandleIntruder,
	})

	if err := a.initVoice(); err != nil {
		return fmt.Errorf("voice init: %w", err)
	}

	webDeps := web.Deps{
		Display:    a.display,
		Hub:        a.hub,
		Controller: a.dispatcher,
		Learning:   a.session.Active,
		Connected:  a.mqtt.IsConnected,
		Playing:    a.player.IsPlaying,
	}
	if a.journal != nil {
		webDeps.Events = a.journal
	}
	a.server, err = web.NewServer(a.cfg.Web, webDeps, a.logger)
	if err != nil {
		return fmt.Errorf("web init: %w", err)
	}

	a.logger.Info("assistant initialised",
		"store", a.store.Dir(),
		"codes", a.pipeline.HasCodes(),
		"language", a.player.Language(),
		"journal", a.cfg.Journal,
	)
	return nil
}

func (a *App) initIR() error {
	a.store = ir.NewStore(a.cfg.StoreDir)

	opener, err := irio.NewOpener(a.cfg.IR, a.logger)
	if err != nil {
		return err
	}
	tx, err := irio.NewTransmitter(a.cfg.IR, a.logger)
	if err != nil {
		return err
	}

	learn := a.cfg.Learn
	learn.Device = a.cfg.IR.RXDevice
	a.session = ir.NewSession(learn, opener, a.store, a.display, a.logger)
	a.pipeline = ir.NewPipeline(a.cfg.Transmit, tx, a.store, a.logger)
	return nil
}

func (a *App) initAudio() error {
	sink, err := audioio.NewSink(a.cfg.Audio, a.logger)
	if err != nil {
		return err
	}
	a.sink = sink

	resolver := playback.NewResolver(a.cfg.Playback.Prefixes, a.logger)
	a.player, err = playback.NewPlayer(a.cfg.Playback, sink, resolver, a.logger.With("component", "playback"))
	return err
}

func (a *App) initVoice() error {
	in, err := OpenInput(a.cfg.Voice.Input)
	if err != nil {
		return err
	}
	a.input = in

	a.source, err = voice.NewLineSource(a.cfg.Voice, in, a.logger.With("component", "voice"))
	if err != nil {
		return err
	}
	// ignore the recognizer while our own audio plays
	a.source.Muted = a.player.IsPlaying
	return nil
}

// Run starts every loop and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.dispatcher == nil {
		return errors.New("assistant: Init not called")
	}

	a.goRun("playback", func() error { return a.player.Run(ctx) })
	a.goRun("ir transmit", func() error { a.pipeline.Run(ctx); return nil })
	a.goRun("asset watch", func() error { return a.player.Resolver().Watch(ctx) })
	a.goRun("sensor", func() error { a.sensor.Run(ctx); return nil })
	a.goRun("voice source", func() error { return a.source.Run(ctx) })
	a.goRun("dispatch", func() error { return a.dispatcher.Run(ctx, a.source) })
	a.goRun("web", func() error { return a.server.Run(ctx) })

	if err := a.mqtt.Connect(ctx); err != nil {
		// paho keeps retrying; the dispatcher publishes once it is up
		a.logger.Warn("MQTT connect failed", "error", err)
	}

	a.logger.Info("kavach is listening", "web", a.cfg.Web.Addr, "broker", a.cfg.MQTT.BrokerURI())
	<-ctx.Done()

	a.session.Stop()
	a.wg.Wait()
	return nil
}

func (a *App) goRun(name string, fn func() error) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := fn(); err != nil {
			a.logger.Error("component stopped", "component", name, "error", err)
		}
	}()
}

// Shutdown releases resources. It is safe after a failed Init.
func (a *App) Shutdown() {
	if a.mqtt != nil {
		a.mqtt.Close()
	}
	if a.input != nil && a.input != os.Stdin {
		a.input.Close()
	}
	if a.sink != nil {
		a.sink.Close()
	}
	if a.journal != nil {
		a.journal.Close()
	}
	a.logger.Info("kavach stopped")
}

// Display returns the dashboard display.
func (a *App) Display() *web.Display { return a.display }

// Dispatcher returns the command dispatcher.
func (a *App) Dispatcher() *dispatch.Dispatcher { return a.dispatcher }

// OpenInput opens the recognizer input. "-" or empty is stdin. A named
// pipe is opened read-write so the open does not wait for a writer.
func OpenInput(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return os.Stdin, nil
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("voice input: %w", err)
	}
	flag := os.O_RDONLY
	if fi.Mode()&os.ModeNamedPipe != 0 {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("voice input: %w", err)
	}
	return f, nil
}
