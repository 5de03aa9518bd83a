// Package sim assembles the simulated peripheral: attribute table, stack,
// ESTC service, a simulated central and the optional link trace.
package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/user/estc-blue/config"
	"github.com/user/estc-blue/estc"
	"github.com/user/estc-blue/logger"
	"github.com/user/estc-blue/push"
	"github.com/user/estc-blue/trace"
	"github.com/user/estc-blue/util"
	"github.com/user/estc-blue/wire"
	"github.com/user/estc-blue/wire/gatt"
)

// App is one simulated peripheral with its peer
type App struct {
	cfg     *config.Config
	session string

	Stack   *wire.Stack
	Service *estc.Service
	Peer    *wire.Peer

	recorder  trace.Recorder
	tracePath string
	closer    func() error

	char1 int32
}

// New builds the app from cfg. Nothing runs until Run.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		session:  uuid.New().String(),
		recorder: trace.NoopRecorder{},
		closer:   func() error { return nil },
	}

	if cfg.Trace.Enabled {
		path := cfg.Trace.Path
		if path == "" {
			var err error
			if path, err = util.DefaultTracePath(a.session); err != nil {
				return nil, fmt.Errorf("trace dir: %w", err)
			}
		}
		fr, err := trace.NewFileRecorder(path, a.session)
		if err != nil {
			return nil, fmt.Errorf("open trace: %w", err)
		}
		a.recorder, a.tracePath, a.closer = fr, path, fr.Close
	}

	db := gatt.NewAttributeDatabase()
	stack, err := wire.NewStack(cfg.StackConfig(), db)
	if err != nil {
		a.closer()
		return nil, err
	}

	pc := cfg.DispatcherConfig()
	pc.Recorder = a.recorder
	pc.OnTimeout = a.onTimeout
	svc, err := estc.New(db, stack.Subscriptions(), stack, pc)
	if err != nil {
		a.closer()
		return nil, err
	}
	stack.SetEventHandler(svc)

	a.Stack, a.Service = stack, svc
	a.Peer = wire.NewPeer(cfg.App.PeerName)
	return a, nil
}

// Session returns the session id stamped on trace records
func (a *App) Session() string { return a.session }

// TracePath returns the trace file, or "" when tracing is off
func (a *App) TracePath() string { return a.tracePath }

// onTimeout ends a link whose peer stopped answering. The dispatcher has
// already stopped pushing when DisconnectOnTimeout is set; this tells the
// stack as well.
func (a *App) onTimeout(ev push.Event) {
	if !a.cfg.Push.DisconnectOnTimeout {
		return
	}
	if h, ok := a.Stack.Connection(); ok && h == ev.Handle {
		if err := a.Stack.Disconnect(wire.ReasonConnectionTimeout); err != nil {
			logger.Debug("sim", "disconnect after timeout: %v", err)
		}
	}
}

// Connect links the peer and has it subscribe to hello notifications
func (a *App) Connect() error {
	if _, err := a.Stack.Connect(a.Peer); err != nil {
		return err
	}
	return a.Peer.Subscribe(a.Service.Hello().CCCD, gatt.ModeNotify)
}

// Disconnect drops the link as if the peer went away
func (a *App) Disconnect() error {
	return a.Stack.Disconnect(wire.ReasonRemoteUserTerminated)
}

// Tick runs n connection intervals by hand
func (a *App) Tick(n int) {
	for i := 0; i < n; i++ {
		a.Stack.ConnectionEvent()
	}
}

// Run drives the stack and the application timers until ctx is done.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Stack.Run(ctx)
	})
	g.Go(func() error {
		return every(ctx, a.cfg.App.HelloInterval, a.helloTick)
	})
	if a.cfg.App.Char1Interval > 0 {
		g.Go(func() error {
			return every(ctx, a.cfg.App.Char1Interval, a.char1Tick)
		})
	}

	return g.Wait()
}

// helloTick never stops the run: a failed push is already logged and traced
// by the dispatcher, and the next tick retries it.
func (a *App) helloTick() error {
	_ = a.Service.HelloNotify()
	return nil
}

func (a *App) char1Tick() error {
	a.char1++
	return a.Service.UpdateCharacteristic1(a.char1)
}

func every(ctx context.Context, interval time.Duration, fn func() error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := fn(); err != nil {
				return err
			}
		}
	}
}

// Close flushes and closes the trace
func (a *App) Close() error {
	return a.closer()
}
