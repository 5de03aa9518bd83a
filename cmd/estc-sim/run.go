package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/estc-blue/logger"
	"github.com/user/estc-blue/sim"
)

func newRunCommand() *cobra.Command {
	var (
		duration  time.Duration
		noConnect bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the peripheral with a subscribed central",
		Long: `Run connects the simulated central, subscribes it to hello notifications and
runs the stack and application timers until interrupted or --duration elapses.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(duration, !noConnect)
		},
	}

	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Stop after this long (0 runs until interrupted)")
	cmd.Flags().BoolVar(&noConnect, "no-connect", false, "Start without a connected central")

	return cmd
}

func runSimulation(duration time.Duration, connect bool) error {
	app, err := sim.New(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	if connect {
		if err := app.Connect(); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
	}
	if p := app.TracePath(); p != "" {
		logger.Info("sim", "tracing session %s to %s", app.Session(), p)
	}

	if err := app.Run(ctx); err != nil {
		return err
	}

	status, err := app.Service.StatusProto()
	if err != nil {
		return err
	}
	fmt.Println(logger.ToJSON(status))
	return nil
}
