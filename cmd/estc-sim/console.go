package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/user/estc-blue/logger"
	"github.com/user/estc-blue/sim"
	"github.com/user/estc-blue/wire"
	"github.com/user/estc-blue/wire/gatt"
)

func newConsoleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Drive the link by hand",
		Long: `Console starts an interactive prompt. Connection intervals only advance with
"tick", so credit accounting can be followed step by step.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := sim.New(cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "estc> ",
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
			})
			if err != nil {
				return fmt.Errorf("failed to create readline: %w", err)
			}
			defer rl.Close()

			// keep log lines from tearing the prompt
			logger.SetOutput(rl.Stdout())
			defer logger.SetOutput(nil)

			c := &console{app: app, out: rl.Stdout()}
			for {
				line, err := rl.Readline()
				if err != nil {
					if err == readline.ErrInterrupt {
						continue
					}
					return nil
				}
				if !c.exec(line) {
					return nil
				}
			}
		},
	}
}

type console struct {
	app *sim.App
	out io.Writer
}

// exec runs one command line. It returns false to exit.
func (c *console) exec(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()
	case "connect":
		c.report(c.app.Connect())
	case "disconnect":
		c.report(c.app.Disconnect())
	case "sub", "subscribe":
		c.cmdSubscribe(args)
	case "hello":
		c.report(c.app.Service.HelloNotify())
	case "char1":
		c.cmdChar1(args)
	case "tick":
		n := 1
		if len(args) > 0 {
			if v, err := strconv.Atoi(args[0]); err == nil && v > 0 {
				n = v
			}
		}
		c.app.Tick(n)
		fmt.Fprintf(c.out, "%d interval(s), credits %d\n", n, c.app.Service.Dispatcher().Credits())
	case "status":
		st, err := c.app.Service.StatusProto()
		if err != nil {
			c.report(err)
			return true
		}
		fmt.Fprintln(c.out, logger.ToJSON(st))
	case "link":
		fmt.Fprintln(c.out, logger.ToJSON(c.app.Stack.Stats()))
	case "received":
		for _, r := range c.app.Peer.Received() {
			fmt.Fprintf(c.out, "  0x%04X %q\n", r.Handle, r.Value)
		}
	case "quit", "exit":
		fmt.Fprintln(c.out, "Exiting...")
		return false
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (c *console) cmdSubscribe(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: subscribe <none|notify|indicate|both>")
		return
	}
	modes := map[string]gatt.Mode{
		"none":     gatt.ModeNone,
		"notify":   gatt.ModeNotify,
		"indicate": gatt.ModeIndicate,
		"both":     gatt.ModeBoth,
	}
	mode, ok := modes[strings.ToLower(args[0])]
	if !ok {
		fmt.Fprintf(c.out, "Unknown mode: %s\n", args[0])
		return
	}
	c.report(c.app.Peer.Subscribe(c.app.Service.Hello().CCCD, mode))
}

func (c *console) cmdChar1(args []string) {
	if len(args) == 0 {
		v, err := c.app.Peer.Read(c.app.Service.Char1().Value)
		if err != nil {
			c.report(err)
			return
		}
		fmt.Fprintf(c.out, "char1 = %X\n", v)
		return
	}
	n, err := strconv.ParseInt(args[0], 0, 32)
	if err != nil {
		fmt.Fprintf(c.out, "Invalid value: %v\n", err)
		return
	}
	c.report(c.app.Service.UpdateCharacteristic1(int32(n)))
}

func (c *console) report(err error) {
	switch {
	case err == nil:
		fmt.Fprintln(c.out, "ok")
	case err == wire.ErrNotConnected:
		fmt.Fprintln(c.out, "not connected")
	default:
		fmt.Fprintf(c.out, "error: %v\n", err)
	}
}

func (c *console) printHelp() {
	fmt.Fprintln(c.out, `Commands:
  connect                 connect the central and subscribe to hello
  disconnect              drop the link
  subscribe <mode>        write the hello CCCD (none|notify|indicate|both)
  hello                   push the next hello value
  char1 [value]           read char1 over the air, or set it locally
  tick [n]                run n connection intervals
  status                  dispatcher and service status
  link                    simulated stack counters
  received                pushes the central got
  quit                    exit`)
}
