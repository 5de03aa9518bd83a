package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/user/estc-blue/trace"
)

func newTraceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect recorded link traces",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "dump <file>",
		Short: "Print every record in a trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := trace.ReadFile(args[0])
			if err != nil {
				return err
			}
			for _, e := range events {
				fmt.Println(formatEvent(e))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "summary <file>",
		Short: "Count records by kind and push outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := trace.ReadFile(args[0])
			if err != nil {
				return err
			}
			s := trace.Summarize(events)

			fmt.Printf("Records:            %d\n", len(events))
			fmt.Printf("Connects:           %d\n", s.Connects)
			fmt.Printf("Disconnects:        %d\n", s.Disconnects)
			fmt.Printf("Timeouts:           %d\n", s.Timeouts)
			fmt.Printf("Transmit completes: %d (%d pushes acked)\n", s.TransmitCompletes, s.Acked)
			fmt.Printf("Pushes:             %d (%d ok)\n", s.Pushes, s.PushesOK)

			outcomes := make([]string, 0, len(s.Outcomes))
			for o := range s.Outcomes {
				outcomes = append(outcomes, o)
			}
			sort.Strings(outcomes)
			for _, o := range outcomes {
				fmt.Printf("  %-26s %d\n", o, s.Outcomes[o])
			}
			return nil
		},
	})

	return cmd
}

func formatEvent(e trace.Event) string {
	ts := e.Timestamp.Format("15:04:05.000000")
	switch e.Kind {
	case trace.KindPush:
		return fmt.Sprintf("%s %-11s conn=0x%04X attr=0x%04X mode=%d size=%d credits=%d %s",
			ts, e.Kind, e.Conn, e.Attr, e.Mode, e.Size, e.Credits, e.Outcome)
	case trace.KindTransmitComplete:
		return fmt.Sprintf("%s %-11s conn=0x%04X count=%d credits=%d %s",
			ts, e.Kind, e.Conn, e.Count, e.Credits, e.Outcome)
	default:
		return fmt.Sprintf("%s %-11s conn=0x%04X credits=%d %s",
			ts, e.Kind, e.Conn, e.Credits, e.Outcome)
	}
}
