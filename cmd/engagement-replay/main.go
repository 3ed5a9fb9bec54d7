package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosight/gosight/engagement/internal/replay"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var jsonFlag bool
	var logLevel string

	cmd := &cobra.Command{
		Use:   "engagement-replay <trace.yaml>",
		Short: "Replay a recorded page view and print its heartbeats",
		Long: `Replay runs a YAML signal trace through the engagement tracker on a
virtual clock and prints every heartbeat the page view would have sent,
including the final one flushed at unload.

With --json, heartbeats are printed as one JSON object per line.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := zerolog.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("log level: %w", err)
			}
			zerolog.SetGlobalLevel(level)

			tr, err := replay.Load(args[0])
			if err != nil {
				return fmt.Errorf("load trace: %w", err)
			}
			res, err := replay.Run(tr)
			if err != nil {
				return fmt.Errorf("replay: %w", err)
			}
			if jsonFlag {
				return printJSON(cmd, res)
			}
			printText(cmd, tr, res)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonFlag, "json", false, "Print heartbeats as JSON lines")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level")

	return cmd
}

func printJSON(cmd *cobra.Command, res *replay.Result) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, hb := range res.Heartbeats {
		if err := enc.Encode(hb); err != nil {
			return fmt.Errorf("encode: %w", err)
		}
	}
	if res.End != nil {
		if err := enc.Encode(res.End); err != nil {
			return fmt.Errorf("encode: %w", err)
		}
	}
	return nil
}

func printText(cmd *cobra.Command, tr *replay.Trace, res *replay.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "interval %v, active timeout %v, heartbeats enabled %t\n",
		res.Config.HeartbeatInterval, res.Config.ActiveTimeout, res.Config.HeartbeatsEnabled)

	for _, hb := range res.Heartbeats {
		at := time.UnixMilli(hb.Timestamp).Sub(tr.Start)
		final := ""
		if hb.Final {
			final = " (unload)"
		}
		fmt.Fprintf(out, "%8v  inc=%d  %s%s\n", at, hb.Inc, hb.URL, final)
	}
	if res.End != nil {
		fmt.Fprintf(out, "%8v  end  %s (unload)\n", time.UnixMilli(res.End.Timestamp).Sub(tr.Start), res.End.URL)
	}
	for _, r := range res.Rejected {
		fmt.Fprintf(out, "rejected %s\n", r)
	}
	fmt.Fprintf(out, "engaged %ds in %d heartbeats, %d empty periods\n",
		res.EngagedTotal, len(res.Heartbeats), res.Dropped)
}
