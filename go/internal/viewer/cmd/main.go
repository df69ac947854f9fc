// Command countdownctl administers and watches a countdown server.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/joho/godotenv"
	"github.com/mcdev12/countdown/go/internal/countdown/timerrpc"
	"github.com/mcdev12/countdown/go/internal/viewer"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type options struct {
	server  string
	timeout time.Duration
}

func (o *options) client() timerrpc.TimerServiceClient {
	return timerrpc.NewTimerServiceClient(&http.Client{Timeout: o.timeout}, o.server)
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "countdownctl",
		Short:         "Control and watch the shared countdown",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(out)
	root.SetErr(out)

	defaultServer := os.Getenv("COUNTDOWN_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:5000"
	}
	root.PersistentFlags().StringVar(&opts.server, "server", defaultServer, "countdown server base URL")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")

	root.AddCommand(
		newStartCmd(opts),
		newResetCmd(opts),
		newStatusCmd(opts),
		newWatchCmd(opts),
	)
	return root
}

func newStartCmd(opts *options) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the countdown (after the pre-countdown)",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.client().Start(cmd.Context(), connect.NewRequest(&timerrpc.StartRequest{Wait: wait}))
			if err != nil {
				return fmt.Errorf("start: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Msg.Message)
			return nil
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "wait until the countdown is running")
	return cmd
}

func newResetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Cancel any countdown and clear the timer",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.client().Reset(cmd.Context(), connect.NewRequest(&timerrpc.ResetRequest{}))
			if err != nil {
				return fmt.Errorf("reset: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Msg.Message)
			return nil
		},
	}
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the authoritative timer state",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.client().GetTimer(cmd.Context(), connect.NewRequest(&timerrpc.GetTimerRequest{}))
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}

			w := cmd.OutOrStdout()
			if !res.Msg.Running || res.Msg.StartTime == nil || res.Msg.Duration == nil {
				fmt.Fprintln(w, "not running")
				return nil
			}

			state := viewer.State{
				Running:   true,
				StartTime: *res.Msg.StartTime,
				Duration:  time.Duration(*res.Msg.Duration) * time.Millisecond,
			}
			frame := viewer.Project(state, time.Now())
			fmt.Fprintf(w, "running: %s remaining (started %s, deadline %s)\n",
				frame.Clock,
				state.StartTime.Format(time.RFC3339),
				state.StartTime.Add(state.Duration).Format(time.RFC3339))
			return nil
		},
	}
}

func newWatchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow the countdown live in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viewer.New(viewer.Config{
				BaseURL:    opts.server,
				HTTPClient: &http.Client{Timeout: opts.timeout},
			})
			w := cmd.OutOrStdout()
			err := v.Run(cmd.Context(), func(f viewer.Frame) {
				fmt.Fprintf(w, "\r\033[K%s", renderFrame(f))
			})
			fmt.Fprintln(w)
			if cmd.Context().Err() != nil {
				return nil
			}
			return err
		},
	}
}

func renderFrame(f viewer.Frame) string {
	switch f.Phase {
	case viewer.PhasePreCountdown:
		return fmt.Sprintf("starting in %d...", f.PreCount)
	case viewer.PhaseRunning:
		if f.Urgent {
			return f.Clock + "  !!"
		}
		return f.Clock
	case viewer.PhaseTimeUp:
		return "TIME UP"
	default:
		return "waiting for start"
	}
}
