// Command flowexec drives the sample flows from the command line or over
// HTTP. Paused executions are kept in the configured store, so a flow can
// be launched by one invocation and resumed by the next:
//
//	flowexec launch person.Search lastName=Don
//	flowexec resume e2f0...s1 select id=1
//	flowexec history e2f0...s2
//	flowexec schedule e2f0...s2 finish --in 10m
//	flowexec serve --addr :8080
//
// serve also runs the worker that delivers scheduled events.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/petrijr/flowexec/internal/config"
	"github.com/petrijr/flowexec/internal/demo"
	"github.com/petrijr/flowexec/internal/engine"
	"github.com/petrijr/flowexec/pkg/api"
	"github.com/petrijr/flowexec/pkg/httpflow"
)

type cli struct {
	cfg *config.Config
	rt  *config.Runtime
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	v := config.New()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return err
	}
	file, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return err
	}
	cfg, err := config.Load(v, file)
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	rt, err := cfg.NewRuntime(logger)
	if err != nil {
		return err
	}
	if err := demo.Register(rt.Executor, demo.NewDirectory()); err != nil {
		_ = rt.Close()
		return err
	}
	c.cfg = cfg
	c.rt = rt
	return nil
}

func (c *cli) teardown(*cobra.Command, []string) error {
	if c.rt == nil {
		return nil
	}
	return c.rt.Close()
}

// parseParams turns name=value arguments into request parameters.
func parseParams(args []string) (map[string]string, error) {
	params := make(map[string]string, len(args))
	for _, a := range args {
		name, value, ok := strings.Cut(a, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("parameter %q is not name=value", a)
		}
		params[name] = value
	}
	return params, nil
}

func printResult(cmd *cobra.Command, ext *api.LocalExternalContext, res *api.Result) {
	out := cmd.OutOrStdout()
	if ext.Output.Len() > 0 {
		fmt.Fprint(out, ext.Output.String())
	}
	switch {
	case res.IsPaused():
		fmt.Fprintf(out, "paused %s key=%s\n", res.FlowID, res.Key)
	case res.IsEnded():
		fmt.Fprintf(out, "ended %s outcome=%s output=%v\n", res.FlowID, res.Outcome.ID, res.Outcome.Output)
	}
}

func (c *cli) launchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "launch <flowId> [name=value...]",
		Short: "Launch a flow; parameters become flow input",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(args[1:])
			if err != nil {
				return err
			}
			input := make(map[string]any, len(params))
			for k, v := range params {
				input[k] = v
			}
			ext := api.NewLocalExternalContext("", params)
			res, err := c.rt.Executor.LaunchExecution(cmd.Context(), args[0], input, ext)
			if err != nil {
				return err
			}
			printResult(cmd, ext, res)
			return nil
		},
	}
}

func (c *cli) resumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <key> [eventId] [name=value...]",
		Short: "Resume a paused execution; without an event the view is refreshed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			event := ""
			rest := args[1:]
			if len(rest) > 0 && !strings.Contains(rest[0], "=") {
				event, rest = rest[0], rest[1:]
			}
			params, err := parseParams(rest)
			if err != nil {
				return err
			}
			ext := api.NewLocalExternalContext(event, params)
			res, err := c.rt.Executor.ResumeExecution(cmd.Context(), args[0], ext)
			if err != nil {
				return err
			}
			printResult(cmd, ext, res)
			return nil
		},
	}
}

func (c *cli) flowsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flows",
		Short: "List registered flows",
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, id := range c.rt.Executor.Registry().IDs() {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

func (c *cli) historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <key>",
		Short: "Print the recorded history of a paused execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := c.rt.Executor.Snapshot(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			id, _ := snap.Attributes[engine.ConversationIDAttribute].(string)
			if id == "" {
				return fmt.Errorf("execution %s has no conversation id", args[0])
			}
			events, err := c.rt.History.List(cmd.Context(), id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, ev := range events {
				fmt.Fprintf(out, "%s %-16s %s/%s %s\n",
					ev.At.Format(time.RFC3339), ev.Type, ev.FlowID, ev.StateID, ev.Detail)
			}
			return nil
		},
	}
}

func (c *cli) scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule <key> <eventId> [name=value...]",
		Short: "Queue an event for delivery by the serve worker",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(args[2:])
			if err != nil {
				return err
			}
			in, err := cmd.Flags().GetDuration("in")
			if err != nil {
				return err
			}
			at := time.Now().Add(in)
			if err := c.rt.Worker.EnqueueEventAt(cmd.Context(), args[0], args[1], params, at); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scheduled %s for %s at %s\n", args[1], args[0], at.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().Duration("in", 0, "delay before the event is delivered")
	return cmd
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the flows over HTTP and deliver scheduled events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			handler := httpflow.NewHandler(c.rt.Executor, httpflow.WithPrefix(c.cfg.HTTP.Prefix))
			srv := &http.Server{
				Addr:              c.cfg.HTTP.Addr,
				Handler:           handler,
				ReadHeaderTimeout: 5 * time.Second,
				IdleTimeout:       30 * time.Second,
			}
			errc := make(chan error, 1)
			go func() { errc <- srv.ListenAndServe() }()
			fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", c.cfg.HTTP.Addr)

			workCtx, stopWorker := context.WithCancel(context.Background())
			defer stopWorker()
			workerDone := make(chan error, 1)
			go func() { workerDone <- c.rt.Worker.Run(workCtx, c.cfg.Queue.Concurrency) }()

			sigc := make(chan os.Signal, 1)
			signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errc:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case err := <-workerDone:
				_ = srv.Close()
				return err
			case <-sigc:
			}
			stopWorker()
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				return err
			}
			return <-workerDone
		},
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	cmd := &cobra.Command{
		Use:                "flowexec",
		Short:              "Run conversational flows across requests",
		SilenceUsage:       true,
		PersistentPreRunE:  c.setup,
		PersistentPostRunE: c.teardown,
	}
	config.RegisterFlags(cmd.PersistentFlags())
	cmd.AddCommand(c.launchCmd(), c.resumeCmd(), c.flowsCmd(), c.historyCmd(), c.scheduleCmd(), c.serveCmd())
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}
