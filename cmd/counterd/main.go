// counterd hosts the demo.ICounter service so recordings can be made and
// replayed without a real service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/demo"
	"github.com/TeamWin/android-device-system-tools-aidl/internal/ipc"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var (
		servicesDir string
		name        string
		verbose     bool
		definition  bool
	)

	cmd := &cobra.Command{
		Use:   "counterd",
		Short: "Serve the demo.ICounter service",
		Long: `Serve demo.ICounter under <services-dir>/<name>.sock until interrupted.

Methods (JSON payloads):
  add   (1)  {"delta": n} -> {"value": v}; negative deltas return BAD_VALUE
  get   (2)  -> {"value": v}
  reset (3)  oneway

Use --definition to print the analyzer definition for ipcrecord.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if definition {
				fmt.Fprint(cmd.OutOrStdout(), demo.CounterDefinition)
				return nil
			}

			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			l, err := ipc.Directory{Root: servicesDir}.Listen(name)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := &ipc.Server{
				Descriptor: demo.CounterInterface,
				Handler:    &demo.Counter{Logger: logger},
				Logger:     logger,
			}
			if err := srv.Serve(ctx, l); err != nil {
				return err
			}
			logger.Info("service stopped", "name", name)
			return nil
		},
	}

	cmd.Flags().StringVar(&servicesDir, "services-dir", ipc.DefaultRoot, "directory of service sockets")
	cmd.Flags().StringVar(&name, "name", "demo/counter", "service name to register")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	cmd.Flags().BoolVar(&definition, "definition", false, "print the CUE analyzer definition and exit")

	return cmd
}
