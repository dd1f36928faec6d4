package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TeamWin/android-device-system-tools-aidl/internal/ipc"
)

// NewListCommand creates the list command.
func NewListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the interfaces that have an analyzer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := opts.registry()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load analyzers", err)
			}
			names := reg.Names()

			w := cmd.OutOrStdout()
			if opts.Format == "json" {
				return writeOK(w, names)
			}
			fmt.Fprintf(w, "Available Interfaces (%d):\n", len(names))
			for _, name := range names {
				fmt.Fprintf(w, "  %s\n", name)
			}
			return nil
		},
	}
}

// NewServicesCommand creates the services command.
func NewServicesCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "Print the registered services and their interfaces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := opts.directory().List(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list services", err)
			}
			if services == nil {
				services = []ipc.ServiceInfo{}
			}

			w := cmd.OutOrStdout()
			if opts.Format == "json" {
				return writeOK(w, services)
			}
			fmt.Fprintf(w, "Services (%d):\n", len(services))
			for _, s := range services {
				switch {
				case s.Error != "":
					fmt.Fprintf(w, "  %s\t(unreachable: %s)\n", s.Name, s.Error)
				case s.Descriptor == "":
					fmt.Fprintf(w, "  %s\n", s.Name)
				default:
					fmt.Fprintf(w, "  %s\t%s\n", s.Name, s.Descriptor)
				}
			}
			return nil
		},
	}
}
