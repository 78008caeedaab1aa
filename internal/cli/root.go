// Package cli is the starterctl command line client for the admin API.
package cli

import (
	"io"
	"os"
	"starterlock/internal/api"

	"github.com/spf13/cobra"
)

type app struct {
	cfg    *Config
	client *api.Client
	out    *Output
}

func NewRootCmd() *cobra.Command {
	a := &app{cfg: DefaultConfig()}

	rootCmd := &cobra.Command{
		Use:   "starterctl",
		Short: "Manage starter selection locks on a running server",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.client = api.NewClient(a.cfg.Addr, a.cfg.Operator, a.cfg.Token)
			a.out = NewOutput(a.cfg.Output, cmd.OutOrStdout())
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&a.cfg.Addr, "addr", a.cfg.Addr, "Admin API base URL (env: STARTERCTL_ADDR)")
	rootCmd.PersistentFlags().StringVar(&a.cfg.Operator, "operator", a.cfg.Operator, "Operator name or UUID recorded as the actor (env: STARTERCTL_OPERATOR)")
	rootCmd.PersistentFlags().StringVar(&a.cfg.Token, "token", a.cfg.Token, "Admin API bearer token (env: STARTERCTL_TOKEN)")
	rootCmd.PersistentFlags().StringVarP(&a.cfg.Output, "output", "o", a.cfg.Output, "Output format: text, json")

	rootCmd.AddCommand(
		newHealthCmd(a),
		newStatusCmd(a),
		newListCmd(a),
		newLockCmd(a),
		newUnlockCmd(a),
		newLockAllCmd(a),
		newUnlockAllCmd(a),
		newReloadCmd(a),
		newFlushCmd(a),
	)

	return rootCmd
}

func Execute() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd.Execute()
}
