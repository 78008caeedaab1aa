package cli

import (
	"starterlock/internal/constants"
	"strings"

	"github.com/spf13/cobra"
)

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.client.Health(cmd.Context())
			if err != nil {
				return err
			}
			a.out.Print(*result)
			return nil
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <player>",
		Short: "Show a player's lock state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.client.GetPlayer(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.out.Print(*result)
			return nil
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored players",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.client.ListPlayers(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			a.out.Print(*result)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", constants.DefaultListLimit, "Maximum players to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "Players to skip")

	return cmd
}

func newLockCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lock <player> [reason...]",
		Short: "Lock a player's starter selection",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.client.Lock(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			a.out.Print(*result)
			return nil
		},
	}
}

func newUnlockCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <player>",
		Short: "Unlock a player's starter selection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.client.Unlock(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.out.Print(*result)
			return nil
		},
	}
}

func newLockAllCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lockall [reason...]",
		Short: "Lock every online player",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.client.LockAll(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			a.out.Print(*result)
			return nil
		},
	}
}

func newUnlockAllCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unlockall",
		Short: "Unlock every online player",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.client.UnlockAll(cmd.Context())
			if err != nil {
				return err
			}
			a.out.Print(*result)
			return nil
		},
	}
}

func newReloadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reload the starter settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client.Reload(cmd.Context()); err != nil {
				return err
			}
			a.out.PrintMessage("Settings reloaded.")
			return nil
		},
	}
}

func newFlushCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Write pending changes to the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.client.Flush(cmd.Context())
			if err != nil {
				return err
			}
			a.out.Print(*result)
			return nil
		},
	}
}
