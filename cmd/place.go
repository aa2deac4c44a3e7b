package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wanderset/places-cli/internal/retention"
)

var placeCmd = &cobra.Command{
	Use:   "place",
	Short: "Operate on individual canonical places",
}

var placeDeleteCmd = &cobra.Command{
	Use:   "delete <place-id>",
	Short: "Delete a place, preserving user content",
	Long:  "Soft-deletes a place by default. With --hard the row is removed permanently, unless any user content (comments, attachments, list entries, scouting trips) references it, in which case the delete is downgraded to soft.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		hard, _ := cmd.Flags().GetBool("hard")
		prod, _ := cmd.Flags().GetBool("prod")
		force, _ := cmd.Flags().GetBool("force")

		scope := "publish"
		connString := cfg.Store.DevURL
		if prod {
			scope = "promote"
			connString = cfg.Store.ProdURL
		}
		if err := cfg.Validate(scope); err != nil {
			return err
		}

		placeID := args[0]
		if !force {
			kind := "Soft-delete"
			if hard {
				kind = "Permanently delete"
			}
			ok, err := confirmFunc(cmd)(fmt.Sprintf("%s place %s?", kind, placeID))
			if err != nil {
				return err
			}
			if !ok {
				return eris.New("aborted")
			}
		}

		store, err := openPlaces(ctx, connString)
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck

		guard := retention.NewGuard(store.Pool())
		removed, err := guard.Delete(ctx, store, placeID, hard)
		if err != nil {
			return eris.Wrap(err, "place delete")
		}

		log := zap.L().With(zap.String("command", "place.delete"), zap.String("place_id", placeID))
		out := cmd.OutOrStdout()
		if removed {
			log.Info("place removed permanently")
			fmt.Fprintf(out, "Place %s removed permanently.\n", placeID)
		} else {
			log.Info("place soft-deleted")
			fmt.Fprintf(out, "Place %s soft-deleted (row preserved).\n", placeID)
			if hard {
				fmt.Fprintln(out, "User content references this place; hard delete was downgraded.")
			}
		}
		return nil
	},
}

func init() {
	placeDeleteCmd.Flags().Bool("hard", false, "remove the row permanently when no user content references it")
	placeDeleteCmd.Flags().Bool("prod", false, "target the prod store instead of dev")
	placeDeleteCmd.Flags().Bool("force", false, "skip confirmation")
	placeCmd.AddCommand(placeDeleteCmd)
	rootCmd.AddCommand(placeCmd)
}
