package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wanderset/places-cli/internal/publish"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish staged batches and promote datasets",
}

var publishRunCmd = &cobra.Command{
	Use:   "run <batch-id>",
	Short: "Publish a reviewed batch to the dev place store",
	Long:  "Upserts every publishable item of the batch into the dev store by upstream key. Refuses to run while borderline reviews are pending.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("publish"); err != nil {
			return err
		}

		stage, err := openStaging(ctx)
		if err != nil {
			return err
		}
		defer stage.Close() //nolint:errcheck

		places, err := openPlaces(ctx, cfg.Store.DevURL)
		if err != nil {
			return err
		}
		defer places.Close() //nolint:errcheck

		result, err := publish.NewPublisher(stage, places).Publish(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "publish run")
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Published batch %s\n", shortID(args[0]))
		fmt.Fprintf(out, "  inserted: %d  updated: %d  skipped: %d  marked inactive: %d  errors: %d\n",
			result.Inserted, result.Updated, result.Skipped, result.MarkedInactive, result.Errors)
		return nil
	},
}

var publishPromoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Promote the dev dataset to production",
	Long:  "Copies active places from the dev store into the prod store, upserting by upstream key. Asks for confirmation before writing; nothing is ever removed from prod.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("promote"); err != nil {
			return err
		}

		city, _ := cmd.Flags().GetString("city")

		dev, err := openPlaces(ctx, cfg.Store.DevURL)
		if err != nil {
			return err
		}
		defer dev.Close() //nolint:errcheck

		prod, err := openPlaces(ctx, cfg.Store.ProdURL)
		if err != nil {
			return err
		}
		defer prod.Close() //nolint:errcheck

		result, err := publish.Promote(ctx, dev, prod, city, confirmFunc(cmd))
		if err != nil {
			if eris.Is(err, publish.ErrAborted) {
				zap.L().Info("promotion aborted")
				return nil
			}
			return eris.Wrap(err, "publish promote")
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Promoted: %d inserted, %d updated, %d errors\n",
			result.Inserted, result.Updated, result.Errors)
		return nil
	},
}

func init() {
	publishPromoteCmd.Flags().String("city", "", "limit promotion to one city slug")
	publishCmd.AddCommand(publishRunCmd)
	publishCmd.AddCommand(publishPromoteCmd)
	rootCmd.AddCommand(publishCmd)
}
