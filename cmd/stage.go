package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wanderset/places-cli/internal/staging"
)

var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Inspect and review staged batches",
	Long:  "List staged batches, show their contents, review borderline matches, and delete batches.",
}

var stageListCmd = &cobra.Command{
	Use:   "list",
	Short: "List staged batches",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		stage, err := openStaging(ctx)
		if err != nil {
			return err
		}
		defer stage.Close() //nolint:errcheck

		batches, err := stage.ListBatches(ctx)
		if err != nil {
			return err
		}
		if len(batches) == 0 {
			zap.L().Info("no staged batches")
			return nil
		}

		formatBatches(ctx, cmd.OutOrStdout(), stage, batches)
		return nil
	},
}

var stageShowCmd = &cobra.Command{
	Use:   "show <batch-id>",
	Short: "Show the items of a batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		stage, err := openStaging(ctx)
		if err != nil {
			return err
		}
		defer stage.Close() //nolint:errcheck

		batch, err := stage.GetBatch(ctx, args[0])
		if err != nil {
			return err
		}
		items, err := stage.ListItems(ctx, batch.ID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		published := "no"
		if batch.Published() {
			published = batch.PublishedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(out, "Batch %s  city=%s category=%s mode=%s published=%s\n\n",
			batch.ID, batch.City, batch.Category, batch.Mode, published)

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CLASS\tDECISION\tNAME\tADDRESS\tDIST(M)\tNAME SCORE")
		for _, it := range items {
			dist := ""
			score := ""
			if it.Classification != "none" {
				dist = fmt.Sprintf("%.0f", it.Match.DistanceMeters)
				score = fmt.Sprintf("%.2f", it.Match.NameScore)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				it.Classification, it.Decision, it.Candidate.Name, it.Candidate.Address, dist, score)
		}
		return w.Flush()
	},
}

var stageReviewCmd = &cobra.Command{
	Use:   "review <batch-id>",
	Short: "Review pending borderline matches",
	Long:  "Walk through each pending borderline item. Accepting confirms the match (the candidate is a duplicate and will not be published); rejecting keeps it as a new place.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		stage, err := openStaging(ctx)
		if err != nil {
			return err
		}
		defer stage.Close() //nolint:errcheck

		batch, err := stage.GetBatch(ctx, args[0])
		if err != nil {
			return err
		}
		pending, err := stage.PendingBorderline(ctx, batch.ID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(pending) == 0 {
			fmt.Fprintln(out, "No pending borderline items.")
			return nil
		}

		confirm := confirmFunc(cmd)
		var accepted, rejected int
		for i, it := range pending {
			fmt.Fprintf(out, "\n[%d/%d] %s\n", i+1, len(pending), it.Candidate.Name)
			fmt.Fprintf(out, "  candidate: %s (%.5f, %.5f)\n", it.Candidate.Address, it.Candidate.Lat, it.Candidate.Lon)
			fmt.Fprintf(out, "  matches:   %s — %s\n", it.Match.MatchedName, it.Match.MatchedAddress)
			fmt.Fprintf(out, "  distance:  %.0fm  name score: %.2f  address score: %.2f\n",
				it.Match.DistanceMeters, it.Match.NameScore, it.Match.AddressScore)

			ok, err := confirm("Same place?")
			if err != nil {
				return err
			}
			decision := staging.DecisionRejected
			if ok {
				decision = staging.DecisionAccepted
				accepted++
			} else {
				rejected++
			}
			if err := stage.RecordDecision(ctx, it.ID, decision); err != nil {
				return err
			}
		}

		fmt.Fprintf(out, "\nReview complete: %d accepted as duplicates, %d kept as new.\n", accepted, rejected)
		return nil
	},
	Args: cobra.ExactArgs(1),
}

var stageDeleteCmd = &cobra.Command{
	Use:   "delete <batch-id>",
	Short: "Delete a staged batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		stage, err := openStaging(ctx)
		if err != nil {
			return err
		}
		defer stage.Close() //nolint:errcheck

		batch, err := stage.GetBatch(ctx, args[0])
		if err != nil {
			return err
		}

		force, _ := cmd.Flags().GetBool("force")
		if !force {
			ok, err := confirmFunc(cmd)(fmt.Sprintf("Delete batch %s (%s, %s)?", shortID(batch.ID), batch.City, batch.Category))
			if err != nil {
				return err
			}
			if !ok {
				return eris.New("aborted")
			}
		}

		return stage.DeleteBatch(ctx, batch.ID)
	},
}

func formatBatches(ctx context.Context, out io.Writer, stage *staging.Store, batches []staging.Batch) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCITY\tCATEGORY\tMODE\tCREATED\tPUBLISHED\tPENDING")
	for _, b := range batches {
		published := "-"
		if b.Published() {
			published = b.PublishedAt.Format("2006-01-02")
		}
		pending := "?"
		if n, err := stage.CountPending(ctx, b.ID); err == nil {
			pending = fmt.Sprintf("%d", n)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(b.ID), b.City, b.Category, b.Mode,
			b.CreatedAt.Format("2006-01-02 15:04"), published, pending)
	}
	_ = w.Flush()
}

func init() {
	stageDeleteCmd.Flags().Bool("force", false, "skip confirmation")
	stageCmd.AddCommand(stageListCmd)
	stageCmd.AddCommand(stageShowCmd)
	stageCmd.AddCommand(stageReviewCmd)
	stageCmd.AddCommand(stageDeleteCmd)
	rootCmd.AddCommand(stageCmd)
}
