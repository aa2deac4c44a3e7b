package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wanderset/places-cli/internal/dedup"
	"github.com/wanderset/places-cli/internal/fetch"
	"github.com/wanderset/places-cli/internal/model"
	"github.com/wanderset/places-cli/internal/refdata"
	"github.com/wanderset/places-cli/internal/staging"
	"github.com/wanderset/places-cli/pkg/google"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Grid-fetch places and stage them for review",
	Long:  "Searches every cell of an N×N grid over the bounding box, deduplicates results against the reference dataset and the dev place store, and writes a staging batch.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("fetch"); err != nil {
			return err
		}

		bboxStr, _ := cmd.Flags().GetString("bbox")
		city, _ := cmd.Flags().GetString("city")
		category, _ := cmd.Flags().GetString("category")
		query, _ := cmd.Flags().GetString("query")
		refresh, _ := cmd.Flags().GetBool("refresh")
		refPath, _ := cmd.Flags().GetString("reference")

		if query == "" {
			query = category + " in " + city
		}
		if refPath == "" {
			refPath = cfg.Reference.Path
		}
		if cmd.Flags().Changed("grid") {
			cfg.Fetch.GridDim, _ = cmd.Flags().GetInt("grid")
		}
		if cmd.Flags().Changed("cap") {
			cfg.Fetch.ResultCap, _ = cmd.Flags().GetInt("cap")
		}
		if cmd.Flags().Changed("min-rating") {
			cfg.Fetch.MinRating, _ = cmd.Flags().GetFloat64("min-rating")
		}

		bbox, err := fetch.ParseBBox(bboxStr)
		if err != nil {
			return err
		}

		log := zap.L().With(zap.String("command", "fetch"))

		client := google.NewClient(cfg.Google.Key)
		fetcher := fetch.NewFetcher(client, cfg.Google, cfg.Fetch)

		result, err := fetcher.Fetch(ctx, bbox, query, city, category)
		if err != nil {
			return eris.Wrap(err, "fetch")
		}

		// Dedup targets: the curated reference dataset plus whatever is
		// already live in the dev store.
		var targets []dedup.Target
		if refPath != "" {
			refs, err := refdata.Load(refPath)
			if err != nil {
				return err
			}
			targets = dedup.ReferenceTargets(refs)
		}

		known := map[model.Key]bool{}
		if cfg.Store.DevURL != "" {
			places, err := openPlaces(ctx, cfg.Store.DevURL)
			if err != nil {
				return err
			}
			defer places.Close() //nolint:errcheck

			active, err := places.ListActive(ctx, city)
			if err != nil {
				return err
			}
			for _, p := range active {
				targets = append(targets, dedup.Target{
					Name:    p.Name,
					Address: p.Address,
					Lat:     p.Lat,
					Lon:     p.Lon,
				})
			}
			keys, err := places.ListActiveKeys(ctx, city, model.SourceGoogle)
			if err != nil {
				return err
			}
			for key := range keys {
				known[key] = true
			}
		}

		// Candidates whose upstream key is already stored are the same
		// record seen again. They skip fuzzy matching and publish as
		// updates.
		fresh, updates := dedup.FilterKnown(result.Candidates, known)

		engine := dedup.NewEngine(cfg.Dedup)
		partition := engine.Classify(fresh, targets)
		for _, c := range updates {
			partition.New = append(partition.New, dedup.Classified{
				Candidate: c,
				Match:     dedup.MatchResult{Tier: dedup.TierNone},
			})
		}

		mode := staging.ModeNewOnly
		if refresh {
			mode = staging.ModeRefresh
		}

		stage, err := openStaging(ctx)
		if err != nil {
			return err
		}
		defer stage.Close() //nolint:errcheck

		batch, err := stage.CreateBatch(ctx, city, category, query, mode, partition)
		if err != nil {
			return err
		}

		log.Info("batch staged",
			zap.String("batch_id", batch.ID),
			zap.Int("duplicates", len(partition.Duplicates)),
			zap.Int("borderline", len(partition.Borderline)),
			zap.Int("new", len(partition.New)),
		)

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Staged batch %s (%s, %s)\n", batch.ID, city, category)
		fmt.Fprintf(out, "  candidates:  %d (%d API calls)\n", len(result.Candidates), result.APICalls)
		fmt.Fprintf(out, "  duplicates:  %d\n", len(partition.Duplicates))
		fmt.Fprintf(out, "  borderline:  %d (review with: places-cli stage review %s)\n", len(partition.Borderline), shortID(batch.ID))
		fmt.Fprintf(out, "  new:         %d\n", len(partition.New))
		if result.LimitReached || result.FailedCells > 0 {
			fmt.Fprintf(out, "  warning: fetch may be incomplete (limit reached: %v, failed cells: %d)\n",
				result.LimitReached, result.FailedCells)
		}

		return nil
	},
}

func init() {
	fetchCmd.Flags().String("bbox", "", "bounding box as minLat,minLon,maxLat,maxLon (required)")
	fetchCmd.Flags().String("city", "", "city slug (required)")
	fetchCmd.Flags().String("category", "", "category slug (required)")
	fetchCmd.Flags().String("query", "", "search text (default: \"<category> in <city>\")")
	fetchCmd.Flags().Bool("refresh", false, "stage as a refresh batch that reconciles missing places")
	fetchCmd.Flags().String("reference", "", "reference dataset file (.csv or .yaml)")
	fetchCmd.Flags().Int("grid", 0, "grid dimension override")
	fetchCmd.Flags().Int("cap", 0, "result cap override")
	fetchCmd.Flags().Float64("min-rating", 0, "minimum rating filter override")
	_ = fetchCmd.MarkFlagRequired("bbox")
	_ = fetchCmd.MarkFlagRequired("city")
	_ = fetchCmd.MarkFlagRequired("category")
	rootCmd.AddCommand(fetchCmd)
}
