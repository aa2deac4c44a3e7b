package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/wanderset/places-cli/internal/place"
	"github.com/wanderset/places-cli/internal/staging"
)

// openStaging opens the local staging database and ensures its schema.
func openStaging(ctx context.Context) (*staging.Store, error) {
	store, err := staging.Open(cfg.Staging.Path)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close() //nolint:errcheck
		return nil, err
	}
	return store, nil
}

// openPlaces connects to a place store and ensures its schema.
func openPlaces(ctx context.Context, connString string) (*place.PostgresStore, error) {
	store, err := place.NewPostgres(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close() //nolint:errcheck
		return nil, err
	}
	return store, nil
}

// confirmFunc builds a y/N prompt bound to the command's streams, so tests
// can script the answer.
func confirmFunc(cmd *cobra.Command) func(prompt string) (bool, error) {
	reader := bufio.NewReader(cmd.InOrStdin())
	return func(prompt string) (bool, error) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N]: ", prompt)
		line, err := reader.ReadString('\n')
		if err != nil {
			return false, eris.Wrap(err, "read confirmation")
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes", nil
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
