package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"travelog-backend/internal/cities"
	"travelog-backend/internal/enrichment"
)

// NewResolveCommand creates the resolve command. It never writes to the store.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		nameEn  string
		docID   string
		offline bool
	)
	cmd := &cobra.Command{
		Use:   "resolve <name>",
		Short: "Show which image the resolver would pick for a city name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), rootOpts.Timeout)
			defer cancel()

			b, release, err := rootOpts.backend(ctx)
			if err != nil {
				return err
			}
			defer release()
			if b.Resolver == nil {
				return fmt.Errorf("no resolver configured")
			}

			snap := enrichment.NewSnapshot(cities.City{
				Name:          args[0],
				NameEn:        nameEn,
				ExternalDocID: cities.StringPtr(docID),
			})
			res, ok := b.Resolver.Resolve(ctx, snap, !offline)
			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return out.Resolution(args[0], res, ok)
		},
	}
	cmd.Flags().StringVar(&nameEn, "name-en", "", "alternate (romanized) name")
	cmd.Flags().StringVar(&docID, "doc-id", "", "known catalog document id")
	cmd.Flags().BoolVar(&offline, "offline", false, "use the offline cascade")
	return cmd
}
