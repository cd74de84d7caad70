package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"travelog-backend/internal/enrichment"
	"travelog-backend/internal/queue"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Runner schedules enrichment runs and reports their results.
type Runner interface {
	OnReport(fn func(enrichment.RunReport))
	TriggerBatchRun()
	TriggerSingleEntity(id string)
}

// Backend is what the commands operate on. Queue may be nil when no queue is configured.
type Backend struct {
	Runner   Runner
	Resolver enrichment.ImageResolver
	Queue    queue.Client
}

// Connect builds a Backend. The returned func releases it.
type Connect func(ctx context.Context) (*Backend, func() error, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format  string
	Timeout time.Duration
	connect Connect
}

// NewRootCommand creates the root command for the admin CLI.
func NewRootCommand(connect Connect) *cobra.Command {
	opts := &RootOptions{connect: connect}

	cmd := &cobra.Command{
		Use:   "enrichctl",
		Short: "Operate city image enrichment",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 10*time.Minute, "how long to wait for a run to finish")

	cmd.AddCommand(NewBackfillCommand(opts))
	cmd.AddCommand(NewEnrichCommand(opts))
	cmd.AddCommand(NewResolveCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (o *RootOptions) backend(ctx context.Context) (*Backend, func() error, error) {
	if o.connect == nil {
		return nil, nil, fmt.Errorf("no backend configured")
	}
	return o.connect(ctx)
}
