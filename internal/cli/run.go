package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"travelog-backend/internal/enrichment"
	"travelog-backend/internal/queue"
)

// NewBackfillCommand creates the backfill command.
func NewBackfillCommand(rootOpts *RootOptions) *cobra.Command {
	var viaQueue bool
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Enrich every city missing an image",
		Long: `Runs one batch enrichment pass in this process and prints its report.
With --queue the request is sent to the worker queue instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			msg := queue.Message{Kind: queue.KindBackfill}
			return runOrEnqueue(cmd, rootOpts, viaQueue, msg, func(r enrichment.RunReport) bool {
				return r.Kind == enrichment.KindBatch
			}, func(b *Backend) { b.Runner.TriggerBatchRun() })
		},
	}
	cmd.Flags().BoolVar(&viaQueue, "queue", false, "send to the worker queue instead of running here")
	return cmd
}

// NewEnrichCommand creates the enrich command.
func NewEnrichCommand(rootOpts *RootOptions) *cobra.Command {
	var viaQueue bool
	cmd := &cobra.Command{
		Use:   "enrich <city-id>",
		Short: "Enrich one city",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			msg := queue.Message{Kind: queue.KindCity, CityID: id}
			return runOrEnqueue(cmd, rootOpts, viaQueue, msg, func(r enrichment.RunReport) bool {
				return r.Kind == enrichment.KindSingle && r.CityID == id
			}, func(b *Backend) { b.Runner.TriggerSingleEntity(id) })
		},
	}
	cmd.Flags().BoolVar(&viaQueue, "queue", false, "send to the worker queue instead of running here")
	return cmd
}

func runOrEnqueue(cmd *cobra.Command, opts *RootOptions, viaQueue bool, msg queue.Message, match func(enrichment.RunReport) bool, trigger func(*Backend)) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
	defer cancel()

	b, release, err := opts.backend(ctx)
	if err != nil {
		return err
	}
	defer release()

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	if viaQueue {
		if b.Queue == nil {
			return fmt.Errorf("no queue configured (set TL_SQS_QUEUE_URL)")
		}
		msg.RequestID = uuid.NewString()
		if err := b.Queue.Send(ctx, msg); err != nil {
			return err
		}
		return out.Enqueued(msg)
	}

	reports := make(chan enrichment.RunReport, 1)
	b.Runner.OnReport(func(r enrichment.RunReport) {
		if !match(r) {
			return
		}
		select {
		case reports <- r:
		default:
		}
	})
	trigger(b)

	select {
	case r := <-reports:
		if err := out.Report(r); err != nil {
			return err
		}
		if r.Reason != "" {
			return fmt.Errorf("run stopped early: %s", r.Reason)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for run: %w", ctx.Err())
	}
}
