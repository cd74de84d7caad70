package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"travelog-backend/internal/enrichment"
	"travelog-backend/internal/queue"
)

// OutputFormatter writes command results as text or JSON.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

func (f *OutputFormatter) json(v any) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Report prints a run report.
func (f *OutputFormatter) Report(r enrichment.RunReport) error {
	if f.Format == "json" {
		return f.json(r)
	}
	target := r.Kind
	if r.CityID != "" {
		target += " " + r.CityID
	}
	_, err := fmt.Fprintf(f.Writer, "%s: attempted=%d enriched=%d skipped=%d failed=%d duration=%s\n",
		target, r.Attempted, r.Enriched, r.Skipped, r.Failed, r.Finished.Sub(r.Started).Round(time.Millisecond))
	if err == nil && r.Reason != "" {
		_, err = fmt.Fprintf(f.Writer, "stopped: %s\n", r.Reason)
	}
	return err
}

// Enqueued prints a queued request.
func (f *OutputFormatter) Enqueued(msg queue.Message) error {
	if f.Format == "json" {
		return f.json(msg)
	}
	_, err := fmt.Fprintf(f.Writer, "queued %s request %s\n", msg.Kind, msg.RequestID)
	return err
}

type resolutionOutput struct {
	Name          string `json:"name"`
	Found         bool   `json:"found"`
	ImageURL      string `json:"imageUrl,omitempty"`
	ExternalDocID string `json:"externalDocId,omitempty"`
	Source        string `json:"source,omitempty"`
}

// Resolution prints a resolver result.
func (f *OutputFormatter) Resolution(name string, res enrichment.Resolution, ok bool) error {
	if f.Format == "json" {
		return f.json(resolutionOutput{
			Name:          name,
			Found:         ok,
			ImageURL:      res.ImageURL,
			ExternalDocID: res.ExternalDocID,
			Source:        res.Source,
		})
	}
	if !ok {
		_, err := fmt.Fprintf(f.Writer, "%s: no image found\n", name)
		return err
	}
	_, err := fmt.Fprintf(f.Writer, "%s: %s (source=%s doc=%s)\n", name, res.ImageURL, res.Source, res.ExternalDocID)
	return err
}
