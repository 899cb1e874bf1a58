package enrichimpl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ousepachn/insta-media-sync/internal/analyzer"
	"github.com/ousepachn/insta-media-sync/internal/domain"
	"github.com/ousepachn/insta-media-sync/internal/enrich"
	"github.com/ousepachn/insta-media-sync/internal/mediapath"
	"github.com/ousepachn/insta-media-sync/pkg/logger"
	"go.uber.org/fx"
)

type Opts struct {
	fx.In

	Analyzer   analyzer.Client
	Compositor enrich.GridCompositor
	Logger     logger.Logger
}

type Tracker struct {
	Analyzer   analyzer.Client
	Compositor enrich.GridCompositor
	Logger     logger.Logger

	// now is swappable in tests.
	now func() time.Time
}

var _ enrich.Client = (*Tracker)(nil)

func New(opts Opts) *Tracker {
	return &Tracker{
		Analyzer:   opts.Analyzer,
		Compositor: opts.Compositor,
		Logger:     opts.Logger.WithComponent("Enricher"),
		now:        time.Now,
	}
}

// Process applies the configured mode. update_all resets every record's
// enrichment group before any call is made, then processes everything;
// update_remaining touches only pending records; skip returns the set as
// handed in. A record's enrichment group is written only after a successful
// analysis, so a crash or failure can never persist a half-enriched record.
func (t *Tracker) Process(ctx context.Context, set domain.RecordSet, mode domain.ProcessMode) (domain.RecordSet, enrich.Summary, error) {
	if mode == domain.ProcessModeSkip {
		return set, enrich.Summary{Skipped: set.Len()}, nil
	}

	out := set.Clone()
	var summary enrich.Summary

	if mode == domain.ProcessModeUpdateAll {
		for i := range out.Records {
			out.Records[i].Enrichment = domain.Enrichment{}
		}
	}

	for i := range out.Records {
		rec := &out.Records[i]

		if !rec.NeedsEnrichment() {
			summary.Skipped++
			continue
		}
		if rec.StorageLocation == "" {
			t.Logger.Debug("Record has no stored media, skipping enrichment", "post_id", rec.PostID)
			summary.Skipped++
			continue
		}

		enrichment, err := t.analyzeRecord(ctx, *rec)
		if err != nil {
			// Failure isolation: the record stays pending and the batch
			// moves on. A later update_remaining pass retries it.
			t.Logger.Warn("Analysis failed, leaving record pending",
				"post_id", rec.PostID, "media_type", rec.MediaType, "error", err)
			summary.Skipped++
			summary.Failed++
			continue
		}

		rec.Enrichment = enrichment
		summary.Processed++
	}

	t.Logger.Info("Enrichment pass finished", "mode", mode,
		"processed", summary.Processed, "skipped", summary.Skipped, "failed", summary.Failed)
	return out, summary, nil
}

func (t *Tracker) analyzeRecord(ctx context.Context, rec domain.PostRecord) (domain.Enrichment, error) {
	var (
		findings domain.Findings
		err      error
	)

	switch rec.MediaType {
	case domain.MediaTypeReel:
		findings, err = t.Analyzer.AnalyzeVideo(ctx, rec.StorageLocation)
	case domain.MediaTypeAlbum:
		findings, err = t.analyzeAlbum(ctx, rec)
	default:
		findings, err = t.Analyzer.AnalyzeImage(ctx, rec.StorageLocation, rec.Caption)
	}
	if err != nil {
		return domain.Enrichment{}, err
	}
	if findings.Description == "" {
		return domain.Enrichment{}, analyzer.ErrEmptyAnalysis
	}

	processedAt := t.now().UTC()
	return domain.Enrichment{
		Description: describe(findings, rec.MediaType),
		Findings:    findings,
		ProcessedAt: &processedAt,
	}, nil
}

// analyzeAlbum composes the album's media into 4-item grids, analyzes each
// grid independently and concatenates the findings in grid order.
func (t *Tracker) analyzeAlbum(ctx context.Context, rec domain.PostRecord) (domain.Findings, error) {
	gridPrefix := mediapath.GridPrefix(rec.Username, rec.PostID)
	gridPaths, err := t.Compositor.BuildGrids(ctx, rec.StorageLocation, len(rec.MediaURLs), gridPrefix)
	if err != nil {
		return domain.Findings{}, fmt.Errorf("failed to build grids: %w", err)
	}
	if len(gridPaths) == 0 {
		return domain.Findings{}, fmt.Errorf("album produced no grids")
	}

	var merged domain.Findings
	for n, gridPath := range gridPaths {
		f, err := t.Analyzer.AnalyzeImage(ctx, gridPath, rec.Caption)
		if err != nil {
			return domain.Findings{}, fmt.Errorf("grid %d analysis failed: %w", n, err)
		}
		merged.Description = joinSection(merged.Description, f.Description)
		merged.Style = joinSection(merged.Style, f.Style)
		merged.Text = joinSection(merged.Text, f.Text)
		merged.Safety = joinSection(merged.Safety, f.Safety)
	}
	return merged, nil
}

func joinSection(existing, next string) string {
	if next == "" {
		return existing
	}
	if existing == "" {
		return next
	}
	return existing + "\n\n" + next
}

// describe renders the structured findings into the human-readable content
// description stored on the record.
func describe(f domain.Findings, mt domain.MediaType) string {
	sections := []string{f.Description}

	if mt == domain.MediaTypeReel {
		if f.Dialogue != "" {
			sections = append(sections, "Audio content: "+f.Dialogue)
		}
		if f.Scenes != "" {
			sections = append(sections, "Scenes: "+f.Scenes)
		}
	} else {
		if f.Style != "" {
			sections = append(sections, "Style: "+f.Style)
		}
		if f.Text != "" {
			sections = append(sections, "Text found: "+f.Text)
		}
	}

	if strings.Contains(strings.ToLower(f.Safety), "concerning") {
		sections = append(sections, "Note: this media may contain sensitive content")
	}

	return strings.Join(sections, "\n")
}
