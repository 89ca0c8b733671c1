package lifecycle

import (
	"context"
	"log/slog"
	"strings"

	"leaflens/internal/annotation"
	"leaflens/internal/logging"
	"leaflens/internal/match"
	"leaflens/internal/scans"
	"leaflens/internal/services"
)

const suggestionTerms = 3

// runMatch scores the composite against the current catalog snapshot. A
// confident top candidate ends in matched; otherwise the record ends in
// unmatched with keyword suggestions when a searcher is available.
func (c *Controller) runMatch(ctx context.Context, logger *slog.Logger, rec *scans.Record) error {
	snap := c.deps.Catalog.Current()
	if snap == nil {
		return c.fail(ctx, logger, rec, stageMatching,
			services.Wrap(services.ErrConfiguration, stageMatching, "load catalog", "no catalog snapshot loaded", nil))
	}
	if err := c.enter(ctx, logger, rec, scans.StatusMatching); err != nil {
		return err
	}

	composite := annotation.Composite{}
	if rec.Composite != nil {
		composite = *rec.Composite
	}
	candidates := c.deps.Engine.Match(composite, snap)
	rec.Candidates = candidates
	rec.Suggestions = nil
	rec.MatchedCandidateID = ""

	next := scans.StatusUnmatched
	if confident(candidates) {
		next = scans.StatusMatched
		rec.MatchedCandidateID = candidates[0].CatalogEntryID
	} else {
		rec.Suggestions = c.suggest(ctx, logger, composite)
	}
	if err := ctx.Err(); err != nil {
		rec.Candidates, rec.Suggestions, rec.MatchedCandidateID = nil, nil, ""
		return c.fail(ctx, logger, rec, stageMatching, err)
	}

	if err := c.deps.Store.Update(context.WithoutCancel(ctx), rec); err != nil {
		return c.fail(ctx, logger, rec, stageMatching, err)
	}
	if err := c.advance(ctx, logger, rec, stageMatching, next,
		logging.Int("candidates", len(candidates)),
		logging.Int("suggestions", len(rec.Suggestions)),
		logging.Int("catalog_entries", snap.Len())); err != nil {
		return err
	}
	c.publishOutcome(ctx, logger, rec)
	return nil
}

func confident(candidates []match.Candidate) bool {
	return len(candidates) > 0 && !candidates[0].LowConfidence
}

// suggest queries the catalog searcher with the strongest descriptions. A
// search failure degrades to no suggestions.
func (c *Controller) suggest(ctx context.Context, logger *slog.Logger, composite annotation.Composite) []scans.Suggestion {
	if c.deps.Searcher == nil {
		return nil
	}
	query := strings.Join(composite.TopDescriptions(suggestionTerms), " ")
	if strings.TrimSpace(query) == "" {
		return nil
	}
	limit := c.cfg.Catalog.SearchLimit
	if limit <= 0 {
		limit = 5
	}
	entries, err := c.deps.Searcher.Search(ctx, query, limit)
	if err != nil {
		logging.WarnWithContext(logger, "catalog search failed", "suggestion_search_failed",
			logging.String("query", query),
			logging.Error(err),
			logging.String(logging.FieldImpact, "unmatched scan returned without suggestions"))
		return nil
	}
	out := make([]scans.Suggestion, 0, len(entries))
	for _, e := range entries {
		out = append(out, scans.Suggestion{ID: e.ID, Name: e.Name})
	}
	return out
}
