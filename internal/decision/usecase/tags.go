package usecase

import (
	"context"

	"decisionlog-backend/internal/decision/repository"
	"decisionlog-backend/pkg/ai"
	"decisionlog-backend/pkg/fuzzy"
)

// ResolveTags normalizes names and folds near-duplicates onto existing tags,
// so "budgte" attaches to "budget" instead of creating a new tag.
func ResolveTags(names, existing []string) []string {
	known := append([]string(nil), existing...)
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = ai.NormalizeTag(n)
		if n == "" {
			continue
		}
		if match, ok := fuzzy.ClosestMatch(n, known); ok {
			n = match
		} else {
			known = append(known, n)
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func attachTags(ctx context.Context, repo repository.TagRepository, decisionID string, names []string) error {
	if len(names) == 0 {
		return nil
	}
	tags, err := repo.Ensure(ctx, names)
	if err != nil {
		return err
	}
	ids := make([]uint, 0, len(tags))
	for _, t := range tags {
		ids = append(ids, t.ID)
	}
	return repo.Attach(ctx, decisionID, ids)
}
