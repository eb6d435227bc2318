package rule

import (
	"context"
	"fmt"

	"recsched/internal/reservation"
)

// ProgramFinder is the catalog query used by Expand.
type ProgramFinder interface {
	FindByRule(ctx context.Context, c SearchCriteria) ([]reservation.Program, error)
}

// Expand materializes the candidates of r. A nil or disabled rule yields
// nothing. prior maps program ids to their current skip flag; a program
// that was skipped stays skipped.
func Expand(ctx context.Context, finder ProgramFinder, r *Rule, prior map[int64]bool) ([]reservation.Reservation, error) {
	if r == nil || !r.Enable {
		return nil, nil
	}
	programs, err := finder.FindByRule(ctx, r.Search())
	if err != nil {
		return nil, fmt.Errorf("find programs for rule %d: %w", r.ID, err)
	}
	enc := r.Encode()
	out := make([]reservation.Reservation, 0, len(programs))
	for _, p := range programs {
		c := reservation.NewRule(r.ID, p)
		c.Skip = prior[p.ID]
		c.Option = r.Option()
		c.EncodeOption = enc
		// Clone so candidates never share the rule's option pointers.
		out = append(out, c.Clone())
	}
	return out, nil
}
