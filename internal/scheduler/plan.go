package scheduler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fairyhunter13/jobharvest/internal/config"
	"github.com/fairyhunter13/jobharvest/internal/domain"
)

// actionKind selects which adapter a slot action drives.
type actionKind string

const (
	actionRSS        actionKind = "rss"
	actionGovernment actionKind = "government"
	actionCompany    actionKind = "company"
	actionSerp       actionKind = "serp"
)

// SlotAction is one adapter invocation inside a slot.
type SlotAction struct {
	Kind   actionKind
	Bands  []string          // rss only
	Search domain.SearchType // serp only
	// Conditional actions run only when the day's running total is below
	// the gap-fill floor and quota remains.
	Conditional bool
}

// SlotPlan is the contract for one hour: which adapters run and how much
// paid quota the hour may spend.
type SlotPlan struct {
	Hour        int
	Actions     []SlotAction
	QuotaBudget int
}

// defaultPlan is the fixed daily slot table. Catalogue overrides replace
// individual hours, never extend an hour in place.
func defaultPlan() []SlotPlan {
	return []SlotPlan{
		{Hour: 0, Actions: []SlotAction{
			{Kind: actionRSS, Bands: []string{"high"}},
		}},
		{Hour: 6, QuotaBudget: 1, Actions: []SlotAction{
			{Kind: actionRSS, Bands: []string{"high", "medium"}},
			{Kind: actionSerp, Search: domain.SearchFresh},
		}},
		{Hour: 9, Actions: []SlotAction{
			{Kind: actionGovernment},
			{Kind: actionCompany},
		}},
		{Hour: 12, Actions: []SlotAction{
			{Kind: actionRSS, Bands: []string{"high", "medium", "low"}},
			{Kind: actionGovernment},
		}},
		{Hour: 15, QuotaBudget: 1, Actions: []SlotAction{
			{Kind: actionRSS, Bands: []string{"high"}},
			{Kind: actionSerp, Search: domain.SearchExecutive},
		}},
		{Hour: 18, Actions: []SlotAction{
			{Kind: actionRSS, Bands: []string{"high", "medium"}},
			{Kind: actionCompany},
		}},
		{Hour: 21, QuotaBudget: 1, Actions: []SlotAction{
			{Kind: actionRSS, Bands: []string{"low"}},
			{Kind: actionSerp, Search: domain.SearchGapFill, Conditional: true},
		}},
	}
}

// buildPlan applies catalogue slot overrides onto the default table.
func buildPlan(overrides []config.SlotOverride) ([]SlotPlan, error) {
	plan := defaultPlan()
	for _, o := range overrides {
		actions, err := parseActions(o.Actions)
		if err != nil {
			return nil, err
		}
		sp := SlotPlan{Hour: o.Hour, Actions: actions, QuotaBudget: o.QuotaBudget}
		replaced := false
		for i := range plan {
			if plan[i].Hour == o.Hour {
				plan[i] = sp
				replaced = true
				break
			}
		}
		if !replaced {
			plan = append(plan, sp)
		}
	}
	sort.Slice(plan, func(i, j int) bool { return plan[i].Hour < plan[j].Hour })
	return plan, nil
}

// parseActions decodes catalogue action tokens such as "rss:high+medium",
// "government", or "serp:gap_fill".
func parseActions(tokens []string) ([]SlotAction, error) {
	actions := make([]SlotAction, 0, len(tokens))
	for _, tok := range tokens {
		kind, arg, _ := strings.Cut(tok, ":")
		switch actionKind(kind) {
		case actionRSS:
			var bands []string
			if arg == "all" || arg == "" {
				bands = []string{"high", "medium", "low"}
			} else {
				bands = strings.Split(arg, "+")
			}
			for _, b := range bands {
				if b != "high" && b != "medium" && b != "low" {
					return nil, fmt.Errorf("op=scheduler.parseActions: bad rss band %q: %w", b, domain.ErrInvalidArgument)
				}
			}
			actions = append(actions, SlotAction{Kind: actionRSS, Bands: bands})
		case actionGovernment:
			actions = append(actions, SlotAction{Kind: actionGovernment})
		case actionCompany:
			actions = append(actions, SlotAction{Kind: actionCompany})
		case actionSerp:
			st := domain.SearchType(arg)
			switch st {
			case domain.SearchFresh, domain.SearchExecutive:
				actions = append(actions, SlotAction{Kind: actionSerp, Search: st})
			case domain.SearchGapFill:
				actions = append(actions, SlotAction{Kind: actionSerp, Search: st, Conditional: true})
			default:
				return nil, fmt.Errorf("op=scheduler.parseActions: bad search type %q: %w", arg, domain.ErrInvalidArgument)
			}
		default:
			return nil, fmt.Errorf("op=scheduler.parseActions: unknown action %q: %w", tok, domain.ErrInvalidArgument)
		}
	}
	return actions, nil
}
