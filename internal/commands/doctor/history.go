package doctor

import (
	"context"
	"errors"
	"fmt"

	"github.com/AutonomosCdM/first-court-sub000/internal/core/history"
)

// HistoryCheck loads every exported history and verifies its digest chain.
type HistoryCheck struct {
	open func() (history.Store, error)
}

// NewHistoryCheck creates a history check. open is called when the check
// runs; a nil store means export is disabled and the check only warns.
func NewHistoryCheck(open func() (history.Store, error)) *HistoryCheck {
	return &HistoryCheck{open: open}
}

func (c *HistoryCheck) Name() string {
	return "Exported Histories"
}

func (c *HistoryCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	store, err := c.open()
	if err != nil {
		result.add("Open store", StatusFail, err.Error())
		return result
	}
	if store == nil {
		result.add("Export", StatusWarn, "export backend is none; nothing to check")
		return result
	}

	ids, err := store.Agents(ctx)
	if err != nil {
		result.add("List agents", StatusFail, err.Error())
		return result
	}
	if len(ids) == 0 {
		result.add("No exported histories", StatusPass, "")
		return result
	}

	for _, id := range ids {
		entries, err := store.Load(ctx, id)
		switch {
		case errors.Is(err, history.ErrNotFound):
			continue
		case err != nil:
			result.add(id, StatusFail, err.Error())
		default:
			if err := history.VerifyChain(entries); err != nil {
				result.add(id, StatusFail, err.Error())
			} else {
				result.add(id, StatusPass, fmt.Sprintf("%d entries, chain intact", len(entries)))
			}
		}
	}

	return result
}
