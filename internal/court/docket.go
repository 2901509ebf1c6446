package court

import (
	"slices"
	"sync"
	"time"

	"github.com/AutonomosCdM/first-court-sub000/internal/core/messaging"
)

// Filing is one docket record.
type Filing struct {
	CaseID    string
	MessageID string
	From      string
	Type      messaging.Type
	Subject   string
	FiledAt   time.Time
}

// Docket is the secretary's register of everything that reached it.
type Docket struct {
	mu      sync.RWMutex
	filings []Filing
}

func (d *Docket) file(msg messaging.Message, now time.Time) Filing {
	id, _ := caseID(msg.Content())
	f := Filing{
		CaseID:    id,
		MessageID: msg.ID(),
		From:      msg.From(),
		Type:      msg.Type(),
		Subject:   msg.Subject(),
		FiledAt:   now,
	}

	d.mu.Lock()
	d.filings = append(d.filings, f)
	d.mu.Unlock()
	return f
}

// Filings returns every filing, oldest first.
func (d *Docket) Filings() []Filing {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.filings)
}

// ForCase returns the filings for one case, oldest first.
func (d *Docket) ForCase(id string) []Filing {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []Filing
	for _, f := range d.filings {
		if f.CaseID == id {
			out = append(out, f)
		}
	}
	return out
}

func (d *Docket) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.filings)
}
