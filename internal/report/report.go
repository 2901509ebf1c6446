// Package report evaluates a run from the agents' histories. It only
// reads histories; nothing here mutates them.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/AutonomosCdM/first-court-sub000/internal/core/history"
	"github.com/AutonomosCdM/first-court-sub000/internal/core/messaging"
	"github.com/AutonomosCdM/first-court-sub000/pkg/tmpl"
)

// AgentStats summarizes one agent's history.
type AgentStats struct {
	AgentID   string `json:"agent_id"`
	Sent      int    `json:"sent"`
	Received  int    `json:"received"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`

	// ByType and ByPriority count each sent or received message once.
	ByType     map[messaging.Type]int `json:"by_type"`
	ByPriority map[string]int         `json:"by_priority"`

	Requests    int           `json:"requests"`
	Answered    int           `json:"answered"`
	Unanswered  []string      `json:"unanswered,omitempty"` // request ids
	MeanLatency time.Duration `json:"mean_latency_ns"`

	ChainOK    bool   `json:"chain_ok"`
	ChainError string `json:"chain_error,omitempty"`
}

// Report is the evaluation of every selected agent, sorted by agent id.
type Report struct {
	Agents []AgentStats `json:"agents"`
	Totals AgentStats   `json:"totals"`
}

// Option configures Compute.
type Option func(*options)

type options struct {
	filter Filter
}

// WithFilter restricts the report to matching agents and subjects. The
// chain check always covers the agent's full history.
func WithFilter(f Filter) Option {
	return func(o *options) {
		o.filter = f
	}
}

// Compute builds a report from the given histories.
func Compute(histories map[string]history.Reader, opts ...Option) Report {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	ids := make([]string, 0, len(histories))
	for id := range histories {
		if o.filter.MatchAgent(id) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	rep := Report{Totals: AgentStats{
		AgentID:    "total",
		ByType:     map[messaging.Type]int{},
		ByPriority: map[string]int{},
		ChainOK:    true,
	}}

	var latencySum time.Duration
	for _, id := range ids {
		r := histories[id]
		st := computeAgent(id, o.filter.Entries(r))
		if err := r.Verify(); err != nil {
			st.ChainError = err.Error()
		} else {
			st.ChainOK = true
		}

		rep.Agents = append(rep.Agents, st)
		rep.Totals.add(st)
		latencySum += st.MeanLatency * time.Duration(st.Answered)
	}

	if rep.Totals.Answered > 0 {
		rep.Totals.MeanLatency = latencySum / time.Duration(rep.Totals.Answered)
	}
	return rep
}

func computeAgent(id string, entries []history.Entry) AgentStats {
	st := AgentStats{
		AgentID:    id,
		ByType:     map[messaging.Type]int{},
		ByPriority: map[string]int{},
	}

	type request struct {
		id     string
		thread string
		sentAt time.Time
	}
	var requests []request
	responses := map[string]time.Time{} // thread id -> first response received

	for _, e := range entries {
		msg := e.Message

		switch {
		case e.Direction == history.DirectionSent:
			st.Sent++
			st.count(msg)
			if msg.Type() == messaging.TypeRequest {
				requests = append(requests, request{id: msg.ID(), thread: msg.ThreadID(), sentAt: e.Timestamp})
			}
		case e.Outcome == history.OutcomeDelivered:
			st.Received++
			st.count(msg)
			if msg.Type() == messaging.TypeResponse && msg.CorrelationID() != "" {
				if _, ok := responses[msg.CorrelationID()]; !ok {
					responses[msg.CorrelationID()] = e.Timestamp
				}
			}
		case e.Outcome == history.OutcomeProcessed:
			st.Processed++
		case e.Outcome == history.OutcomeFailed:
			st.Failed++
		}
	}

	var latencySum time.Duration
	st.Requests = len(requests)
	for _, req := range requests {
		at, ok := responses[req.thread]
		if !ok {
			st.Unanswered = append(st.Unanswered, req.id)
			continue
		}
		st.Answered++
		latencySum += at.Sub(req.sentAt)
	}
	if st.Answered > 0 {
		st.MeanLatency = latencySum / time.Duration(st.Answered)
	}
	return st
}

func (st *AgentStats) count(msg messaging.Message) {
	st.ByType[msg.Type()]++
	st.ByPriority[msg.Priority().String()]++
}

func (st *AgentStats) add(o AgentStats) {
	st.Sent += o.Sent
	st.Received += o.Received
	st.Processed += o.Processed
	st.Failed += o.Failed
	st.Requests += o.Requests
	st.Answered += o.Answered
	st.Unanswered = append(st.Unanswered, o.Unanswered...)
	for k, v := range o.ByType {
		st.ByType[k] += v
	}
	for k, v := range o.ByPriority {
		st.ByPriority[k] += v
	}
	st.ChainOK = st.ChainOK && o.ChainOK
}

const textTemplate = `{{ range .Agents }}{{ pad 12 .AgentID }} sent {{ .Sent }}  received {{ .Received }}  processed {{ .Processed }}  failed {{ .Failed }} ({{ pct .Failed .Received }})
{{ pad 12 "" }} requests {{ .Requests }}  answered {{ .Answered }}{{ if .Answered }}  mean latency {{ dur .MeanLatency }}{{ end }}{{ if .Unanswered }}  unanswered {{ len .Unanswered }}{{ end }}
{{ pad 12 "" }} types{{ range $t, $n := .ByType }} {{ $t }}={{ $n }}{{ end }}  priorities{{ range $p, $n := .ByPriority }} {{ $p }}={{ $n }}{{ end }}
{{ pad 12 "" }} chain {{ if .ChainOK }}ok{{ else }}BROKEN: {{ .ChainError }}{{ end }}
{{ end }}{{ with .Totals }}{{ pad 12 "total" }} sent {{ .Sent }}  received {{ .Received }}  processed {{ .Processed }}  failed {{ .Failed }} ({{ pct .Failed .Received }})
{{ pad 12 "" }} requests {{ .Requests }}  answered {{ .Answered }}{{ if .Answered }}  mean latency {{ dur .MeanLatency }}{{ end }}
{{ pad 12 "" }} chain {{ if .ChainOK }}ok{{ else }}BROKEN{{ end }}
{{ end }}`

// WriteText renders r as a plain-text table.
func WriteText(w io.Writer, r Report) error {
	out, err := tmpl.Render(textTemplate, r)
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}

// WriteJSON renders r as indented JSON.
func WriteJSON(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
