// Package simulation drives a courtroom scenario end to end: it builds
// the broker and members, executes scripted steps and exports every
// member's history.
package simulation

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/AutonomosCdM/first-court-sub000/internal/core/messaging"
	"github.com/AutonomosCdM/first-court-sub000/internal/court"
	"github.com/hay-kot/criterio"
	"gopkg.in/yaml.v3"
)

// Action names a scenario step.
type Action string

const (
	ActionSend        Action = "send"
	ActionRequest     Action = "request"
	ActionNotify      Action = "notify"
	ActionDecide      Action = "decide"
	ActionReplyAll    Action = "reply-all"
	ActionProcess     Action = "process"
	ActionSubscribe   Action = "subscribe"
	ActionUnsubscribe Action = "unsubscribe"
	ActionDeregister  Action = "deregister"
	ActionExpire      Action = "expire"
)

// AllAgents selects every member in a process, deregister or expire step.
const AllAgents = "all"

func (a Action) Valid() bool {
	switch a {
	case ActionSend, ActionRequest, ActionNotify, ActionDecide, ActionReplyAll,
		ActionProcess, ActionSubscribe, ActionUnsubscribe, ActionDeregister, ActionExpire:
		return true
	}
	return false
}

// needsFrom reports whether the step acts on behalf of a single member.
func (a Action) needsFrom() bool {
	switch a {
	case ActionProcess, ActionDeregister, ActionExpire:
		return false
	}
	return true
}

// Scenario is a scripted courtroom session.
type Scenario struct {
	Name          string         `yaml:"name"`
	Agents        []AgentSpec    `yaml:"agents"`
	Subscriptions []Subscription `yaml:"subscriptions"`
	Steps         []Step         `yaml:"steps"`
}

// AgentSpec declares one member.
type AgentSpec struct {
	ID   string `yaml:"id"`
	Role string `yaml:"role"`
}

// Subscription is a listener->target edge set up before the first step.
type Subscription struct {
	Listener string `yaml:"listener"`
	Target   string `yaml:"target"`
}

// Step is one scripted action. Which fields apply depends on Action:
//
//	send, request        from, to (exactly one), subject, content, priority, correlation; send also needs type
//	notify, decide       from, to (empty means the sender's subscribers), subject, content, priority, correlation
//	reply-all            from, optional subject and content
//	subscribe, unsubscribe  from (listener), to (targets)
//	process, expire, deregister  agents (ids or "all")
type Step struct {
	Action      Action         `yaml:"action"`
	From        string         `yaml:"from,omitempty"`
	To          []string       `yaml:"to,omitempty"`
	Agents      []string       `yaml:"agents,omitempty"`
	Subject     string         `yaml:"subject,omitempty"`
	Type        string         `yaml:"type,omitempty"`
	Priority    string         `yaml:"priority,omitempty"`
	Correlation string         `yaml:"correlation,omitempty"`
	Content     map[string]any `yaml:"content,omitempty"`
}

// LoadScenario decodes a scenario from YAML. Unknown fields are rejected.
func LoadScenario(r io.Reader) (*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("parse scenario: empty input")
		}
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	return &sc, nil
}

// LoadScenarioFile reads and decodes the scenario at path.
func LoadScenarioFile(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer func() { _ = f.Close() }()

	return LoadScenario(f)
}

// Validate checks the scenario's structure. Receivers in `to` are not
// required to be declared members: sending to an unknown agent is a
// legitimate thing to simulate and is reported when the step runs.
func (s *Scenario) Validate() error {
	var errs criterio.FieldErrorsBuilder

	if s.Name == "" {
		errs = errs.Append("name", errors.New("is required"))
	}
	if len(s.Agents) == 0 {
		errs = errs.Append("agents", errors.New("at least one agent is required"))
	}

	declared := make(map[string]bool, len(s.Agents))
	for i, a := range s.Agents {
		field := fmt.Sprintf("agents[%d]", i)
		if a.ID == "" {
			errs = errs.Append(field+".id", errors.New("is required"))
			continue
		}
		if a.ID == AllAgents {
			errs = errs.Append(field+".id", fmt.Errorf("%q is reserved", AllAgents))
			continue
		}
		if declared[a.ID] {
			errs = errs.Append(field+".id", fmt.Errorf("duplicate id %q", a.ID))
			continue
		}
		declared[a.ID] = true

		if _, err := court.ParseRole(a.Role); err != nil {
			errs = errs.Append(field+".role", err)
		}
	}

	for i, sub := range s.Subscriptions {
		field := fmt.Sprintf("subscriptions[%d]", i)
		if !declared[sub.Listener] {
			errs = errs.Append(field+".listener", fmt.Errorf("undeclared agent %q", sub.Listener))
		}
		if !declared[sub.Target] {
			errs = errs.Append(field+".target", fmt.Errorf("undeclared agent %q", sub.Target))
		}
	}

	for i, step := range s.Steps {
		errs = step.validate(fmt.Sprintf("steps[%d]", i), declared, errs)
	}

	return errs.ToError()
}

func (st Step) validate(field string, declared map[string]bool, errs criterio.FieldErrorsBuilder) criterio.FieldErrorsBuilder {
	if !st.Action.Valid() {
		return errs.Append(field+".action", fmt.Errorf("unknown action %q", st.Action))
	}

	if st.Action.needsFrom() {
		switch {
		case st.From == "":
			errs = errs.Append(field+".from", errors.New("is required"))
		case !declared[st.From]:
			errs = errs.Append(field+".from", fmt.Errorf("undeclared agent %q", st.From))
		}
	}

	switch st.Action {
	case ActionSend, ActionRequest:
		if len(st.To) != 1 {
			errs = errs.Append(field+".to", errors.New("exactly one receiver is required"))
		}
	case ActionSubscribe, ActionUnsubscribe:
		if len(st.To) == 0 {
			errs = errs.Append(field+".to", errors.New("at least one target is required"))
		}
	case ActionProcess, ActionDeregister, ActionExpire:
		if len(st.Agents) == 0 {
			errs = errs.Append(field+".agents", errors.New("at least one agent or \"all\" is required"))
		}
		for _, id := range st.Agents {
			if id != AllAgents && !declared[id] {
				errs = errs.Append(field+".agents", fmt.Errorf("undeclared agent %q", id))
			}
		}
	}

	if st.Action == ActionSend {
		if _, err := messaging.ParseType(st.Type); err != nil {
			errs = errs.Append(field+".type", err)
		}
	} else if st.Type != "" && st.Action != ActionNotify {
		errs = errs.Append(field+".type", fmt.Errorf("not supported for %s", st.Action))
	}
	if st.Action == ActionNotify && st.Type != "" {
		if t, err := messaging.ParseType(st.Type); err != nil || (t != messaging.TypeNotification && t != messaging.TypeUpdate) {
			errs = errs.Append(field+".type", fmt.Errorf("notify sends %s or %s", messaging.TypeNotification, messaging.TypeUpdate))
		}
	}

	if st.Priority != "" {
		if _, err := messaging.ParsePriority(st.Priority); err != nil {
			errs = errs.Append(field+".priority", err)
		}
	}

	return errs
}
