// Package court wires the courtroom participants on top of the agent
// base. The handlers here are deterministic stand-ins: they answer,
// file and acknowledge, and leave the legal reasoning to whatever
// drives them.
package court

import (
	"errors"
	"fmt"
	"strings"
)

// Role identifies what a participant does in the proceedings.
type Role string

const (
	RoleJudge      Role = "judge"
	RoleProsecutor Role = "prosecutor"
	RoleDefender   Role = "defender"
	RoleSecretary  Role = "secretary"
)

// Roles returns every role in a stable order.
func Roles() []Role {
	return []Role{RoleJudge, RoleProsecutor, RoleDefender, RoleSecretary}
}

func (r Role) Valid() bool {
	switch r {
	case RoleJudge, RoleProsecutor, RoleDefender, RoleSecretary:
		return true
	}
	return false
}

// ParseRole parses a role name, case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// ErrMissingCaseID is returned by every role when a request does not
// name the case it is about.
var ErrMissingCaseID = errors.New("request has no case_id")

// ContentCaseID is the content key that names the case a message is about.
const ContentCaseID = "case_id"

func caseID(content map[string]any) (string, bool) {
	v, ok := content[ContentCaseID]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
