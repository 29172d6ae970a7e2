// Package policy decides whether destructive filesystem operations may
// proceed. Read-only operations are never evaluated.
package policy

import (
	"time"
)

// Action is the operation being requested.
type Action string

const (
	ActionDelete Action = "delete"
)

// DecisionType represents the outcome of policy evaluation.
type DecisionType string

const (
	Allow DecisionType = "ALLOW"
	Warn  DecisionType = "WARN"
	Deny  DecisionType = "DENY"
)

// Request is an operation to be evaluated. Path must already be validated
// and absolute.
type Request struct {
	Action Action `json:"action"`
	Path   string `json:"path"`
	IsDir  bool   `json:"is_dir"`
	Actor  string `json:"actor"` // "api" or "cli"
}

// Decision is the result of policy evaluation.
type Decision struct {
	DecisionID   string       `json:"decision_id"`
	Decision     DecisionType `json:"decision"`
	Reason       string       `json:"reason"`
	Action       Action       `json:"action"`
	Path         string       `json:"path"`
	Warnings     []string     `json:"warnings,omitempty"`
	BlockReasons []string     `json:"block_reasons,omitempty"`
	Timestamp    time.Time    `json:"timestamp"`
	Actor        string       `json:"actor"`
}

// Allowed reports whether the operation may go ahead.
func (d *Decision) Allowed() bool {
	return d.Decision != Deny
}

// Rule defines a policy rule.
type Rule struct {
	ID        string
	Priority  int // 0 = highest (blocklist), higher = lower priority
	Condition func(Request) bool
	Decision  DecisionType
	Reason    string
}

// Matches checks if the rule matches the request.
func (r Rule) Matches(req Request) bool {
	if r.Condition == nil {
		return false
	}
	return r.Condition(req)
}
