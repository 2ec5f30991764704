// Copyright 2026 © The Axon Authors
// SPDX-License-Identifier: Apache-2.0

// Package guard provides the pre-flight safety scan applied to task
// directives before they ever reach the agent execution loop. Unlike the
// capability registry (which gates tool calls), the guard inspects the
// directive text itself.
package guard

import (
	"context"
	"regexp"
)

// Verdict is the outcome of a safety scan.
type Verdict struct {
	// Safe indicates the directive may proceed to execution.
	Safe bool

	// Reason explains the rejection (empty when safe).
	Reason string

	// RuleID identifies the rule that fired.
	RuleID string
}

type rule struct {
	id      string
	reason  string
	pattern *regexp.Regexp
}

// Scanner evaluates directives against a fixed rule set.
type Scanner struct {
	rules []rule
}

var defaultRules = []struct {
	id      string
	reason  string
	pattern string
}{
	// Instruction override attempts
	{"injection.override", "directive attempts to override agent instructions",
		`(?i)(ignore|disregard|forget|override)\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`},
	{"injection.jailbreak", "directive contains a jailbreak attempt",
		`(?i)(jailbreak|do\s+anything\s+now|bypass\s+(safety|content|filter))`},

	// Destructive host commands
	{"destructive.filesystem", "directive requests destructive filesystem operations",
		`(?i)(rm\s+-rf\s+/|mkfs\.|dd\s+if=.*of=/dev/|:\(\)\s*\{\s*:\|:)`},
	{"destructive.wipe", "directive requests wiping persisted state",
		`(?i)(drop\s+table|truncate\s+table|delete\s+from\s+\w+\s*;?\s*$)`},

	// Credential exfiltration
	{"exfil.credentials", "directive requests credential or key material exfiltration",
		`(?i)(exfiltrate|leak|send\s+me)\s+.*(api[_\s-]?key|password|credential|secret|private\s+key)`},
	{"exfil.env", "directive reads credential environment variables",
		`(?i)(cat|echo|print)\s+.*\$(AWS_SECRET|API_KEY|TOKEN|PASSWORD)`},
}

// NewScanner creates a scanner with the default rule set.
func NewScanner() *Scanner {
	s := &Scanner{rules: make([]rule, 0, len(defaultRules))}
	for _, r := range defaultRules {
		if re, err := regexp.Compile(r.pattern); err == nil {
			s.rules = append(s.rules, rule{id: r.id, reason: r.reason, pattern: re})
		}
	}
	return s
}

// Scan evaluates the directive and returns the first matching rule's
// verdict. A directive that matches no rule is safe.
func (s *Scanner) Scan(_ context.Context, directive string) Verdict {
	for _, r := range s.rules {
		if r.pattern.MatchString(directive) {
			return Verdict{Safe: false, Reason: r.reason, RuleID: r.id}
		}
	}
	return Verdict{Safe: true}
}
