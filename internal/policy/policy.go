// Package policy implements the safety gate: a pure decision function
// that maps a task's capability categories and literal action payload
// to Allow, RequireConfirmation, or Deny. The policy document is
// loaded once at startup and is immutable for the session.
package policy

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/voxop/voxop/internal/errors"
)

// Capability classifies what an action touches. Categories are derived
// from a task's execution path and payload, not declared by the user.
type Capability string

const (
	CapabilityFilesystemWrite  Capability = "filesystem-write"
	CapabilityProcessControl   Capability = "process-control"
	CapabilityNetworking       Capability = "networking"
	CapabilityInputAutomation  Capability = "input-automation"
	CapabilityCredentialAccess Capability = "credential-access"
)

// Capabilities lists every known category, sorted.
func Capabilities() []Capability {
	return []Capability{
		CapabilityCredentialAccess,
		CapabilityFilesystemWrite,
		CapabilityInputAutomation,
		CapabilityNetworking,
		CapabilityProcessControl,
	}
}

// Action is a policy verdict for a capability category.
type Action string

const (
	ActionAllow   Action = "allow"
	ActionConfirm Action = "confirm"
	ActionDeny    Action = "deny"
)

func (a Action) valid() bool {
	switch a {
	case ActionAllow, ActionConfirm, ActionDeny:
		return true
	}
	return false
}

// restrictiveness orders actions so the strictest verdict wins when a
// payload falls under several categories.
func (a Action) restrictiveness() int {
	switch a {
	case ActionDeny:
		return 2
	case ActionConfirm:
		return 1
	default:
		return 0
	}
}

// Decision is the gate's verdict for one task.
type Decision struct {
	// Action is the verdict: allow, confirm, or deny.
	Action Action

	// Reason explains the verdict in user-facing terms.
	Reason string

	// Capability is the category that produced the verdict, empty when
	// only the default rule applied.
	Capability Capability

	// Pattern is the block or confirm pattern that fired, if any.
	Pattern string
}

// Policy is the on-disk safety policy document.
type Policy struct {
	Version int `yaml:"version"`

	// Default applies to payloads that fall under no known category.
	Default Action `yaml:"default"`

	// Capabilities maps a category to its verdict.
	Capabilities map[Capability]Action `yaml:"capabilities"`

	// BlockPatterns are regular expressions matched against the
	// rendered payload. A match denies the task outright, overriding
	// every capability rule.
	BlockPatterns []string `yaml:"block_patterns"`

	// ConfirmPatterns escalate an otherwise allowed payload to
	// RequireConfirmation.
	ConfirmPatterns []string `yaml:"confirm_patterns"`
}

// Validate checks actions and capability names. Pattern syntax is
// checked at gate construction, where the regexes are compiled.
func (p *Policy) Validate() error {
	if p.Default != "" && !p.Default.valid() {
		return errors.New(errors.ErrCodePolicyInvalid,
			fmt.Sprintf("invalid default action %q", p.Default)).
			WithSuggestion("Use one of: allow, confirm, deny")
	}

	known := make(map[Capability]bool, 5)
	for _, c := range Capabilities() {
		known[c] = true
	}
	for cap, action := range p.Capabilities {
		if !known[cap] {
			return errors.New(errors.ErrCodePolicyInvalid,
				fmt.Sprintf("unknown capability category %q", cap)).
				WithSuggestion(fmt.Sprintf("Known categories: %s", joinCapabilities()))
		}
		if !action.valid() {
			return errors.New(errors.ErrCodePolicyInvalid,
				fmt.Sprintf("invalid action %q for capability %q", action, cap)).
				WithSuggestion("Use one of: allow, confirm, deny")
		}
	}
	return nil
}

func joinCapabilities() string {
	caps := Capabilities()
	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = string(c)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// Gate evaluates tasks against a loaded policy. Construction compiles
// the pattern lists once; Evaluate is pure and safe for concurrent use.
type Gate struct {
	policy  *Policy
	block   []*regexp.Regexp
	confirm []*regexp.Regexp
}

// NewGate compiles the policy's patterns. A pattern that does not
// compile is a policy error, not a runtime one.
func NewGate(p *Policy) (*Gate, error) {
	if p == nil {
		p = DefaultPolicy()
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	g := &Gate{policy: p}
	for _, pat := range p.BlockPatterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodePolicyInvalid,
				fmt.Sprintf("block pattern %q does not compile", pat), err)
		}
		g.block = append(g.block, re)
	}
	for _, pat := range p.ConfirmPatterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodePolicyInvalid,
				fmt.Sprintf("confirm pattern %q does not compile", pat), err)
		}
		g.confirm = append(g.confirm, re)
	}
	return g, nil
}

// Evaluate returns the verdict for a payload falling under the given
// capability categories. Block patterns fire first and deny outright.
// Otherwise the strictest capability rule wins, with the policy
// default covering uncategorized payloads. Confirm patterns escalate
// an allow to a confirmation.
func (g *Gate) Evaluate(caps []Capability, payload string) Decision {
	for i, re := range g.block {
		if re.MatchString(payload) {
			return Decision{
				Action:  ActionDeny,
				Reason:  fmt.Sprintf("payload matches blocked pattern %q", g.policy.BlockPatterns[i]),
				Pattern: g.policy.BlockPatterns[i],
			}
		}
	}

	verdict := Decision{Action: g.defaultAction(), Reason: "policy default"}
	for _, cap := range caps {
		action, ok := g.policy.Capabilities[cap]
		if !ok {
			continue
		}
		if action.restrictiveness() > verdict.Action.restrictiveness() {
			verdict = Decision{
				Action:     action,
				Reason:     fmt.Sprintf("capability %s requires %s", cap, action),
				Capability: cap,
			}
		}
	}

	if verdict.Action == ActionAllow {
		for i, re := range g.confirm {
			if re.MatchString(payload) {
				return Decision{
					Action:  ActionConfirm,
					Reason:  fmt.Sprintf("payload matches confirmation pattern %q", g.policy.ConfirmPatterns[i]),
					Pattern: g.policy.ConfirmPatterns[i],
				}
			}
		}
	}
	return verdict
}

func (g *Gate) defaultAction() Action {
	if g.policy.Default == "" {
		return ActionConfirm
	}
	return g.policy.Default
}

// Policy returns the loaded document, for display commands.
func (g *Gate) Policy() *Policy {
	return g.policy
}

// RenderPayload flattens a task's command sequences and free text into
// the single string the gate's patterns match against.
func RenderPayload(commands [][]string, text string) string {
	var b strings.Builder
	for _, argv := range commands {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.Join(argv, " "))
	}
	if text != "" {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(text)
	}
	return b.String()
}
