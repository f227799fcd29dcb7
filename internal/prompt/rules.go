// Package prompt classifies what the game is asking for. A ruleset is an
// ordered list of regex rules over the bottom rows of the screen; the first
// surviving match wins.
package prompt

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// InputKind tells the orchestrator how to answer a prompt.
type InputKind string

const (
	SingleKey InputKind = "single_key"
	MultiKey  InputKind = "multi_key"
	AnyKey    InputKind = "any_key"
	NoInput   InputKind = "none"
)

// Kind is the semantic category of a prompt.
type Kind string

const (
	KindLoginName Kind = "login_name"
	KindLoginPass Kind = "login_pass"
	KindGamePass  Kind = "game_pass"
	KindPause     Kind = "pause"
	KindConfirm   Kind = "confirm"
	KindMenu      Kind = "menu"
	KindInput     Kind = "input"
	KindUnknown   Kind = "unknown"
)

// Rule is one entry of the ordered ruleset. LLMHints is opaque to the core
// and carried into the LLM context verbatim.
type Rule struct {
	ID                string          `json:"id"`
	Regex             string          `json:"regex"`
	InputKind         InputKind       `json:"input_kind"`
	Kind              Kind            `json:"kind,omitempty"`
	ExpectCursorAtEnd bool            `json:"expect_cursor_at_end,omitempty"`
	NegativeRegex     string          `json:"negative_regex,omitempty"`
	LLMHints          json.RawMessage `json:"llm_hints,omitempty"`

	re    *regexp.Regexp
	negRe *regexp.Regexp
}

// RuleSet is a compiled, ordered rule list for one game namespace.
type RuleSet struct {
	Namespace string `json:"namespace,omitempty"`
	Rules     []Rule `json:"rules"`

	// AnchorKeys is the game's safe-anchor key sequence used by loop
	// recovery, e.g. return-to-sector-command.
	AnchorKeys string `json:"anchor_keys,omitempty"`
}

// LoadRules reads and compiles a rule file. Rules keep file order.
func LoadRules(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return ParseRules(data)
}

// ParseRules compiles a JSON ruleset. Accepts either a bare array of rules
// or an object with a "rules" key.
func ParseRules(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := json.Unmarshal(data, &rs); err != nil {
		var rules []Rule
		if err2 := json.Unmarshal(data, &rules); err2 != nil {
			return nil, fmt.Errorf("parse rules: %w", err)
		}
		rs.Rules = rules
	}
	if len(rs.Rules) == 0 {
		return nil, fmt.Errorf("parse rules: empty ruleset")
	}
	for i := range rs.Rules {
		r := &rs.Rules[i]
		if r.ID == "" {
			return nil, fmt.Errorf("parse rules: rule %d has no id", i)
		}
		re, err := regexp.Compile(r.Regex)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.ID, err)
		}
		r.re = re
		if r.NegativeRegex != "" {
			neg, err := regexp.Compile(r.NegativeRegex)
			if err != nil {
				return nil, fmt.Errorf("rule %s negative: %w", r.ID, err)
			}
			r.negRe = neg
		}
	}
	return &rs, nil
}

// Hints returns the llm_hints of the rule with the given id, or nil.
func (rs *RuleSet) Hints(id string) json.RawMessage {
	for i := range rs.Rules {
		if rs.Rules[i].ID == id {
			return rs.Rules[i].LLMHints
		}
	}
	return nil
}
