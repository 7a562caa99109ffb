package ratelimit

import (
	"errors"
	"fmt"
	"time"

	"github.com/Proton-105/tasklink-bot/pkg/config"
)

// Rule is a parsed limit per window. A zero Limit disables the rule.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Enabled reports whether the rule limits anything.
func (r Rule) Enabled() bool {
	return r.Limit > 0 && r.Window > 0
}

// Rules holds the configured limits.
type Rules struct {
	Inbound   Rule
	LinkIssue Rule
	whitelist map[int64]struct{}
}

// NewRules parses rate limiting rules from configuration settings.
func NewRules(cfg config.RateLimitConfig) (*Rules, error) {
	inbound, err := parseRule(cfg.Inbound)
	if err != nil {
		return nil, fmt.Errorf("inbound rule: %w", err)
	}
	linkIssue, err := parseRule(cfg.LinkIssue)
	if err != nil {
		return nil, fmt.Errorf("link_issue rule: %w", err)
	}

	wl := make(map[int64]struct{}, len(cfg.Whitelist))
	for _, id := range cfg.Whitelist {
		wl[id] = struct{}{}
	}

	return &Rules{Inbound: inbound, LinkIssue: linkIssue, whitelist: wl}, nil
}

// IsWhitelisted returns true if the id bypasses rate limits.
func (r *Rules) IsWhitelisted(id int64) bool {
	_, ok := r.whitelist[id]
	return ok
}

func parseRule(rule config.RateLimitRule) (Rule, error) {
	if rule.Limit == 0 {
		return Rule{}, nil
	}
	if rule.Window == "" {
		return Rule{}, errors.New("window duration is not set")
	}
	window, err := time.ParseDuration(rule.Window)
	if err != nil {
		return Rule{}, err
	}
	return Rule{Limit: rule.Limit, Window: window}, nil
}
