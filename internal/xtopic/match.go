// Package xtopic implements MQTT topic-filter matching:
// level-by-level comparison with the '+' and '#' wildcards, plus the
// '$'-prefixed topic isolation rule (MQTT-4.7.2-1).
package xtopic

import (
	"strings"
	"sync"
)

// HasWildcards reports whether filter contains '+' or '#'.
func HasWildcards(filter string) bool {
	return strings.ContainsAny(filter, "+#")
}

// ValidateFilter checks a subscription filter against MQTT-4.7.1-2/3: '#'
// must be the last character of the filter and must occupy its own level;
// '+' must occupy a whole level. A filter beginning with '+' or '#' is
// always a legal filter on its own: the dollar exclusion only affects
// matching, not subscribing (MQTT-4.7.2-1 talks about what the filter is
// allowed to match, not whether it parses).
func ValidateFilter(filter string) bool {
	if filter == "" {
		return false
	}
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		switch {
		case level == "#":
			if i != len(levels)-1 {
				return false
			}
		case strings.Contains(level, "#"):
			return false
		case level == "+":
			// fine, occupies the whole level
		case strings.Contains(level, "+"):
			return false
		}
	}
	return true
}

// Match reports whether topic matches filter, honoring '+', '#' and the
// '$' isolation rule. filter is assumed to have already passed
// ValidateFilter; Match does not re-validate it.
func Match(filter, topic string) bool {
	if len(topic) > 0 && topic[0] == '$' {
		if len(filter) > 0 && (filter[0] == '+' || filter[0] == '#') {
			return false
		}
	}
	if !strings.ContainsAny(filter, "+#") {
		return filter == topic
	}
	return matchLevels(splitLevels(filter), splitLevels(topic))
}

func splitLevels(s string) []string {
	return strings.Split(s, "/")
}

func matchLevels(filter, topic []string) bool {
	fi := 0
	for fi < len(filter) {
		fl := filter[fi]
		if fl == "#" {
			return true // matches remainder, including nothing
		}
		if fi >= len(topic) {
			return false
		}
		if fl != "+" && fl != topic[fi] {
			return false
		}
		fi++
	}
	return fi == len(topic)
}

// Matcher memoizes wildcard filter compilation so repeated matches
// against the same filter (e.g. retained-message scans, broadcast
// dispatch) don't re-split the filter string every time. Plain filters
// without wildcards always take the equality fast path and never touch
// the cache.
type Matcher struct {
	mu    sync.RWMutex
	cache map[string][]string
}

// NewMatcher returns a ready-to-use Matcher.
func NewMatcher() *Matcher {
	return &Matcher{cache: make(map[string][]string)}
}

// Match is the memoized equivalent of the package-level Match function.
func (m *Matcher) Match(filter, topic string) bool {
	if len(topic) > 0 && topic[0] == '$' {
		if len(filter) > 0 && (filter[0] == '+' || filter[0] == '#') {
			return false
		}
	}
	if !strings.ContainsAny(filter, "+#") {
		return filter == topic
	}
	return matchLevels(m.levels(filter), splitLevels(topic))
}

func (m *Matcher) levels(filter string) []string {
	m.mu.RLock()
	levels, ok := m.cache[filter]
	m.mu.RUnlock()
	if ok {
		return levels
	}
	levels = splitLevels(filter)
	m.mu.Lock()
	m.cache[filter] = levels
	m.mu.Unlock()
	return levels
}
