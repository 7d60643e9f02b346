package xtopic

import "testing"

func TestValidateFilter(t *testing.T) {
	cases := map[string]bool{
		"+":             true,
		"+/tennis/#":    true,
		"sport+":        false,
		"sport/+/player1": true,
		"a/#/b":         false,
		"#":             true,
		"a/b/c":         true,
		"":              false,
	}
	for filter, want := range cases {
		if got := ValidateFilter(filter); got != want {
			t.Errorf("ValidateFilter(%q) = %v, want %v", filter, got, want)
		}
	}
}

func TestMatchWildcards(t *testing.T) {
	cases := []struct {
		filter, topic string
		want          bool
	}{
		{"sport/tennis/player1/#", "sport/tennis/player1", true},
		{"sport/tennis/player1/#", "sport/tennis/player1/ranking", true},
		{"sport/tennis/player1/#", "sport/tennis/player1/score/wimbledon", true},
		{"sport/+", "sport", false},
		{"sport/+", "sport/", true},
		{"+/+", "/finance", true},
		{"/+", "/finance", true},
		{"+", "/finance", false},
		{"a/b", "a/b", true},
		{"a/b", "a/c", false},
	}
	for _, c := range cases {
		if got := Match(c.filter, c.topic); got != c.want {
			t.Errorf("Match(%q,%q) = %v, want %v", c.filter, c.topic, got, c.want)
		}
	}
}

func TestDollarTopicIsolation(t *testing.T) {
	if Match("#", "$SYS/broker/uptime") {
		t.Error("'#' must not match a $ topic (MQTT-4.7.2-1)")
	}
	if Match("+/monitor", "$SYS/monitor") {
		t.Error("'+' leading level must not match a $ topic")
	}
	if !Match("$SYS/#", "$SYS/broker/uptime") {
		t.Error("an explicit $SYS/# filter must still match")
	}
}

func TestEmptyLevels(t *testing.T) {
	if !Match("a/+/b", "a//b") {
		t.Error("zero-length levels must be matchable by +")
	}
}

func TestMemoizedMatcher(t *testing.T) {
	m := NewMatcher()
	if !m.Match("a/+/#", "a/b/c/d") {
		t.Error("expected match")
	}
	if !m.Match("a/+/#", "a/x/y") {
		t.Error("expected match on second call reusing cached levels")
	}
}
