package model

import (
	"log/slog"
	"regexp"
)

type regexps []*regexp.Regexp

// compileRegexps compiles patterns, skipping (and logging) invalid ones.
func compileRegexps(patterns []string) regexps {
	out := make(regexps, 0, len(patterns))
	for _, p := range patterns {
		rp, err := regexp.Compile(p)
		if err != nil {
			slog.Error("compile regexp failed", "err", err, "pattern", p)
			continue
		}
		out = append(out, rp)
	}
	return out
}

func (r regexps) match(s string) bool {
	for _, rp := range r {
		if rp.MatchString(s) {
			return true
		}
	}
	return false
}

// Matcher applies an entry's title filters.
type Matcher struct {
	matchAll bool
	include  regexps
	exclude  regexps
}

// Matcher compiles the entry's regexp and exclude_regexp lists.
func (c *ConfigEntry) Matcher() *Matcher {
	return &Matcher{
		matchAll: len(c.Regexp) == 0,
		include:  compileRegexps(c.Regexp),
		exclude:  compileRegexps(c.ExcludeRegexp),
	}
}

// Match reports whether title passes the filters. Exclusions win over
// inclusions; an empty inclusion list matches everything.
func (m *Matcher) Match(title string) bool {
	if m.exclude.match(title) {
		return false
	}
	return m.matchAll || m.include.match(title)
}

// Match is a convenience for one-off checks; use Matcher in loops.
func (c *ConfigEntry) Match(title string) bool {
	return c.Matcher().Match(title)
}
