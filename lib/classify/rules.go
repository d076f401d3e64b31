// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

package classify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
)

// Rules holds the three classification tables. The zero value is an
// empty rule set (nothing rewritten, nothing elevated, everything
// one-shot); DefaultRules returns the shipped tables.
type Rules struct {
	// PathRewrites maps a lowercased command verb to the canonical
	// executable path used in its place. Verbs not present pass
	// through lowercased.
	PathRewrites map[string]string `json:"path_rewrites"`

	// PrivilegedVerbs lists lowercased verbs whose commands are
	// prefixed with "sudo ". The operator's own leading sudo is
	// stripped first, so elevation is never doubled.
	PrivilegedVerbs []string `json:"privileged_verbs"`

	// ProtectedLogDirs lists directory prefixes that force elevation
	// for the tail verb, privileged or not. System logs are typically
	// root-readable only.
	ProtectedLogDirs []string `json:"protected_log_dirs"`

	// ContinuousPatterns is matched in order against the rewritten,
	// lowercased command text; the first substring hit wins and makes
	// the command continuous.
	ContinuousPatterns []ContinuousPattern `json:"continuous_patterns"`
}

// ContinuousPattern marks commands whose output is unbounded or
// streaming: monitors, log followers, network probes. Matched commands
// run under a timeout with periodic output flushes instead of
// run-to-completion.
type ContinuousPattern struct {
	// Substring is matched against the rewritten, lowercased command.
	Substring string `json:"substring"`

	// TimeoutSeconds bounds the run; the process group is terminated
	// when it elapses. Must be positive — continuous commands are
	// never unbounded.
	TimeoutSeconds int `json:"timeout_seconds"`

	// IntervalSeconds is the output flush cadence.
	IntervalSeconds int `json:"interval_seconds"`

	// PTY allocates a pseudo-terminal for the command. Full-screen
	// monitors (top, htop, watch) refuse to start without one.
	PTY bool `json:"pty,omitempty"`
}

// Timeout returns the pattern's run bound as a duration.
func (p ContinuousPattern) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// Interval returns the pattern's flush cadence as a duration.
func (p ContinuousPattern) Interval() time.Duration {
	return time.Duration(p.IntervalSeconds) * time.Second
}

// DefaultRules returns the shipped classification tables.
func DefaultRules() Rules {
	return Rules{
		PathRewrites: map[string]string{
			"ping":       "/usr/bin/ping",
			"tail":       "/usr/bin/tail",
			"top":        "/usr/bin/top",
			"htop":       "/usr/bin/htop",
			"watch":      "/usr/bin/watch",
			"dmesg":      "/usr/bin/dmesg",
			"journalctl": "/usr/bin/journalctl",
			"systemctl":  "/usr/bin/systemctl",
			"df":         "/usr/bin/df",
			"free":       "/usr/bin/free",
			"uptime":     "/usr/bin/uptime",
		},
		PrivilegedVerbs: []string{
			"systemctl",
			"journalctl",
			"dmesg",
			"apt",
			"apt-get",
			"ufw",
			"reboot",
			"shutdown",
		},
		ProtectedLogDirs: []string{
			"/var/log",
		},
		ContinuousPatterns: []ContinuousPattern{
			{Substring: "ping", TimeoutSeconds: 60, IntervalSeconds: 5},
			{Substring: "tail -f", TimeoutSeconds: 600, IntervalSeconds: 5},
			{Substring: "tail --follow", TimeoutSeconds: 600, IntervalSeconds: 5},
			{Substring: "journalctl -f", TimeoutSeconds: 600, IntervalSeconds: 5},
			{Substring: "dmesg -w", TimeoutSeconds: 600, IntervalSeconds: 5},
			{Substring: "dmesg --follow", TimeoutSeconds: 600, IntervalSeconds: 5},
			{Substring: "htop", TimeoutSeconds: 30, IntervalSeconds: 10, PTY: true},
			{Substring: "top", TimeoutSeconds: 30, IntervalSeconds: 10, PTY: true},
			{Substring: "watch ", TimeoutSeconds: 120, IntervalSeconds: 5, PTY: true},
		},
	}
}

// LoadRules reads classification tables from a JSONC file (JSON with
// comments and trailing commas) and validates them. The file replaces
// the defaults wholesale — operators who want the shipped tables plus
// one entry copy the shipped file and edit it.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("reading rules: %w", err)
	}

	stripped := jsonc.ToJSON(data)

	decoder := json.NewDecoder(bytes.NewReader(stripped))
	decoder.DisallowUnknownFields()

	var rules Rules
	if err := decoder.Decode(&rules); err != nil {
		return Rules{}, fmt.Errorf("parsing rules %s: %w", path, err)
	}

	if err := rules.Validate(); err != nil {
		return Rules{}, fmt.Errorf("invalid rules %s: %w", path, err)
	}
	return rules, nil
}

// Validate checks the tables for entries that would misclassify or
// never match. All problems are reported together.
func (r Rules) Validate() error {
	var errs []error

	for verb, path := range r.PathRewrites {
		if verb == "" {
			errs = append(errs, errors.New("path_rewrites: empty verb"))
		}
		if verb != strings.ToLower(verb) {
			errs = append(errs, fmt.Errorf("path_rewrites: verb %q must be lowercase", verb))
		}
		if path == "" {
			errs = append(errs, fmt.Errorf("path_rewrites: verb %q maps to an empty path", verb))
		}
	}

	for _, verb := range r.PrivilegedVerbs {
		if verb == "" {
			errs = append(errs, errors.New("privileged_verbs: empty verb"))
		}
		if verb != strings.ToLower(verb) {
			errs = append(errs, fmt.Errorf("privileged_verbs: verb %q must be lowercase", verb))
		}
	}

	for _, dir := range r.ProtectedLogDirs {
		if dir == "" {
			errs = append(errs, errors.New("protected_log_dirs: empty entry"))
		}
	}

	for index, pattern := range r.ContinuousPatterns {
		if pattern.Substring == "" {
			errs = append(errs, fmt.Errorf("continuous_patterns[%d]: empty substring", index))
		}
		if pattern.Substring != strings.ToLower(pattern.Substring) {
			errs = append(errs, fmt.Errorf("continuous_patterns[%d]: substring %q must be lowercase", index, pattern.Substring))
		}
		if pattern.TimeoutSeconds <= 0 {
			errs = append(errs, fmt.Errorf("continuous_patterns[%d] (%q): timeout_seconds must be positive", index, pattern.Substring))
		}
		if pattern.IntervalSeconds <= 0 {
			errs = append(errs, fmt.Errorf("continuous_patterns[%d] (%q): interval_seconds must be positive", index, pattern.Substring))
		}
	}

	return errors.Join(errs...)
}
