// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

package classify

import (
	"strings"
	"time"
)

// Plan is the execution plan for one command invocation. Plans are
// derived per call and never stored.
type Plan struct {
	// Command is the rewritten command line handed to the shell.
	Command string

	// Continuous marks commands with unbounded/streaming output. They
	// run under Timeout with output flushed every UpdateInterval;
	// one-shot commands run to completion and deliver their full
	// output once.
	Continuous bool

	// Timeout bounds a continuous run. Zero for one-shot commands
	// (no deadline — they end at process exit).
	Timeout time.Duration

	// UpdateInterval is the output flush cadence for continuous
	// commands. Zero for one-shot commands.
	UpdateInterval time.Duration

	// PTY requests a pseudo-terminal for full-screen commands.
	PTY bool
}

// Classifier applies a validated rule set to raw command text.
type Classifier struct {
	rules Rules
}

// New builds a Classifier from the given rules. The rules are
// validated once here so Classify never fails.
func New(rules Rules) (*Classifier, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{rules: rules}, nil
}

// Classify turns raw command text into an execution plan. It is a pure
// function of the input and the rule tables.
//
// Steps: strip one operator-supplied sudo prefix; lowercase the verb
// (first whitespace-delimited token) and rewrite it through the path
// table; prefix "sudo " when the verb is privileged or the tail
// special case applies; match the result against the continuous
// patterns. Arguments are never case-folded or rewritten.
func (c *Classifier) Classify(rawCommand string) Plan {
	text := strings.TrimSpace(rawCommand)
	if text == "" {
		return Plan{}
	}

	verb, arguments := splitVerb(text)
	if strings.EqualFold(verb, "sudo") {
		if arguments == "" {
			return Plan{Command: "sudo"}
		}
		text = arguments
		verb, arguments = splitVerb(text)
	}

	verb = strings.ToLower(verb)
	if canonical, ok := c.rules.PathRewrites[verb]; ok {
		verb = canonical
	}

	command := verb
	if arguments != "" {
		command = verb + " " + arguments
	}

	if c.requiresElevation(verb, arguments) {
		command = "sudo " + command
	}

	matchText := strings.ToLower(command)
	for _, pattern := range c.rules.ContinuousPatterns {
		if strings.Contains(matchText, pattern.Substring) {
			return Plan{
				Command:        command,
				Continuous:     true,
				Timeout:        pattern.Timeout(),
				UpdateInterval: pattern.Interval(),
				PTY:            pattern.PTY,
			}
		}
	}

	return Plan{Command: command}
}

// requiresElevation reports whether the rewritten verb runs under sudo:
// either it is in the privileged set, or it is the tail utility reading
// from a protected log directory.
func (c *Classifier) requiresElevation(verb, arguments string) bool {
	bare := verb
	if slash := strings.LastIndexByte(bare, '/'); slash >= 0 {
		bare = bare[slash+1:]
	}

	for _, privileged := range c.rules.PrivilegedVerbs {
		if bare == privileged {
			return true
		}
	}

	if bare == "tail" {
		for _, dir := range c.rules.ProtectedLogDirs {
			if strings.Contains(arguments, dir) {
				return true
			}
		}
	}

	return false
}

// splitVerb separates the first whitespace-delimited token from the
// rest of the text. The remainder keeps its internal spacing exactly —
// quoted arguments must reach the shell byte-for-byte.
func splitVerb(text string) (verb, rest string) {
	boundary := strings.IndexFunc(text, isSpace)
	if boundary < 0 {
		return text, ""
	}
	return text[:boundary], strings.TrimLeftFunc(text[boundary:], isSpace)
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
