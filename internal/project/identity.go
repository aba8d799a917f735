// Package project resolves project identity from commit messages.
//
// A project is declared by a commit whose message starts with "[Project]"
// followed by the project's name. The hash of that commit is the project's
// permanent identity; resolution only derives the display metadata.
package project

import (
	"strings"
)

// tag is matched case-insensitively, as in "[project] thing".
const tag = "[project]"

// Identity is the display metadata extracted from a project commit message.
type Identity struct {
	Title       string
	Description string
}

// Resolve parses a project commit message.
//
// The message is valid iff its first line, after trimming, is "[Project]"
// followed by whitespace and at least one non-whitespace character (the
// title). The remaining lines, after one optional blank separator line, form
// the description and are kept verbatim.
//
// Resolve is pure: the same message always yields the same result, so
// callers may cache results keyed by commit hash indefinitely.
func Resolve(message string) (Identity, bool) {
	trimmed := strings.TrimSpace(message)
	first, rest, hasRest := strings.Cut(trimmed, "\n")
	first = strings.TrimSpace(first)

	if len(first) < len(tag) || !strings.EqualFold(first[:len(tag)], tag) {
		return Identity{}, false
	}
	after := first[len(tag):]
	if after == "" || !isSpace(after[0]) {
		// "[Project]name" and a bare "[Project]" are both malformed.
		return Identity{}, false
	}
	title := strings.TrimSpace(after)
	if title == "" {
		return Identity{}, false
	}

	id := Identity{Title: title}
	if hasRest {
		id.Description = strings.TrimPrefix(rest, "\n")
	}
	return id, true
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t'
}
