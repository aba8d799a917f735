package project

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    Identity
		ok      bool
	}{
		{
			name:    "title only",
			message: "[Project] GAnarchy",
			want:    Identity{Title: "GAnarchy"},
			ok:      true,
		},
		{
			name:    "title and description",
			message: "[Project] GAnarchy\n\nA decentralized project hub.",
			want:    Identity{Title: "GAnarchy", Description: "A decentralized project hub."},
			ok:      true,
		},
		{
			name:    "multiline description kept verbatim",
			message: "[Project] thing\n\nline one\nline two\n",
			want:    Identity{Title: "thing", Description: "line one\nline two"},
			ok:      true,
		},
		{
			name:    "description without blank separator",
			message: "[Project] thing\ndescription right away",
			want:    Identity{Title: "thing", Description: "description right away"},
			ok:      true,
		},
		{
			name:    "tag is case insensitive",
			message: "[project] lowercase tag",
			want:    Identity{Title: "lowercase tag"},
			ok:      true,
		},
		{
			name:    "surrounding whitespace trimmed",
			message: "\n  [Project] padded  \n",
			want:    Identity{Title: "padded"},
			ok:      true,
		},
		{
			name:    "missing name",
			message: "[Project]",
			ok:      false,
		},
		{
			name:    "whitespace-only name",
			message: "[Project]   \nstuff",
			ok:      false,
		},
		{
			name:    "no space after tag",
			message: "[Project]thing",
			ok:      false,
		},
		{
			name:    "unrelated commit message",
			message: "fix: handle empty input",
			ok:      false,
		},
		{
			name:    "empty message",
			message: "",
			ok:      false,
		},
		{
			name:    "tag not on first line",
			message: "something\n[Project] thing",
			ok:      false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(tt.message)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

// Resolve must be deterministic for identical input, since results are
// cached by commit hash.
func TestResolve_Deterministic(t *testing.T) {
	const msg = "[Project] GAnarchy\n\nA decentralized project hub."
	first, ok1 := Resolve(msg)
	second, ok2 := Resolve(msg)
	assert.True(t, ok1)
	assert.True(t, ok2)
	assert.Equal(t, first, second)
}
