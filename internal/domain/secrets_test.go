// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "non-empty string returns redacted", input: "secret-password", want: RedactedStr},
		{name: "empty string returns empty", input: "", want: ""},
		{name: "single character", input: "a", want: RedactedStr},
		{name: "already redacted string", input: RedactedStr, want: RedactedStr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, RedactString(tt.input))
		})
	}
}

func TestIsRedactedValue(t *testing.T) {
	t.Parallel()

	assert.True(t, IsRedactedValue(RedactedStr))
	assert.True(t, IsRedactedValue("********"))
	assert.True(t, IsRedactedValue("*"))
	assert.False(t, IsRedactedValue(""))
	assert.False(t, IsRedactedValue("pa**word"))
	assert.False(t, IsRedactedValue("hunter2"))
}
