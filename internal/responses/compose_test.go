package responses

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strptr(s string) *string { return &s }

func TestComposeContent(t *testing.T) {
	tests := []struct {
		name     string
		option   *string
		free     *string
		expected string
	}{
		{
			name:     "option only",
			option:   strptr("Deploy now"),
			expected: `Selected: "Deploy now"`,
		},
		{
			name:     "free text only",
			free:     strptr("let's wait until Monday"),
			expected: "let's wait until Monday",
		},
		{
			name:     "option and free text",
			option:   strptr("Yes"),
			free:     strptr("sounds good"),
			expected: "Selected: \"Yes\"\n\nsounds good",
		},
		{
			name:     "free text is trimmed",
			free:     strptr("  ok then  \n"),
			expected: "ok then",
		},
		{
			name:     "blank free text drops out",
			option:   strptr("No"),
			free:     strptr("   "),
			expected: `Selected: "No"`,
		},
		{
			name:     "nothing yields empty",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ComposeContent(tt.option, tt.free))
		})
	}
}
