package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n[1,2]\n```", `[1,2]`},
		{"surrounding whitespace", "\n  {\"a\":1}  \n", `{"a":1}`},
		{"unterminated fence", "```json\n{\"a\":1}", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFences(tt.in))
		})
	}
}

func TestNewClient(t *testing.T) {
	c := NewClient("key", "claude-sonnet-4-20250514")
	assert.Equal(t, "claude-sonnet-4-20250514", c.Model())
	assert.Equal(t, int64(DefaultMaxTokens), c.maxTokens)
}
