package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	data := map[string]any{"name": "Acme", "amount": 5000}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain string passes through",
			input: "Follow up tomorrow",
			want:  "Follow up tomorrow",
		},
		{
			name:  "field substitution",
			input: "Follow up with {{.name}}",
			want:  "Follow up with Acme",
		},
		{
			name:  "numeric field",
			input: "Deal worth {{.amount}}",
			want:  "Deal worth 5000",
		},
		{
			name:  "missing key renders blank",
			input: "Owner: {{.owner}}",
			want:  "Owner: ",
		},
		{
			name:  "upper helper",
			input: "{{upper .name}} deal",
			want:  "ACME deal",
		},
		{
			name:  "lower helper",
			input: "{{lower .name}}",
			want:  "acme",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.input, data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderParseError(t *testing.T) {
	_, err := Render("{{.name", map[string]any{})
	assert.Error(t, err)
}

func TestRenderNow(t *testing.T) {
	got, err := Render("sent at {{now}}", nil)
	require.NoError(t, err)
	assert.Regexp(t, `sent at \d{4}-\d{2}-\d{2}T`, got)
}
