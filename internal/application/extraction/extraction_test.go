package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func commands(cs []Candidate) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Command)
	}
	return out
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    []string
	}{
		{
			name:    "single bash block",
			message: "Check pods:\n```bash\nkubectl get pods -n default\n```\n",
			want:    []string{"kubectl get pods -n default"},
		},
		{
			name:    "untagged block",
			message: "```\nkubectl get nodes\n```",
			want:    []string{"kubectl get nodes"},
		},
		{
			name:    "appearance order",
			message: "first\n```sh\nkubectl get ns\n```\nthen\n```shell\nhelm list -A\n```",
			want:    []string{"kubectl get ns", "helm list -A"},
		},
		{
			name:    "empty block dropped",
			message: "```bash\n   \n```\n```bash\nkubectl version\n```",
			want:    []string{"kubectl version"},
		},
		{
			name:    "comment first line dropped",
			message: "```bash\n# just an example\nkubectl delete pod x\n```",
			want:    nil,
		},
		{
			name:    "leading blank lines before comment still dropped",
			message: "```bash\n\n  # note\nkubectl get pods\n```",
			want:    nil,
		},
		{
			name:    "non shell language ignored",
			message: "```yaml\napiVersion: v1\n```\n```go\nfmt.Println()\n```",
			want:    nil,
		},
		{
			name:    "unterminated fence is not a match",
			message: "```bash\nkubectl get pods\n",
			want:    nil,
		},
		{
			name:    "complete block before unterminated one",
			message: "```bash\nkubectl get pods\n```\n```bash\nkubectl get svc\n",
			want:    []string{"kubectl get pods"},
		},
		{
			name:    "tilde fences",
			message: "~~~sh\nkubectl top nodes\n~~~",
			want:    []string{"kubectl top nodes"},
		},
		{
			name:    "shorter closing fence does not close",
			message: "````bash\nkubectl get pods\n```\n````",
			want:    []string{"kubectl get pods\n```"},
		},
		{
			name:    "multi line block kept whole",
			message: "```bash\nkubectl get pods\nkubectl get svc\n```",
			want:    []string{"kubectl get pods\nkubectl get svc"},
		},
		{
			name:    "console prompt stripped and output dropped",
			message: "```console\n$ kubectl get ns\nNAME STATUS\ndefault Active\n```",
			want:    []string{"kubectl get ns"},
		},
		{
			name:    "crlf line endings",
			message: "```bash\r\nkubectl get pods\r\n```\r\n",
			want:    []string{"kubectl get pods"},
		},
		{
			name:    "no fences",
			message: "Run kubectl get pods to see them.",
			want:    nil,
		},
	}

	engine := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engine.Extract(tt.message)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, commands(got))
		})
	}
}

func TestExtract_LineNumbers(t *testing.T) {
	got := New().Extract("intro\n\n```bash\nkubectl get pods\n```")
	if assert.Len(t, got, 1) {
		assert.Equal(t, 3, got[0].Line)
		assert.Equal(t, "bash", got[0].Language)
	}
}

func TestWithLanguages(t *testing.T) {
	engine := New(WithLanguages("fish"))
	got := engine.Extract("```fish\nkubectl get pods\n```\n```bash\nkubectl get svc\n```")
	assert.Equal(t, []string{"kubectl get pods"}, commands(got))
}

func TestAll_StopsEarly(t *testing.T) {
	msg := "```bash\na\n```\n```bash\nb\n```"
	var seen []string
	for c := range New().All(msg) {
		seen = append(seen, c.Command)
		break
	}
	assert.Equal(t, []string{"a"}, seen)
}

func TestCommands(t *testing.T) {
	got := New().Commands("```bash\nkubectl get pods\n```\ntext\n```\nhelm list\n```")
	assert.Equal(t, []string{"kubectl get pods", "helm list"}, got)
}
