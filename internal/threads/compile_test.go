package threads

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
		want string
	}{
		{
			name: "base passes task through",
			spec: Spec{Type: TypeBase, Task: "fix the login bug"},
			want: "fix the login bug",
		},
		{
			name: "long passes task through",
			spec: Spec{Type: TypeLong, Task: "migrate the schema"},
			want: "migrate the schema",
		},
		{
			name: "zero passes task through",
			spec: Spec{Type: TypeZero, Task: "run nightly maintenance"},
			want: "run nightly maintenance",
		},
		{
			name: "delegate quotes the task",
			spec: Spec{Type: TypeDelegate, Agent: "reviewer", Task: "check the diff"},
			want: `/run reviewer "check the diff"`,
		},
		{
			name: "delegate single word stays bare",
			spec: Spec{Type: TypeDelegate, Agent: "reviewer", Task: "lint"},
			want: "/run reviewer lint",
		},
		{
			name: "chain joins steps with arrow",
			spec: Spec{Type: TypeChain, Steps: []Step{
				{Agent: "planner", Task: "plan it", Output: "plan.md"},
				{Agent: "builder", Task: "build it", Reads: []string{"plan.md"}},
			}},
			want: `/chain planner[output=plan.md] "plan it" -> builder[reads=plan.md] "build it"`,
		},
		{
			name: "chain with skip clarify",
			spec: Spec{Type: TypeChain, SkipClarify: true, Steps: []Step{
				{Agent: "a", Task: "t1"},
				{Agent: "b", Task: "t2"},
			}},
			want: "/chain a t1 -> b t2 --no-clarify",
		},
		{
			name: "async chain implies no clarify",
			spec: Spec{Type: TypeChain, Async: true, Steps: []Step{
				{Agent: "a", Task: "t1"},
			}},
			want: "/chain a t1 --no-clarify",
		},
		{
			name: "chain renders model and multiple reads",
			spec: Spec{Type: TypeChain, Steps: []Step{
				{Agent: "a", Task: "t", Output: "f1"},
				{Agent: "b", Task: "u", Output: "f2"},
				{Agent: "c", Task: "v", Reads: []string{"f1", "f2"}, Model: "opus"},
			}},
			want: "/chain a[output=f1] t -> b[output=f2] u -> c[reads=f1+f2][model=opus] v",
		},
		{
			name: "parallel joins steps",
			spec: Spec{Type: TypeParallel, Steps: []Step{
				{Agent: "r1", Task: "research A"},
				{Agent: "r2", Task: "research B"},
			}},
			want: `/parallel r1 "research A" -> r2 "research B"`,
		},
		{
			name: "fusion replicates the task per agent",
			spec: Spec{Type: TypeFusion, Agents: []string{"x", "y"}, Task: "audit auth"},
			want: `/parallel x "audit auth" -> y "audit auth"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compile(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
	}{
		{"unknown type", Spec{Type: "x", Task: "t"}},
		{"base without task", Spec{Type: TypeBase, Task: "   "}},
		{"delegate without agent", Spec{Type: TypeDelegate, Task: "t"}},
		{"delegate without task", Spec{Type: TypeDelegate, Agent: "a"}},
		{"chain without steps", Spec{Type: TypeChain}},
		{"chain step without agent", Spec{Type: TypeChain, Steps: []Step{{Task: "t"}}}},
		{"chain step without task", Spec{Type: TypeChain, Steps: []Step{{Agent: "a"}}}},
		{"parallel without steps", Spec{Type: TypeParallel}},
		{"fusion without agents", Spec{Type: TypeFusion, Task: "t"}},
		{"fusion without task", Spec{Type: TypeFusion, Agents: []string{"a"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.spec)
			assert.Error(t, err)
		})
	}
}

func TestQuoteArg(t *testing.T) {
	assert.Equal(t, "word", quoteArg("word"))
	assert.Equal(t, `"two words"`, quoteArg("two words"))
	assert.Equal(t, `"a->b"`, quoteArg("a->b"))
	assert.Equal(t, `"say \"hi\" now"`, quoteArg(`say "hi" now`))
	// Already-quoted strings pass through untouched.
	assert.Equal(t, `"pre quoted"`, quoteArg(`"pre quoted"`))
}

func TestQuoteArgProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("quoted output never contains a bare step separator", prop.ForAll(
		func(s string) bool {
			q := quoteArg(s)
			if !strings.Contains(s, " ") && !strings.Contains(s, "->") {
				return q == s
			}
			return strings.HasPrefix(q, `"`) && strings.HasSuffix(q, `"`)
		},
		gen.AlphaString(),
	))

	properties.Property("tasks with spaces always round-trip inside quotes", prop.ForAll(
		func(a, b string) bool {
			s := a + " " + b
			q := quoteArg(s)
			return strings.HasPrefix(q, `"`) && strings.HasSuffix(q, `"`)
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestPresets(t *testing.T) {
	names := PresetNames()
	assert.Equal(t, []string{
		"code-review",
		"debug-fusion",
		"parallel-research",
		"parallel-review",
		"plan-and-build",
	}, names)

	spec, err := Preset("code-review", "internal/auth")
	require.NoError(t, err)
	assert.Equal(t, TypeChain, spec.Type)
	require.Len(t, spec.Steps, 2)
	assert.Contains(t, spec.Steps[0].Task, "internal/auth")
	assert.Equal(t, "review.md", spec.Steps[0].Output)
	assert.Equal(t, []string{"review.md"}, spec.Steps[1].Reads)

	// Preset output must compile.
	cmd, err := Compile(spec)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(cmd, "/chain "))

	fusion, err := Preset("debug-fusion", "the flaky websocket test")
	require.NoError(t, err)
	assert.Equal(t, TypeFusion, fusion.Type)
	assert.Len(t, fusion.Agents, 3)
	assert.Contains(t, fusion.Task, "the flaky websocket test")

	_, err = Preset("nope", "x")
	assert.Error(t, err)
}
