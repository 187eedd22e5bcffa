package command

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/locus/internal/executor"
)

func str(s string) *string { return &s }

func TestNormalize(t *testing.T) {
	assert.Equal(t, "click the submit button", Normalize("  Clik   the SUBMIT buton "))
	assert.Equal(t, `fill "Hello  World" into name`, Normalize(`fil "Hello  World" in to Name`))
	assert.Equal(t, "scroll down", Normalize("scrol\tdown"))
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want []Step
	}{
		{"click the Submit button", []Step{{Action: executor.Descriptor{Type: "click", Target: "Submit", Hints: map[string]string{"text": "Submit"}}}}},
		{"fil emial with Ann@Example.com", []Step{{Action: executor.Descriptor{Type: "fill", Target: "email", Hints: map[string]string{"label": "email"}, Value: str("Ann@Example.com")}}}},
		{`type "hello world" into #search`, []Step{{Action: executor.Descriptor{Type: "fill", Selector: "#search", Value: str("hello world")}}}},
		{"set Country to France", []Step{{Action: executor.Descriptor{Type: "fill", Target: "Country", Hints: map[string]string{"label": "Country"}, Value: str("France")}}}},
		{"scroll down", []Step{{Action: executor.Descriptor{Type: "scroll", Direction: "down", Amount: DefaultScrollAmount}}}},
		{"scroll up 200px", []Step{{Action: executor.Descriptor{Type: "scroll", Direction: "up", Amount: 200}}}},
		{"scroll to the footer", []Step{{Action: executor.Descriptor{Type: "scroll", Target: "footer", Hints: map[string]string{"label": "footer"}}}}},
		{"wait 2 s", []Step{{Action: executor.Descriptor{Type: "wait", Ms: 2000}}}},
		{"wiat 150ms", []Step{{Action: executor.Descriptor{Type: "wait", Ms: 150}}}},
		{"extract the text of #msg", []Step{{Action: executor.Descriptor{Type: "extract", Selector: "#msg", Mode: "text"}}}},
		{"copy email into confirm email", []Step{{
			Action: executor.Descriptor{Type: "fill", Target: "confirm email", Hints: map[string]string{"label": "confirm email"}},
			From:   &executor.Descriptor{Type: "extract", Target: "email", Hints: map[string]string{"label": "email"}, Mode: "value"},
		}}},
		{"click send; wait 1 s", []Step{
			{Action: executor.Descriptor{Type: "click", Target: "send", Hints: map[string]string{"text": "send"}}},
			{Action: executor.Descriptor{Type: "wait", Ms: 1000}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			cmd, err := Parse(tt.in)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, cmd.Steps); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
			assert.Empty(t, cmd.Paraphrase)
		})
	}
}

func TestParse_Paraphrases(t *testing.T) {
	cmd, err := Parse("fill shipping address copy from billing address")
	require.NoError(t, err)
	assert.Equal(t, "copy billing address into shipping address", cmd.Paraphrase)
	require.Len(t, cmd.Steps, 1)
	assert.Equal(t, "shipping address", cmd.Steps[0].Action.Target)
	require.NotNil(t, cmd.Steps[0].From)
	assert.Equal(t, "billing address", cmd.Steps[0].From.Target)

	cmd, err = Parse("Please press Login")
	require.NoError(t, err)
	assert.Equal(t, "click Login", cmd.Paraphrase)
	assert.Equal(t, "Login", cmd.Steps[0].Action.Target)

	cmd, err = Parse("enter 94110 in zip code")
	require.NoError(t, err)
	assert.Equal(t, "94110", *cmd.Steps[0].Action.Value)
	assert.Equal(t, "zip code", cmd.Steps[0].Action.Target)
}

func TestParse_ValuesAreNotCorrected(t *testing.T) {
	tests := []struct {
		in, target, value string
	}{
		{"fill nickname with Fil", "nickname", "Fil"},
		{"fill username with pwd", "username", "pwd"},
		{"set title to Typ", "title", "Typ"},
		{"type emial into adress", "address", "emial"},
		{"fil emial wtih Whit", "email", "Whit"},
		{"fill greeting with whit", "greeting", "whit"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			cmd, err := Parse(tt.in)
			require.NoError(t, err)
			require.Len(t, cmd.Steps, 1)
			d := cmd.Steps[0].Action
			assert.Equal(t, "fill", d.Type)
			assert.Equal(t, tt.target, d.Target)
			require.NotNil(t, d.Value)
			assert.Equal(t, tt.value, *d.Value)
		})
	}
}

func TestParse_Unparsable(t *testing.T) {
	for _, in := range []string{"", "   ", "dance wildly", "click", "wait forever"} {
		_, err := Parse(in)
		assert.ErrorIs(t, err, ErrUnparsable, in)
	}
}

type fakeRunner struct {
	got  []executor.Action
	read string
	fail map[executor.Kind]bool
}

func (f *fakeRunner) Execute(_ context.Context, a executor.Action) executor.Result {
	f.got = append(f.got, a)
	if f.fail[a.Kind()] {
		return executor.Failure(a.Kind(), errors.New("boom"))
	}
	res := executor.Result{Success: true, Action: a.Kind()}
	if a.Kind() == executor.KindExtract {
		res.Data, _ = json.Marshal(f.read)
	}
	return res
}

func TestRun_Copy(t *testing.T) {
	cmd, err := Parse("copy billing zip into shipping zip")
	require.NoError(t, err)

	r := &fakeRunner{read: "94110"}
	batch := cmd.Run(context.Background(), r)
	require.True(t, batch.Success)
	require.Len(t, r.got, 2)
	ex, ok := r.got[0].(executor.Extract)
	require.True(t, ok)
	assert.Equal(t, executor.ExtractValue, ex.Mode)
	fill, ok := r.got[1].(executor.Fill)
	require.True(t, ok)
	assert.Equal(t, "94110", fill.Value)
	assert.Equal(t, "shipping zip", fill.Target)

	r = &fakeRunner{}
	batch = cmd.Run(context.Background(), r)
	assert.False(t, batch.Success)
	assert.ErrorIs(t, batch.Results[0].Err(), ErrNothingToCopy)
}

func TestRun_StopsAtFailure(t *testing.T) {
	cmd, err := Parse("click next then wait 10ms then click done")
	require.NoError(t, err)
	require.Len(t, cmd.Steps, 3)

	r := &fakeRunner{fail: map[executor.Kind]bool{executor.KindWait: true}}
	batch := cmd.Run(context.Background(), r)
	assert.False(t, batch.Success)
	assert.Equal(t, 2, batch.ExecutedSteps)
	assert.Equal(t, 3, batch.TotalSteps)
	assert.Len(t, r.got, 2)
}

func FuzzParse(f *testing.F) {
	f.Add([]byte("click the submit button"))
	f.Add([]byte("fill email with a@b.co; wait 1 s"))
	f.Add([]byte("fill x copy from y"))
	f.Fuzz(func(t *testing.T, data []byte) {
		c := fuzz.NewConsumer(data)
		in, err := c.GetString()
		if err != nil {
			return
		}
		cmd, err := Parse(in)
		if err != nil {
			assert.ErrorIs(t, err, ErrUnparsable)
			return
		}
		// Every parsed step must decode into an executable action.
		for _, s := range cmd.Steps {
			_, err := executor.Decode(s.Action)
			assert.NoError(t, err)
		}
	})
}
