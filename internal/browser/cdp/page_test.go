package cdp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/locus/internal/browser"
)

func TestExecOptions_ArgParsing(t *testing.T) {
	base := len(ExecOptions(Config{}))
	opts := ExecOptions(Config{Headless: true, Args: []string{"--disable-dev-shm-usage", "--window-size=1280,800"}})
	assert.Len(t, opts, base+3)
}

func TestAction_EmbedsTargetAsJSON(t *testing.T) {
	script, err := action(browser.Target{Scope: []string{"#host"}, Selector: `input[name="q"]`}, readValueBody)
	require.NoError(t, err)
	assert.Contains(t, script, `L.resolve({"scope":["#host"],"selector":"input[name=\"q\"]"})`)
	assert.Contains(t, script, readValueBody)
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `"it's \"quoted\""`, quote(`it's "quoted"`))
	assert.Equal(t, `true`, quote(true))
}

func TestCombineContext(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	defer cancelParent()
	req, cancelReq := context.WithCancel(context.Background())

	combined, cancel := combineContext(parent, req)
	defer cancel()

	cancelReq()
	select {
	case <-combined.Done():
	case <-time.After(time.Second):
		t.Fatal("combined context was not cancelled with the request context")
	}
}
