package protocol

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type echo struct {
	Text string `json:"text"`
}

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	r := NewRouter(nil)
	require.NoError(t, r.Handle(TypeQueryState, func(ctx context.Context, payload json.RawMessage) (interface{}, error) {
		var in echo
		if err := DecodePayload(payload, &in); err != nil {
			return nil, err
		}
		return echo{Text: strings.ToUpper(in.Text)}, nil
	}))
	require.NoError(t, r.Handle(TypeEngineScan, func(ctx context.Context, payload json.RawMessage) (interface{}, error) {
		return nil, errors.New("scan exploded")
	}))
	require.NoError(t, r.Handle(TypeListProfiles, func(ctx context.Context, payload json.RawMessage) (interface{}, error) {
		panic("boom")
	}))
	return r
}

func TestRouter_Dispatch(t *testing.T) {
	r := newTestRouter(t)
	ctx := context.Background()

	req, err := NewRequest(TypeQueryState, echo{Text: "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, req.ID)
	resp := r.Dispatch(ctx, req)
	assert.True(t, resp.OK)
	assert.Equal(t, req.ID, resp.ID)
	assert.JSONEq(t, `{"text":"HI"}`, string(resp.Payload))

	resp = r.Dispatch(ctx, Request{ID: "1", Type: TypeEngineScan})
	assert.False(t, resp.OK)
	assert.Equal(t, "scan exploded", resp.Error)

	resp = r.Dispatch(ctx, Request{ID: "2", Type: TypeListProfiles})
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "panicked")

	resp = r.Dispatch(ctx, Request{ID: "3", Type: "NOPE"})
	assert.False(t, resp.OK)
	assert.Equal(t, "3", resp.ID)
	assert.Contains(t, resp.Error, ErrUnknownType.Error())

	resp = r.Dispatch(ctx, Request{ID: "4", Type: TypeQueryState, Payload: json.RawMessage(`[1,2]`)})
	assert.False(t, resp.OK)

	err = r.Handle(TypeQueryState, func(context.Context, json.RawMessage) (interface{}, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrDuplicateHandler)
	assert.Equal(t, []Type{TypeEngineScan, TypeListProfiles, TypeQueryState}, r.Types())
}

func TestDecode(t *testing.T) {
	_, err := Decode([]byte(`{"id":"1"}`))
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = Decode([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformed)
	req, err := Decode([]byte(`{"id":"1","type":"ENGINE_SCAN","payload":{}}`))
	require.NoError(t, err)
	assert.Equal(t, TypeEngineScan, req.Type)
}

func readResponse(t *testing.T, sc *bufio.Scanner) Response {
	t.Helper()
	require.True(t, sc.Scan(), "expected a response line")
	var resp Response
	require.NoError(t, json.Unmarshal(sc.Bytes(), &resp))
	return resp
}

func TestServe_StreamIsConcurrent(t *testing.T) {
	release := make(chan struct{})
	r := NewRouter(nil)
	require.NoError(t, r.Handle(TypeExecuteAction, func(ctx context.Context, _ json.RawMessage) (interface{}, error) {
		select {
		case <-release:
			return "slow", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}))
	require.NoError(t, r.Handle(TypeExecuteBatch, func(context.Context, json.RawMessage) (interface{}, error) {
		close(release)
		return "fast", nil
	}))

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	done := make(chan error, 1)
	go func() { done <- Serve(context.Background(), NewStream(inR, outW), r, ServeOptions{}) }()

	_, err := io.WriteString(inW, `{"id":"a","type":"EXECUTE_ACTION"}`+"\n")
	require.NoError(t, err)
	_, err = io.WriteString(inW, "\n{broken\n")
	require.NoError(t, err)
	_, err = io.WriteString(inW, `{"id":"b","type":"EXECUTE_BATCH"}`+"\n")
	require.NoError(t, err)

	sc := bufio.NewScanner(outR)
	got := map[string]Response{}
	for i := 0; i < 3; i++ {
		resp := readResponse(t, sc)
		got[resp.ID] = resp
	}
	assert.JSONEq(t, `"slow"`, string(got["a"].Payload))
	assert.JSONEq(t, `"fast"`, string(got["b"].Payload))
	assert.False(t, got[""].OK, "malformed input is answered")

	require.NoError(t, inW.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after EOF")
	}
	require.NoError(t, outW.Close())
}

func TestServe_StopsOnCancel(t *testing.T) {
	inR, inW := io.Pipe()
	defer inW.Close()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, NewStream(inR, io.Discard), NewRouter(nil), ServeOptions{}) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}

func TestServe_WebSocket(t *testing.T) {
	srv := httptest.NewServer(WebSocketHandler(newTestRouter(t), ServeOptions{}, nil))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)

	req, err := NewRequest(TypeQueryState, echo{Text: "socket"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))
	require.NoError(t, conn.WriteJSON(Request{ID: "x", Type: "UNKNOWN"}))

	got := map[string]Response{}
	for i := 0; i < 2; i++ {
		var resp Response
		require.NoError(t, conn.ReadJSON(&resp))
		got[resp.ID] = resp
	}
	assert.True(t, got[req.ID].OK)
	assert.JSONEq(t, `{"text":"SOCKET"}`, string(got[req.ID].Payload))
	assert.False(t, got["x"].OK)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.NoError(t, conn.Close())
}
