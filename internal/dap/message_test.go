package dap

import (
	"testing"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageAccessors(t *testing.T) {
	t.Parallel()

	req, err := NewRequest(4, "evaluate", map[string]interface{}{"expression": "x"})
	require.NoError(t, err)
	assert.True(t, req.Valid())
	assert.Equal(t, KindRequest, req.Kind())
	assert.Equal(t, 4, req.Seq())
	assert.True(t, req.IsRequest("evaluate"))
	assert.JSONEq(t, `{"expression":"x"}`, string(req.Arguments()))

	failed, err := NewResponse(req, 9, false, "not available", nil)
	require.NoError(t, err)
	assert.Equal(t, KindResponse, failed.Kind())
	assert.Equal(t, 4, failed.RequestSeq())
	assert.Equal(t, "evaluate", failed.Command())
	assert.False(t, failed.Success())
	assert.Equal(t, "not available", failed.ErrorMessage())
	assert.Nil(t, failed.Body())

	ok, err := NewResponse(req, 10, true, "ignored", map[string]string{"result": "1"})
	require.NoError(t, err)
	assert.True(t, ok.Success())
	assert.Empty(t, ok.ErrorMessage())
	assert.Equal(t, "1", ok.Get("body.result").String())

	ev, err := NewEvent(11, "output", map[string]string{"output": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "output", ev.Event())

	assert.False(t, Message(`{"type":"bogus"}`).Valid())
	assert.False(t, Message(`not json`).Valid())
}

func TestWithSeqCopies(t *testing.T) {
	t.Parallel()

	ev, err := NewEvent(1, "stopped", nil)
	require.NoError(t, err)
	orig := append(Message(nil), ev...)

	renumbered, err := ev.WithSeq(42)
	require.NoError(t, err)
	assert.Equal(t, 42, renumbered.Seq())
	assert.Equal(t, orig, ev)
}

func TestDecodeAndFromDAP(t *testing.T) {
	t.Parallel()

	typed := &dap.ThreadsRequest{Request: dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Seq: 3, Type: KindRequest},
		Command:         "threads",
	}}
	msg, err := FromDAP(typed)
	require.NoError(t, err)
	assert.True(t, msg.IsRequest("threads"))

	decoded, err := msg.Decode()
	require.NoError(t, err)
	got, ok := decoded.(*dap.ThreadsRequest)
	require.True(t, ok)
	assert.Equal(t, 3, got.Seq)
}
