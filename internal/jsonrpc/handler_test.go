package jsonrpc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/judgehost/judgehost/internal/dispatch"
	"github.com/judgehost/judgehost/internal/toolregistry"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	registry := toolregistry.New(nil)
	err := registry.RegisterFactory(toolregistry.Factory{
		Name: "echo",
		Create: func(map[string]any) (any, error) {
			return &toolregistry.Descriptor{
				Name:        "echo",
				Description: "echoes input",
				Handler: func(_ context.Context, args map[string]any) (any, error) {
					return args, nil
				},
			}, nil
		},
	})
	require.NoError(t, err)
	registry.CreateAll(context.Background(), map[string]any{})

	dispatcher := dispatch.New(registry, nil, nil, nil, nil, nil)
	return &Handler{
		Dispatcher:    dispatcher,
		Registry:      registry,
		ServerName:    "judgehost",
		ServerVersion: "test",
	}
}

func TestHandleMessageNotificationProducesNoResponse(t *testing.T) {
	h := newTestHandler(t)
	resp := h.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"initialized"}`))
	assert.Nil(t, resp)
}

func TestHandleMessageRequestEchoesID(t *testing.T) {
	h := newTestHandler(t)
	resp := h.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":7,"method":"ping"}`))
	require.NotNil(t, resp)
	assert.JSONEq(t, "7", string(resp.ID))
	assert.Nil(t, resp.Error)
	assert.NotNil(t, resp.Result)
}

func TestHandleMessageUnknownMethodReturnsMethodNotFound(t *testing.T) {
	h := newTestHandler(t)
	resp := h.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"nope"}`))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
}

func TestHandleMessageParseErrorHasNoID(t *testing.T) {
	h := newTestHandler(t)
	resp := h.HandleMessage(context.Background(), []byte(`{not json`))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeParseError, resp.Error.Code)
	assert.Empty(t, resp.ID)
}

func TestInitializeReturnsProtocolVersion(t *testing.T) {
	h := newTestHandler(t)
	resp := h.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
	require.NotNil(t, resp)
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result map[string]any
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, ProtocolVersion, result["protocolVersion"])
}

func TestToolsCallInvokesHandlerAndWrapsContent(t *testing.T) {
	h := newTestHandler(t)
	resp := h.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":{"k":"v"}}}`))
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)

	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result dispatch.Result
	require.NoError(t, json.Unmarshal(raw, &result))
	require.Len(t, result.Content, 1)
	assert.Contains(t, result.Content[0].Text, "v")
}

func TestToolsCallUnknownToolReturnsApplicationError(t *testing.T) {
	h := newTestHandler(t)
	resp := h.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"missing"}}`))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeApplicationError, resp.Error.Code)
}
