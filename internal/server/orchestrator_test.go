package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/judgehost/judgehost/internal/config"
	"github.com/judgehost/judgehost/internal/jsonrpc"
	"github.com/judgehost/judgehost/internal/server"
	"github.com/judgehost/judgehost/internal/service"
)

func TestStartInStreamModeProcessesRequestsAndExitsOnEOF(t *testing.T) {
	cfg := config.Config{Transport: config.TransportStream}
	exitCode := -1
	orch := server.New(cfg, nil, server.WithExitFunc(func(code int) { exitCode = code }))

	in := strings.NewReader("{\"jsonrpc\":\"2.0\",\"id\":1,\"method\":\"initialize\"}\n")
	var out bytes.Buffer

	require.NoError(t, orch.Start(context.Background(), in, &out, service.Provided{}))

	var resp jsonrpc.Response
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp))
	assert.Nil(t, resp.Error)
	assert.Equal(t, 0, exitCode)
}

func TestStreamModeJudgeCallRoundTrips(t *testing.T) {
	cfg := config.Config{Transport: config.TransportStream}
	orch := server.New(cfg, nil, server.WithExitFunc(func(int) {}))

	in := strings.NewReader(
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"t","version":"1"}}}` + "\n" +
			`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"judge","arguments":{"item":{"content":"x","verified":true}}}}` + "\n")
	var out bytes.Buffer

	require.NoError(t, orch.Start(context.Background(), in, &out, service.Provided{}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)

	var first, second jsonrpc.Response
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "1", string(first.ID))
	assert.Equal(t, "2", string(second.ID))
	require.Nil(t, second.Error)

	result := second.Result.(map[string]any)
	content := result["content"].([]any)
	require.Len(t, content, 1)
	text := content[0].(map[string]any)["text"].(string)

	var judgment map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &judgment))
	assert.IsType(t, "", judgment["requestId"])
	assert.IsType(t, float64(0), judgment["score"])
	assert.Contains(t, []any{"HOWL", "WAG", "GROWL", "BARK"}, judgment["verdict"])
}

func TestStatusReportsBackendAndToolCountAfterStart(t *testing.T) {
	cfg := config.Config{Transport: config.TransportStream}
	orch := server.New(cfg, nil, server.WithExitFunc(func(int) {}))

	in := strings.NewReader("")
	var out bytes.Buffer
	require.NoError(t, orch.Start(context.Background(), in, &out, service.Provided{}))

	status := orch.Status()
	assert.Equal(t, "memory", status.Backend)
	assert.Greater(t, status.Tools, 0)
}

func TestStopBeforeStartIsANoOp(t *testing.T) {
	orch := server.New(config.Config{}, nil)
	assert.NoError(t, orch.Stop(context.Background()))
}

func TestStopIsIdempotent(t *testing.T) {
	cfg := config.Config{Transport: config.TransportStream}
	orch := server.New(cfg, nil, server.WithExitFunc(func(int) {}))
	in := strings.NewReader("")
	var out bytes.Buffer
	require.NoError(t, orch.Start(context.Background(), in, &out, service.Provided{}))

	require.NoError(t, orch.Stop(context.Background()))
	assert.NoError(t, orch.Stop(context.Background()))
}
