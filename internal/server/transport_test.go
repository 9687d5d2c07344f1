package server_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravelhq/ravel/internal/server"
)

func TestHTTPHandler_SuccessfulToolCallReturnsEnvelope(t *testing.T) {
	srv, _ := newServer(t)
	ts := httptest.NewServer(srv.HTTPHandler())
	defer ts.Close()

	body := mustJSON(t, map[string]any{"create": []map[string]any{{"title": "ship it"}}})
	resp, err := http.Post(ts.URL+"/tools/manage_items", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var env server.Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.True(t, env.Success)
}

func TestHTTPHandler_UnknownToolReturnsUnprocessableEntity(t *testing.T) {
	srv, _ := newServer(t)
	ts := httptest.NewServer(srv.HTTPHandler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/tools/not_a_tool", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var env server.Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.False(t, env.Success)
}

func TestHTTPHandler_RejectsNonPostMethods(t *testing.T) {
	srv, _ := newServer(t)
	ts := httptest.NewServer(srv.HTTPHandler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/tools/manage_items")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHTTPHandler_MalformedBodyReturnsBadRequest(t *testing.T) {
	srv, _ := newServer(t)
	ts := httptest.NewServer(srv.HTTPHandler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/tools/manage_items", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServeStdio_ProcessesLineDelimitedRequests(t *testing.T) {
	srv, _ := newServer(t)

	reqLine := mustJSON(t, map[string]any{
		"tool":    "manage_items",
		"payload": json.RawMessage(mustJSON(t, map[string]any{"create": []map[string]any{{"title": "stdio item"}}})),
	})
	in := bytes.NewReader(append(reqLine, '\n'))
	var out bytes.Buffer

	err := srv.ServeStdio(context.Background(), in, &out)
	require.NoError(t, err)

	scanner := bufio.NewScanner(&out)
	require.True(t, scanner.Scan())
	var env server.Envelope
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &env))
	assert.True(t, env.Success)
}

func TestServeStdio_MalformedLineYieldsFailureEnvelopeAndContinues(t *testing.T) {
	srv, _ := newServer(t)

	goodLine := mustJSON(t, map[string]any{
		"tool":    "manage_items",
		"payload": json.RawMessage(mustJSON(t, map[string]any{"create": []map[string]any{{"title": "after bad line"}}})),
	})
	in := strings.NewReader("{not json at all\n" + string(goodLine) + "\n")
	var out bytes.Buffer

	err := srv.ServeStdio(context.Background(), in, &out)
	require.NoError(t, err)

	scanner := bufio.NewScanner(&out)
	var envelopes []server.Envelope
	for scanner.Scan() {
		var env server.Envelope
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &env))
		envelopes = append(envelopes, env)
	}
	require.Len(t, envelopes, 2)
	assert.False(t, envelopes[0].Success)
	assert.True(t, envelopes[1].Success)
}

func TestServeStdio_SkipsBlankLines(t *testing.T) {
	srv, _ := newServer(t)
	in := strings.NewReader("\n\n")
	var out bytes.Buffer

	err := srv.ServeStdio(context.Background(), in, &out)
	require.NoError(t, err)
	assert.Empty(t, out.String())
}

func TestServeStdio_StopsWhenContextCancelled(t *testing.T) {
	srv, _ := newServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	line := mustJSON(t, map[string]any{"tool": "manage_items", "payload": json.RawMessage("{}")})
	in := bytes.NewReader(append(line, '\n'))
	var out bytes.Buffer

	err := srv.ServeStdio(ctx, in, &out)
	assert.ErrorIs(t, err, context.Canceled)
}
