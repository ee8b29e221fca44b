package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/runoshun/termux-tasker/internal/domain"
	"github.com/runoshun/termux-tasker/internal/infra/metrics"
	"github.com/runoshun/termux-tasker/internal/testutil"
	"github.com/runoshun/termux-tasker/internal/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*httptest.Server
	store    *testutil.MockCallbackStore
	service  *testutil.MockExecutionService
	notifier *testutil.MockHostNotifier
	metrics  *metrics.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := testutil.NewMockCallbackStore()
	service := &testutil.MockExecutionService{}
	notifier := &testutil.MockHostNotifier{}
	m := metrics.New()
	clock := &testutil.MockClock{NowTime: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	logger := &testutil.MockLogger{}

	dispatch := usecase.NewDispatchExecution(store, service, &testutil.MockPathValidator{}, logger, m, clock,
		usecase.DispatchPolicy{
			CallbackQueue: "/q",
			Paths:         domain.Paths{Home: "/tasker-test/home", ScriptsDir: "/tasker-test/home/.termux/tasker"},
		})

	srv := New(Options{
		Dispatch:   dispatch,
		Relay:      usecase.NewRelayResult(store, notifier, logger, m),
		Pending:    usecase.NewListPending(store, clock),
		Metrics:    m.Handler(),
		Middleware: m,
		Logger:     logger,
		PendingTTL: time.Hour,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testServer{Server: ts, store: store, service: service, notifier: notifier, metrics: m}
}

func (ts *testServer) post(t *testing.T, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func fireBody(t *testing.T, bundle domain.Bundle, caller domain.CallerContext) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(FireRequest{Bundle: bundle, Caller: caller}))
	return buf.String()
}

func TestServer_Healthz(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_Fire(t *testing.T) {
	t.Run("pending reply", func(t *testing.T) {
		ts := newTestServer(t)
		body := fireBody(t, domain.Bundle{
			domain.KeyExecutable:  "run.sh",
			domain.KeyArguments:   "",
			domain.KeyVersionCode: domain.ProtocolVersion,
		}, domain.CallerContext{ID: "host-1", Ordered: true})

		resp, reply := ts.post(t, "/v1/fire", body)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(domain.ResultCodePending), reply["resultCode"])
		assert.Equal(t, float64(1), reply["requestCode"])
		assert.Equal(t, true, reply["pending"])
		assert.Equal(t, "host-1", reply["callerId"])
		require.Len(t, ts.service.Started, 1)
		assert.Contains(t, ts.store.Callbacks, 1)
	})

	t.Run("version code must be an int", func(t *testing.T) {
		ts := newTestServer(t)
		body := `{"bundle":{"com.termux.tasker.extra.EXECUTABLE":"run.sh",` +
			`"com.termux.execute.arguments":"","com.termux.tasker.extra.VERSION_CODE":"7"}}`

		resp, reply := ts.post(t, "/v1/fire", body)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, float64(domain.ResultCodeMalformedRequest), reply["resultCode"])
		assert.NotEmpty(t, reply["callerId"])
		assert.Empty(t, ts.service.Started)
	})

	t.Run("policy violation", func(t *testing.T) {
		ts := newTestServer(t)
		body := fireBody(t, domain.Bundle{
			domain.KeyExecutable:  "/bin/sh",
			domain.KeyArguments:   "-c id",
			domain.KeyVersionCode: domain.ProtocolVersion,
		}, domain.CallerContext{ID: "host"})

		resp, reply := ts.post(t, "/v1/fire", body)

		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, float64(domain.ResultCodePolicyViolation), reply["resultCode"])
	})

	t.Run("invalid json", func(t *testing.T) {
		ts := newTestServer(t)

		resp, body := ts.post(t, "/v1/fire", "{")

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, body["error"], "invalid request body")
	})
}

func TestServer_Callback(t *testing.T) {
	t.Run("relays result", func(t *testing.T) {
		ts := newTestServer(t)
		ts.store.Callbacks[5] = domain.PendingCallback{
			RequestCode: 5,
			Caller:      domain.CallerContext{ID: "host", Ordered: true},
		}

		resp, reply := ts.post(t, "/v1/callbacks/5", `{"result":{"stdout":"hi","exitCode":0}}`)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(domain.ResultCodeOK), reply["resultCode"])
		require.Len(t, ts.notifier.Finished, 1)
		assert.Equal(t, "hi", ts.notifier.Finished[0].Reply.Variables[domain.VarStdout])
		assert.Empty(t, ts.store.Callbacks)
	})

	t.Run("unknown request code", func(t *testing.T) {
		ts := newTestServer(t)

		resp, _ := ts.post(t, "/v1/callbacks/404", `{"result":{}}`)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("missing result", func(t *testing.T) {
		ts := newTestServer(t)
		ts.store.Callbacks[2] = domain.PendingCallback{RequestCode: 2}

		resp, _ := ts.post(t, "/v1/callbacks/2", `{}`)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, ts.store.Callbacks, 2)
	})

	t.Run("non-numeric code is not routed", func(t *testing.T) {
		ts := newTestServer(t)

		resp, err := http.Post(ts.URL+"/v1/callbacks/abc", "application/json", strings.NewReader(`{}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestServer_Pending(t *testing.T) {
	ts := newTestServer(t)
	ts.store.Callbacks[3] = domain.PendingCallback{
		RequestCode: 3,
		CreatedAt:   time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC),
	}

	resp, err := http.Get(ts.URL + "/v1/pending")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Pending []PendingEntry `json:"pending"`
		Count   int            `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Pending, 1)
	assert.Equal(t, 3, body.Pending[0].RequestCode)
	assert.True(t, body.Pending[0].Expired)
	assert.Equal(t, float64(24*3600), body.Pending[0].AgeSeconds)
}

func TestServer_Metrics(t *testing.T) {
	ts := newTestServer(t)
	ts.post(t, "/v1/fire", fireBody(t, domain.Bundle{
		domain.KeyExecutable:  "run.sh",
		domain.KeyArguments:   "",
		domain.KeyVersionCode: domain.ProtocolVersion,
	}, domain.CallerContext{ID: "h"}))

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `termux_tasker_dispatched_total{outcome="ok"} 1`)
	assert.Contains(t, buf.String(), `route="/v1/fire"`)
}
