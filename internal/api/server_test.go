package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/f9-o/warden/api/v1"
	"github.com/f9-o/warden/internal/core/logger"
	"github.com/f9-o/warden/internal/failover"
	"github.com/f9-o/warden/internal/health"
	"github.com/f9-o/warden/internal/metrics"
	"github.com/f9-o/warden/internal/orchestrator"
	"github.com/f9-o/warden/pkg/netutil"
)

type stubExec struct{ fail map[v1.Action]bool }

func (e stubExec) Execute(_ context.Context, action v1.Action, _ string, _ map[string]string) (bool, error) {
	if e.fail[action] {
		return false, errors.New("container did not come back")
	}
	return true, nil
}

type fixture struct {
	orch   *orchestrator.Orchestrator
	client *Client
	srv    *httptest.Server
}

func newFixture(t *testing.T, exec stubExec, opts ...Option) *fixture {
	t.Helper()
	orch, err := orchestrator.New(orchestrator.DefaultConfig(), orchestrator.Deps{
		Executor: exec,
		Prober:   health.ProberFunc(func(context.Context, v1.ServiceEndpoint) bool { return true }),
	})
	require.NoError(t, err)

	srv := httptest.NewServer(NewServer("127.0.0.1:0", orch, logger.Nop(), opts...).Handler())
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL, 5*time.Second)
	require.NoError(t, err)
	return &fixture{orch: orch, client: client, srv: srv}
}

func ordersBody() ServiceBody {
	return ServiceBody{
		Name: "orders",
		Endpoints: []EndpointBody{
			{Name: "p1", Address: "http://10.0.0.1:8080", Timeout: "5s", Primary: true, Priority: 1},
			{Name: "p2", Address: "http://10.0.0.2:8080", Priority: 2},
		},
	}
}

func statusCode(t *testing.T, err error) int {
	t.Helper()
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	return apiErr.Status
}

func TestRegisterAndList(t *testing.T) {
	f := newFixture(t, stubExec{})
	ctx := context.Background()

	st, err := f.client.RegisterService(ctx, ordersBody())
	require.NoError(t, err)
	assert.Equal(t, "orders", st.Name)
	assert.Equal(t, v1.StateUnknown, st.State)
	assert.Equal(t, 2, st.TotalEndpoints)

	svcs, err := f.client.Services(ctx)
	require.NoError(t, err)
	require.Len(t, svcs, 1)
	assert.Equal(t, "5s", svcs[0].Endpoints[0].Timeout)
	assert.Equal(t, v1.ProbeHTTP, svcs[0].Endpoints[0].Type)

	report, err := f.client.Status(ctx)
	require.NoError(t, err)
	assert.Contains(t, report.Services, "orders")
}

func TestRegisterRejectsBadInput(t *testing.T) {
	f := newFixture(t, stubExec{})
	ctx := context.Background()

	body := ordersBody()
	body.Name = "Orders!"
	_, err := f.client.RegisterService(ctx, body)
	assert.Equal(t, http.StatusBadRequest, statusCode(t, err))

	body = ordersBody()
	body.Endpoints[0].Timeout = "five seconds"
	_, err = f.client.RegisterService(ctx, body)
	assert.Equal(t, http.StatusBadRequest, statusCode(t, err))

	body = ordersBody()
	body.Endpoints = nil
	_, err = f.client.RegisterService(ctx, body)
	assert.Equal(t, http.StatusBadRequest, statusCode(t, err))

	assert.Empty(t, f.orch.Services())
}

func TestUnknownServiceIs404(t *testing.T) {
	f := newFixture(t, stubExec{})
	ctx := context.Background()

	_, err := f.client.Service(ctx, "ghost")
	assert.Equal(t, http.StatusNotFound, statusCode(t, err))
	_, err = f.client.AddRule(ctx, "ghost", RuleBody{Condition: v1.ConditionServiceFailed, Action: v1.ActionRestartService})
	assert.Equal(t, http.StatusNotFound, statusCode(t, err))
	_, err = f.client.Failover(ctx, "ghost", v1.ActionRestartService, nil)
	assert.Equal(t, http.StatusNotFound, statusCode(t, err))
	_, err = f.client.Failovers(ctx, "ghost")
	assert.Equal(t, http.StatusNotFound, statusCode(t, err))
	_, err = f.client.SetMaintenance(ctx, "ghost", true)
	assert.Equal(t, http.StatusNotFound, statusCode(t, err))
}

func TestRules(t *testing.T) {
	f := newFixture(t, stubExec{})
	ctx := context.Background()
	_, err := f.client.RegisterService(ctx, ordersBody())
	require.NoError(t, err)

	added, err := f.client.AddRule(ctx, "orders", RuleBody{
		Condition:  v1.ConditionServiceFailed,
		Action:     v1.ActionRestartService,
		TimeWindow: "2m",
	})
	require.NoError(t, err)
	assert.Equal(t, "orders", added.Service)
	assert.Equal(t, "2m0s", added.TimeWindow)
	assert.Equal(t, "5m0s", added.Cooldown)

	_, err = f.client.AddRule(ctx, "orders", RuleBody{Condition: "cpu_high", Action: v1.ActionRestartService})
	assert.Equal(t, http.StatusBadRequest, statusCode(t, err))
	_, err = f.client.AddRule(ctx, "orders", RuleBody{Service: "billing", Condition: v1.ConditionServiceFailed, Action: v1.ActionRestartService})
	assert.Equal(t, http.StatusBadRequest, statusCode(t, err))
	_, err = f.client.AddRule(ctx, "orders", RuleBody{Condition: v1.ConditionServiceFailed, Action: v1.ActionRestartService, Cooldown: "soon"})
	assert.Equal(t, http.StatusBadRequest, statusCode(t, err))
	_, err = f.client.AddRule(ctx, "orders", RuleBody{Condition: v1.ConditionServiceFailed, Action: v1.ActionScaleUp, Params: map[string]string{"step": "abc"}})
	assert.Equal(t, http.StatusBadRequest, statusCode(t, err))

	rules, err := f.client.Rules(ctx, "orders")
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestManualFailover(t *testing.T) {
	f := newFixture(t, stubExec{fail: map[v1.Action]bool{v1.ActionRestartService: true}})
	ctx := context.Background()
	_, err := f.client.RegisterService(ctx, ordersBody())
	require.NoError(t, err)

	rec, err := f.client.Failover(ctx, "orders", v1.ActionScaleUp, map[string]string{"step": "2"})
	require.NoError(t, err)
	assert.True(t, rec.Success)
	assert.True(t, rec.Manual)

	rec, err = f.client.Failover(ctx, "orders", v1.ActionRestartService, nil)
	assert.Equal(t, http.StatusInternalServerError, statusCode(t, err))
	assert.False(t, rec.Success, "the failed attempt is returned")
	assert.Contains(t, rec.Error, "container did not come back")

	_, err = f.client.Failover(ctx, "orders", "reboot", nil)
	assert.Equal(t, http.StatusBadRequest, statusCode(t, err))

	recs, err := f.client.Failovers(ctx, "orders")
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestFailoverRateLimit(t *testing.T) {
	f := newFixture(t, stubExec{}, WithFailoverLimit(time.Hour, 1))
	ctx := context.Background()
	_, err := f.client.RegisterService(ctx, ordersBody())
	require.NoError(t, err)

	_, err = f.client.Failover(ctx, "orders", v1.ActionSwitchTraffic, nil)
	require.NoError(t, err)
	_, err = f.client.Failover(ctx, "orders", v1.ActionSwitchTraffic, nil)
	assert.Equal(t, http.StatusTooManyRequests, statusCode(t, err))
}

func TestFailoverRateLimitChargesOnlyAcceptedRequests(t *testing.T) {
	f := newFixture(t, stubExec{}, WithFailoverLimit(time.Hour, 2))
	ctx := context.Background()
	_, err := f.client.RegisterService(ctx, ordersBody())
	require.NoError(t, err)

	_, err = f.client.Failover(ctx, "orders", "reboot", nil)
	assert.Equal(t, http.StatusBadRequest, statusCode(t, err))
	_, err = f.client.Failover(ctx, "orders", v1.ActionScaleUp, map[string]string{"step": "abc"})
	assert.Equal(t, http.StatusBadRequest, statusCode(t, err))
	_, err = f.client.Failover(ctx, "ghost", v1.ActionSwitchTraffic, nil)
	assert.Equal(t, http.StatusNotFound, statusCode(t, err))

	_, err = f.client.Failover(ctx, "orders", v1.ActionSwitchTraffic, nil)
	require.NoError(t, err)
	_, err = f.client.Failover(ctx, "orders", v1.ActionSwitchTraffic, nil)
	require.NoError(t, err)
	_, err = f.client.Failover(ctx, "orders", v1.ActionSwitchTraffic, nil)
	assert.Equal(t, http.StatusTooManyRequests, statusCode(t, err))
}

func TestFailoverLimitersOnlyForKnownServices(t *testing.T) {
	orch, err := orchestrator.New(orchestrator.DefaultConfig(), orchestrator.Deps{
		Executor: stubExec{},
		Prober:   health.ProberFunc(func(context.Context, v1.ServiceEndpoint) bool { return true }),
	})
	require.NoError(t, err)
	s := NewServer("127.0.0.1:0", orch, logger.Nop(), WithFailoverLimit(time.Hour, 1))
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	client, err := NewClient(srv.URL, 5*time.Second)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		_, err := client.Failover(ctx, fmt.Sprintf("ghost-%d", i), v1.ActionSwitchTraffic, nil)
		assert.Equal(t, http.StatusNotFound, statusCode(t, err))
	}

	s.limitMu.Lock()
	defer s.limitMu.Unlock()
	assert.Empty(t, s.limiters)
}

func TestMaintenance(t *testing.T) {
	f := newFixture(t, stubExec{})
	ctx := context.Background()
	_, err := f.client.RegisterService(ctx, ordersBody())
	require.NoError(t, err)

	changed, err := f.client.SetMaintenance(ctx, "orders", true)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = f.client.SetMaintenance(ctx, "orders", true)
	require.NoError(t, err)
	assert.False(t, changed)

	st, err := f.client.Service(ctx, "orders")
	require.NoError(t, err)
	assert.True(t, st.Maintenance)

	changed, err = f.client.SetMaintenance(ctx, "orders", false)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestErrorRate(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, stubExec{})
	_, err := f.client.RegisterService(ctx, ordersBody())
	require.NoError(t, err)
	err = f.client.SetErrorRate(ctx, "orders", 0.3)
	assert.Equal(t, http.StatusBadRequest, statusCode(t, err), "static source not wired")

	rates := failover.NewStaticErrorRates()
	f = newFixture(t, stubExec{}, WithErrorRates(rates))
	_, err = f.client.RegisterService(ctx, ordersBody())
	require.NoError(t, err)

	require.NoError(t, f.client.SetErrorRate(ctx, "orders", 0.3))
	got, _ := rates.ErrorRate(ctx, "orders", time.Minute)
	assert.InDelta(t, 0.3, got, 1e-9)

	err = f.client.SetErrorRate(ctx, "orders", 1.5)
	assert.Equal(t, http.StatusBadRequest, statusCode(t, err))
	err = f.client.SetErrorRate(ctx, "ghost", 0.1)
	assert.Equal(t, http.StatusNotFound, statusCode(t, err))
}

func TestHistory(t *testing.T) {
	f := newFixture(t, stubExec{})
	ctx := context.Background()
	_, err := f.client.RegisterService(ctx, ordersBody())
	require.NoError(t, err)
	f.orch.CheckHealth(ctx)

	samples, err := f.client.History(ctx, "orders", time.Hour)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, v1.StateHealthy, samples[0].State)

	resp, err := http.Get(f.srv.URL + "/services/orders/history?window=yesterday")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthzMetricsAndUnknownRoute(t *testing.T) {
	rec := metrics.NewRecorder()
	f := newFixture(t, stubExec{}, WithMetrics(rec.Handler()))
	require.NoError(t, f.client.Healthz(context.Background()))

	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")

	err = f.client.call(context.Background(), http.MethodGet, "/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, statusCode(t, err))
}

func TestNewClientNormalisesAddress(t *testing.T) {
	c, err := NewClient("127.0.0.1:7070", 0)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:7070", c.Base())

	c, err = NewClient("https://warden.internal/", 0)
	require.NoError(t, err)
	assert.Equal(t, "https://warden.internal", c.Base())

	_, err = NewClient("ftp://warden", 0)
	assert.Error(t, err)
}

func TestRunServesUntilCancelled(t *testing.T) {
	port, err := netutil.FreePort()
	require.NoError(t, err)
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	orch, err := orchestrator.New(orchestrator.DefaultConfig(), orchestrator.Deps{Executor: stubExec{}})
	require.NoError(t, err)
	srv := NewServer(addr, orch, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	client, err := NewClient(addr, time.Second)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return client.Healthz(context.Background()) == nil }, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
