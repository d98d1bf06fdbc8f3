package failover

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/f9-o/warden/internal/core/logger"
)

func TestStaticErrorRates(t *testing.T) {
	s := NewStaticErrorRates()
	rate, err := s.ErrorRate(context.Background(), "orders", time.Minute)
	require.NoError(t, err)
	assert.Zero(t, rate)

	require.NoError(t, s.Set("orders", 0.4))
	rate, _ = s.ErrorRate(context.Background(), "orders", time.Minute)
	assert.InDelta(t, 0.4, rate, 1e-9)

	assert.Error(t, s.Set("orders", 1.2))
	assert.Error(t, s.Set("orders", -0.1))
}

func prometheusStub(t *testing.T, body string, gotQuery *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/api/v1/query"))
		assert.NoError(t, r.ParseForm())
		if gotQuery != nil {
			*gotQuery = r.Form.Get("query")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
}

func TestPrometheusErrorRateVector(t *testing.T) {
	var query string
	srv := prometheusStub(t, `{"status":"success","data":{"resultType":"vector","result":[{"metric":{},"value":[1767225600,"0.35"]}]}}`, &query)
	defer srv.Close()

	src, err := NewPrometheusErrorRate(srv.URL, `errors{service="{{.Service}}"}[{{.Window}}]`, time.Second, logger.Nop())
	require.NoError(t, err)

	rate, err := src.ErrorRate(context.Background(), "orders", 2*time.Minute)
	require.NoError(t, err)
	assert.InDelta(t, 0.35, rate, 1e-9)
	assert.Equal(t, `errors{service="orders"}[2m]`, query)
}

func TestPrometheusErrorRateEmptyAndNaN(t *testing.T) {
	empty := prometheusStub(t, `{"status":"success","data":{"resultType":"vector","result":[]}}`, nil)
	defer empty.Close()
	src, err := NewPrometheusErrorRate(empty.URL, "", time.Second, logger.Nop())
	require.NoError(t, err)
	rate, err := src.ErrorRate(context.Background(), "orders", time.Minute)
	require.NoError(t, err)
	assert.Zero(t, rate)

	nan := prometheusStub(t, `{"status":"success","data":{"resultType":"scalar","result":[1767225600,"NaN"]}}`, nil)
	defer nan.Close()
	src, err = NewPrometheusErrorRate(nan.URL, "", time.Second, logger.Nop())
	require.NoError(t, err)
	rate, err = src.ErrorRate(context.Background(), "orders", time.Minute)
	require.NoError(t, err)
	assert.Zero(t, rate)
}

func TestPrometheusErrorRateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":"error","errorType":"bad_data","error":"parse error"}`))
	}))
	defer srv.Close()

	src, err := NewPrometheusErrorRate(srv.URL, "", time.Second, logger.Nop())
	require.NoError(t, err)
	_, err = src.ErrorRate(context.Background(), "orders", time.Minute)
	assert.Error(t, err)
}

func TestPrometheusErrorRateBadTemplate(t *testing.T) {
	_, err := NewPrometheusErrorRate("http://localhost:9090", "{{.Service", time.Second, logger.Nop())
	assert.Error(t, err)
}
