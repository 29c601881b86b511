package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_NilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.AuthOutcome("login", "ok")
		m.RealtimeConnected()
		m.RealtimeDropped()
		m.TokensSwept(3)
	})
}

func TestMetrics_AuthOutcome(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.AuthOutcome("refresh", "forbidden")
	m.AuthOutcome("refresh", "forbidden")
	m.TokensSwept(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.authOutcomes.WithLabelValues("refresh", "forbidden")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.tokensSwept))
}

func TestMetrics_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New(prometheus.NewRegistry())
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/ping/:id", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping/1", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/ping/:id", "GET", "418")))
}
