package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestVerdict(t *testing.T) {
	assert.Equal(t, "bot", Verdict(true))
	assert.Equal(t, "human", Verdict(false))
}

func TestHandlerExposesCounters(t *testing.T) {
	before := testutil.ToFloat64(SessionsIngested.WithLabelValues("human"))
	SessionsIngested.WithLabelValues("human").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(SessionsIngested.WithLabelValues("human")))

	ObserveRequest("/api/analytics/track", "200", 15*time.Millisecond)
	ObserveRequest("", "404", time.Millisecond)

	router := gin.New()
	router.GET("/metrics", Handler())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "devbytes_reading_sessions_ingested_total")
	assert.Contains(t, body, `route="/api/analytics/track"`)
	assert.Contains(t, body, `route="unmatched"`)
}
