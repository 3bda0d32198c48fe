package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	awsclient "github.com/younsl/autoprotect/pkg/aws"
)

func TestRecorderCounters(t *testing.T) {
	r := NewRecorder()

	r.Decision("us-east-1", "Skipped", "memory")
	r.Decision("us-east-1", "Skipped", "memory")
	r.Decision("eu-west-1", "Eligible", "")
	r.Remediation("us-east-1", "Failed", "throttled")
	r.DiscoveryError("ap-northeast-2")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.decisions.WithLabelValues("us-east-1", "Skipped", "memory")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.decisions.WithLabelValues("eu-west-1", "Eligible", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.remediations.WithLabelValues("us-east-1", "Failed", "throttled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.discoveryErrors.WithLabelValues("ap-northeast-2")))
}

func TestRecorderObserve(t *testing.T) {
	r := NewRecorder()
	finished := time.Unix(1767225600, 0)

	r.ObserveRun(90*time.Second, finished)
	r.ObserveCalls([]awsclient.CallStat{{
		Region:     "us-east-1",
		Operation:  "Lambda:ListTags",
		CallCounts: awsclient.CallCounts{Success: 10, Failure: 2, Throttled: 1},
	}})

	assert.Equal(t, 90.0, testutil.ToFloat64(r.runDuration))
	assert.Equal(t, 1767225600.0, testutil.ToFloat64(r.lastRunFinish))
	assert.Equal(t, 10.0, testutil.ToFloat64(r.apiCalls.WithLabelValues("us-east-1", "Lambda:ListTags", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.apiCalls.WithLabelValues("us-east-1", "Lambda:ListTags", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.apiCalls.WithLabelValues("us-east-1", "Lambda:ListTags", "throttled")))
}

func TestRecorderRegistryIsPrivate(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	a.DiscoveryError("us-east-1")

	assert.Equal(t, 1, testutil.CollectAndCount(a.discoveryErrors))
	assert.Equal(t, 0, testutil.CollectAndCount(b.discoveryErrors))
}

func TestPush(t *testing.T) {
	var (
		method string
		path   string
		body   string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	r := NewRecorder()
	r.Decision("us-east-1", "Eligible", "")
	require.NoError(t, r.Push(context.Background(), server.URL, "autoprotect"))

	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/autoprotect", path)
	assert.NotEmpty(t, body)
}

func TestPushFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := NewRecorder().Push(context.Background(), server.URL, "autoprotect")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "push metrics to "))
}
