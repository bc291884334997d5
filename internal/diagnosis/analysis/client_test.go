package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldbeesion/beecareful-backend/internal/diagnosis/domain"
)

const okBody = `{
	"diagnosis": {
		"larva": {"normalCount": 90, "varroaCount": 6, "foulBroodCount": 1, "chalkBroodCount": 0},
		"imago": {"normalCount": 40, "varroaCount": 2, "dwvCount": 0}
	},
	"annotatedImageS3Key": "diagnosis/annotated/abc.jpg"
}`

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func requireAnalysisKind(t *testing.T, err error, kind domain.AnalysisErrorKind) *domain.AnalysisError {
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRemoteAnalysis)
	var aerr *domain.AnalysisError
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, kind, aerr.Kind)
	return aerr
}

func TestClient_Analyze(t *testing.T) {
	t.Run("parses a successful response", func(t *testing.T) {
		srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			var req map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "diagnosis/origin/p1.jpg", req["s3Key"])

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(okBody))
		})

		c := NewClient(Options{Endpoint: srv.URL, Timeout: time.Second})
		res, err := c.Analyze(context.Background(), "diagnosis/origin/p1.jpg")
		require.NoError(t, err)
		assert.Equal(t, int64(97), res.LarvaTotal())
		assert.Equal(t, int64(42), res.ImagoTotal())
		assert.Equal(t, int64(1), res.Larva.Foulbrood)
		assert.Equal(t, "diagnosis/annotated/abc.jpg", res.AnnotatedObjectKey)
	})

	t.Run("non 2xx is a remote error", func(t *testing.T) {
		srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model crashed", http.StatusInternalServerError)
		})

		_, err := NewClient(Options{Endpoint: srv.URL, Timeout: time.Second}).Analyze(context.Background(), "k")
		aerr := requireAnalysisKind(t, err, domain.AnalysisRemote)
		assert.Equal(t, http.StatusInternalServerError, aerr.StatusCode)
	})

	t.Run("undecodable body is malformed", func(t *testing.T) {
		srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"diagnosis":`))
		})
		_, err := NewClient(Options{Endpoint: srv.URL, Timeout: time.Second}).Analyze(context.Background(), "k")
		requireAnalysisKind(t, err, domain.AnalysisMalformed)
	})

	t.Run("missing diagnosis is malformed", func(t *testing.T) {
		srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"annotatedImageS3Key":"x.jpg"}`))
		})
		_, err := NewClient(Options{Endpoint: srv.URL, Timeout: time.Second}).Analyze(context.Background(), "k")
		requireAnalysisKind(t, err, domain.AnalysisMalformed)
	})

	t.Run("missing annotated key is malformed", func(t *testing.T) {
		srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"diagnosis":{"larva":{},"imago":{}}}`))
		})
		_, err := NewClient(Options{Endpoint: srv.URL, Timeout: time.Second}).Analyze(context.Background(), "k")
		requireAnalysisKind(t, err, domain.AnalysisMalformed)
	})

	t.Run("slow service times out", func(t *testing.T) {
		release := make(chan struct{})
		srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		})
		defer close(release)

		_, err := NewClient(Options{Endpoint: srv.URL, Timeout: 50 * time.Millisecond}).Analyze(context.Background(), "k")
		requireAnalysisKind(t, err, domain.AnalysisTimeout)
	})

	t.Run("unreachable service is a remote error", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := NewClient(Options{Endpoint: url, Timeout: time.Second}).Analyze(context.Background(), "k")
		requireAnalysisKind(t, err, domain.AnalysisRemote)
	})

	t.Run("no retry on failure", func(t *testing.T) {
		var calls atomic.Int32
		srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		})
		_, err := NewClient(Options{Endpoint: srv.URL, Timeout: time.Second}).Analyze(context.Background(), "k")
		require.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestClient_RateLimit(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(okBody))
	})

	c := NewClient(Options{Endpoint: srv.URL, Timeout: time.Second, RateLimit: 10, Burst: 1})
	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.Analyze(context.Background(), "k")
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}
