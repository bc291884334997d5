package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/worldbeesion/beecareful-backend/internal/diagnosis/domain"
	"github.com/worldbeesion/beecareful-backend/internal/metrics"
)

const maxErrorBody = 512

// Client calls the remote bee disease analysis service.
type Client struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *metrics.DiagnosisMetrics
}

type Options struct {
	Endpoint string
	Timeout  time.Duration
	// RateLimit is the sustained calls per second; zero disables limiting.
	RateLimit float64
	Burst     int
	Metrics   *metrics.DiagnosisMetrics
}

func NewClient(opt Options) *Client {
	if opt.Timeout <= 0 {
		opt.Timeout = 120 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opt.RateLimit > 0 {
		burst := opt.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opt.RateLimit), burst)
	}

	return &Client{
		endpoint: opt.Endpoint,
		timeout:  opt.Timeout,
		// Per call deadline is set on the request context.
		httpClient: &http.Client{},
		limiter:    limiter,
		metrics:    opt.Metrics,
	}
}

type analyzeRequest struct {
	S3Key string `json:"s3Key"`
}

type analyzeResponse struct {
	Diagnosis *struct {
		Larva struct {
			NormalCount     int64 `json:"normalCount"`
			VarroaCount     int64 `json:"varroaCount"`
			FoulBroodCount  int64 `json:"foulBroodCount"`
			ChalkBroodCount int64 `json:"chalkBroodCount"`
		} `json:"larva"`
		Imago struct {
			NormalCount int64 `json:"normalCount"`
			VarroaCount int64 `json:"varroaCount"`
			DwvCount    int64 `json:"dwvCount"`
		} `json:"imago"`
	} `json:"diagnosis"`
	AnnotatedImageS3Key string `json:"annotatedImageS3Key"`
}

// Analyze submits the photo stored under objectKey and returns its detection
// counts. Every failure is an *domain.AnalysisError; the call is not retried.
func (c *Client) Analyze(ctx context.Context, objectKey string) (*domain.AnalysisResult, error) {
	start := time.Now()
	result, err := c.analyze(ctx, objectKey)
	c.metrics.ObserveAnalysis(outcome(err), time.Since(start))
	return result, err
}

func (c *Client) analyze(ctx context.Context, objectKey string) (*domain.AnalysisResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, classifyTransport(ctx, fmt.Errorf("rate limiter: %w", err))
	}

	body, err := json.Marshal(analyzeRequest{S3Key: objectKey})
	if err != nil {
		return nil, &domain.AnalysisError{Kind: domain.AnalysisRemote, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &domain.AnalysisError{Kind: domain.AnalysisRemote, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(ctx, fmt.Errorf("failed to call analysis service: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(ctx, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.AnalysisError{
			Kind:       domain.AnalysisRemote,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("analysis service returned: %s", truncate(raw)),
		}
	}

	var parsed analyzeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &domain.AnalysisError{Kind: domain.AnalysisMalformed, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to unmarshal response: %w", err)}
	}
	if parsed.Diagnosis == nil {
		return nil, &domain.AnalysisError{Kind: domain.AnalysisMalformed, StatusCode: resp.StatusCode, Err: errors.New("response has no diagnosis")}
	}

	result := &domain.AnalysisResult{
		Larva: domain.LarvaCounts{
			Normal:     parsed.Diagnosis.Larva.NormalCount,
			Varroa:     parsed.Diagnosis.Larva.VarroaCount,
			Foulbrood:  parsed.Diagnosis.Larva.FoulBroodCount,
			Chalkbrood: parsed.Diagnosis.Larva.ChalkBroodCount,
		},
		Imago: domain.ImagoCounts{
			Normal: parsed.Diagnosis.Imago.NormalCount,
			Varroa: parsed.Diagnosis.Imago.VarroaCount,
			DWV:    parsed.Diagnosis.Imago.DwvCount,
		},
		AnnotatedObjectKey: parsed.AnnotatedImageS3Key,
	}
	if err := result.Validate(); err != nil {
		return nil, &domain.AnalysisError{Kind: domain.AnalysisMalformed, StatusCode: resp.StatusCode, Err: err}
	}
	return result, nil
}

// classifyTransport reports a deadline hit as a timeout and anything else as a
// remote failure.
func classifyTransport(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &domain.AnalysisError{Kind: domain.AnalysisTimeout, Err: err}
	}
	return &domain.AnalysisError{Kind: domain.AnalysisRemote, Err: err}
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	var aerr *domain.AnalysisError
	if errors.As(err, &aerr) {
		return string(aerr.Kind)
	}
	return "error"
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		return string(b[:maxErrorBody]) + "..."
	}
	return string(b)
}
