package delivery

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/acuevasp/hookrelay/pkg/config"
	"github.com/acuevasp/hookrelay/pkg/db/models"
	"github.com/acuevasp/hookrelay/pkg/enums"
	"github.com/acuevasp/hookrelay/pkg/logger"
	"github.com/acuevasp/hookrelay/pkg/metrics"
)

const (
	secretTokenHeader   = "X-Insight-Token"
	maxResponseBodySize = 4 * 1024
)

// WebhookProcessorParams configure the webhook channel.
type WebhookProcessorParams struct {
	Logger   *logger.Logger
	Renderer Renderer
	Policy   config.DeliveryConfig
	Metrics  *metrics.DeliveryMetrics
}

// WebhookProcessor posts events to subscriber-configured URLs with a
// bounded retry budget. Endpoints that disable TLS verification share a
// dedicated pooled client; they are never mixed with verifying ones.
type WebhookProcessor struct {
	logg           *logger.Logger
	renderer       Renderer
	secureClient   *http.Client
	insecureClient *http.Client
	policy         config.DeliveryConfig
	metrics        *metrics.DeliveryMetrics
	now            func() time.Time
}

// NewWebhookProcessor builds the webhook channel processor.
func NewWebhookProcessor(params WebhookProcessorParams) (*WebhookProcessor, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	renderer := params.Renderer
	if renderer == nil {
		renderer = JSONRenderer{}
	}
	policy := params.Policy
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = time.Second
	}
	if policy.MaxBackoff <= 0 {
		policy.MaxBackoff = 30 * time.Second
	}
	if policy.RequestTimeout <= 0 {
		policy.RequestTimeout = 30 * time.Second
	}

	insecureTransport := http.DefaultTransport.(*http.Transport).Clone()
	insecureTransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	return &WebhookProcessor{
		logg:           params.Logger,
		renderer:       renderer,
		secureClient:   &http.Client{Timeout: policy.RequestTimeout},
		insecureClient: &http.Client{Timeout: policy.RequestTimeout, Transport: insecureTransport},
		policy:         policy,
		metrics:        params.Metrics,
		now:            time.Now,
	}, nil
}

func (p *WebhookProcessor) Type() enums.EndpointType { return enums.EndpointTypeWebhook }

// Process delivers the event to every endpoint of the group concurrently.
// Results keep the input ordering; one slow or retrying destination never
// delays its peers.
func (p *WebhookProcessor) Process(ctx context.Context, event Event, endpoints []models.Endpoint) []models.NotificationHistory {
	results := make([]models.NotificationHistory, len(endpoints))
	var wg sync.WaitGroup
	for i, endpoint := range endpoints {
		wg.Add(1)
		go func(idx int, ep models.Endpoint) {
			defer wg.Done()
			results[idx] = p.processOne(ctx, event, ep)
		}(i, endpoint)
	}
	wg.Wait()
	return results
}

func (p *WebhookProcessor) processOne(ctx context.Context, event Event, endpoint models.Endpoint) models.NotificationHistory {
	start := p.now()
	epCtx := p.logg.WithEndpointID(ctx, endpoint.ID.String())
	epCtx = p.logg.WithEventID(epCtx, event.ID.String())

	body, err := p.renderer.Render(ctx, event, enums.EndpointTypeWebhook)
	if err != nil {
		p.logg.Error(epCtx, "rendering webhook body failed", err)
		p.observe(false, start)
		return failureHistory(event, endpoint, p.elapsedMs(start), Details{
			URL:    endpoint.URL,
			Method: endpoint.Method,
			Error:  err.Error(),
		})
	}

	var last Details
	totalAttempts := p.policy.MaxRetries + 1
	for attempt := 1; attempt <= totalAttempts; attempt++ {
		p.metrics.IncAttempt(string(enums.EndpointTypeWebhook))
		outcome, details := p.attempt(ctx, endpoint, body)
		switch outcome {
		case OutcomeSuccess:
			p.observe(true, start)
			return successHistory(event, endpoint, p.elapsedMs(start))
		case OutcomePermanent:
			p.observe(false, start)
			return failureHistory(event, endpoint, p.elapsedMs(start), details)
		}
		// Retryable: keep the last known outcome so budget exhaustion can
		// report what actually happened.
		last = details
		if attempt < totalAttempts {
			if err := sleep(ctx, Backoff(attempt, p.policy.InitialBackoff, p.policy.MaxBackoff)); err != nil {
				last.Error = "delivery canceled: " + err.Error()
				break
			}
		}
	}

	p.logg.Warn(epCtx, "webhook retry budget exhausted")
	p.observe(false, start)
	return failureHistory(event, endpoint, p.elapsedMs(start), last)
}

// attempt performs a single HTTP call and classifies the result. The
// returned Details are only meaningful for non-success outcomes.
func (p *WebhookProcessor) attempt(ctx context.Context, endpoint models.Endpoint, body []byte) (Outcome, Details) {
	details := Details{URL: endpoint.URL, Method: endpoint.Method}

	req, err := p.buildRequest(ctx, endpoint, body)
	if err != nil {
		details.Error = err.Error()
		return OutcomePermanent, details
	}

	resp, err := p.clientFor(endpoint).Do(req)
	if err != nil {
		details.Error = err.Error()
		return ClassifyError(err), details
	}
	defer resp.Body.Close()

	outcome := ClassifyStatus(resp.StatusCode)
	if outcome == OutcomeSuccess {
		return OutcomeSuccess, Details{}
	}

	code := resp.StatusCode
	details.Code = &code
	if raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize)); readErr == nil {
		details.ResponseBody = string(raw)
	}
	return outcome, details
}

func (p *WebhookProcessor) buildRequest(ctx context.Context, endpoint models.Endpoint, body []byte) (*http.Request, error) {
	method := endpoint.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request for endpoint %s: %w", endpoint.ID, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if endpoint.SecretToken != nil && *endpoint.SecretToken != "" {
		req.Header.Set(secretTokenHeader, *endpoint.SecretToken)
	}
	if endpoint.BasicAuthUser != nil && *endpoint.BasicAuthUser != "" {
		password := ""
		if endpoint.BasicAuthPassword != nil {
			password = *endpoint.BasicAuthPassword
		}
		req.SetBasicAuth(*endpoint.BasicAuthUser, password)
	}
	return req, nil
}

func (p *WebhookProcessor) clientFor(endpoint models.Endpoint) *http.Client {
	if endpoint.DisableTLSVerification {
		return p.insecureClient
	}
	return p.secureClient
}

func (p *WebhookProcessor) elapsedMs(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}

func (p *WebhookProcessor) observe(success bool, start time.Time) {
	p.metrics.IncOutcome(string(enums.EndpointTypeWebhook), success)
	p.metrics.ObserveDuration(string(enums.EndpointTypeWebhook), time.Since(start))
}
