package llm

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/vinayprograms/compliancekit/errors"
	"github.com/vinayprograms/compliancekit/logging"
	"github.com/vinayprograms/compliancekit/ratelimit"
	"github.com/vinayprograms/compliancekit/telemetry"
)

// Operation names recorded on errors and metrics.
const (
	OpChat    = "chat"
	OpEmbed   = "embed"
	OpAnalyze = "analyze"
	OpHealth  = "health"
)

// analysisSystemPrompt instructs the model to answer with a JSON report.
const analysisSystemPrompt = `You are a compliance analyst. Evaluate the document against the requested standards.
Respond with a single JSON object and nothing else, using this shape:
{"score": <0-100>, "confidence": <0-1>,
 "gaps": [{"requirementId": "", "standardId": "", "description": "", "severity": "low|medium|high|critical", "currentState": "", "requiredState": ""}],
 "recommendations": [{"title": "", "description": "", "priority": "low|medium|high|critical", "requirementIds": [], "effort": ""}],
 "riskAssessment": {"overallRisk": "low|medium|high|critical", "factors": [], "summary": ""}}`

// Client adapts a Backend to the Provider contract.
type Client struct {
	backend Backend
	timeout time.Duration
	logger  *logging.Logger
	metrics *telemetry.Metrics
	limiter *ratelimit.Limiter
}

var (
	_ Provider      = (*Client)(nil)
	_ HealthChecker = (*Client)(nil)
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout bounds every backend call. Non-positive values keep the default.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records provider calls into m.
func WithMetrics(m *telemetry.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithRateLimiter throttles backend calls through lim, keyed by backend
// name. A RATE_LIMITED answer from the backend reduces that capacity.
func WithRateLimiter(lim *ratelimit.Limiter) ClientOption {
	return func(c *Client) {
		c.limiter = lim
	}
}

// NewClient wraps backend.
func NewClient(backend Backend, opts ...ClientOption) *Client {
	c := &Client{
		backend: backend,
		timeout: DefaultTimeout,
		logger:  logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent("llm." + backend.Name())
	return c
}

// Name returns the backend name.
func (c *Client) Name() string { return c.backend.Name() }

// MaxTokens returns the backend's token ceiling.
func (c *Client) MaxTokens() int { return c.backend.MaxTokens() }

// Timeout returns the per-call timeout.
func (c *Client) Timeout() time.Duration { return c.timeout }

// Backend returns the wrapped backend.
func (c *Client) Backend() Backend { return c.backend }

// Chat validates messages and options, then calls the backend.
func (c *Client) Chat(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResponse, error) {
	if err := ValidateMessages(messages); err != nil {
		return nil, c.annotate(err, OpChat)
	}
	if err := ValidateOptions(opts, c.backend.MaxTokens()); err != nil {
		return nil, c.annotate(err, OpChat)
	}

	start := time.Now()
	comp, err := c.complete(ctx, OpChat, CompletionRequest{Messages: messages, Options: opts})
	if err != nil {
		return nil, err
	}
	return &ChatResponse{
		Content:    comp.Content,
		Model:      comp.Model,
		StopReason: comp.StopReason,
		Usage:      usageOf(comp),
		Confidence: clamp01(comp.Confidence),
		Duration:   time.Since(start),
	}, nil
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) (*Embedding, error) {
	if strings.TrimSpace(text) == "" {
		return nil, c.annotate(errors.Validation("text to embed is empty"), OpEmbed)
	}

	emb, err := call(ctx, c, OpEmbed, func(ctx context.Context) (*Embedding, error) {
		return c.backend.Embed(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	if emb == nil || len(emb.Vector) == 0 {
		return nil, c.annotate(errors.New(errors.ErrCodeMalformedResponse, "backend returned an empty embedding"), OpEmbed)
	}
	return emb, nil
}

// Analyze asks the model to assess document against the instructions in prompt.
func (c *Client) Analyze(ctx context.Context, document, prompt string, opts ChatOptions) (*AnalysisResponse, error) {
	if strings.TrimSpace(document) == "" {
		return nil, c.annotate(errors.Validation("document is empty"), OpAnalyze)
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, c.annotate(errors.Validation("analysis prompt is empty"), OpAnalyze)
	}
	if err := ValidateOptions(opts, c.backend.MaxTokens()); err != nil {
		return nil, c.annotate(err, OpAnalyze)
	}

	messages := []Message{
		{Role: RoleSystem, Content: analysisSystemPrompt},
		{Role: RoleUser, Content: prompt + "\n\nDocument:\n" + document},
	}

	start := time.Now()
	comp, err := c.complete(ctx, OpAnalyze, CompletionRequest{Messages: messages, Options: opts})
	if err != nil {
		return nil, err
	}
	return &AnalysisResponse{
		Content:    comp.Content,
		Model:      comp.Model,
		Usage:      usageOf(comp),
		Confidence: clamp01(comp.Confidence),
		Duration:   time.Since(start),
	}, nil
}

// HealthCheck probes the backend when it supports probing.
func (c *Client) HealthCheck(ctx context.Context) error {
	p, ok := c.backend.(Pinger)
	if !ok {
		return c.annotate(errors.New(errors.ErrCodeUnsupported, "backend has no health probe"), OpHealth)
	}
	_, err := call(ctx, c, OpHealth, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.Ping(ctx)
	})
	return err
}

func (c *Client) complete(ctx context.Context, op string, req CompletionRequest) (*Completion, error) {
	comp, err := call(ctx, c, op, func(ctx context.Context) (*Completion, error) {
		return c.backend.Complete(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	if comp == nil {
		return nil, c.annotate(errors.New(errors.ErrCodeMalformedResponse, "backend returned no completion"), op)
	}
	return comp, nil
}

type result[T any] struct {
	val T
	err error
}

// call runs fn under the client timeout. The backend sees a cancelled context
// on expiry; the caller gets TIMEOUT without waiting for the backend to notice.
func call[T any](ctx context.Context, c *Client, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var res result[T]
	throttled := false
	if err := c.limiter.Acquire(cctx, c.backend.Name()); err != nil {
		res.err = err
		throttled = true
	} else {
		done := make(chan result[T], 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- result[T]{err: errors.RecoverPanic(r)}
				}
			}()
			v, err := fn(cctx)
			done <- result[T]{val: v, err: err}
		}()

		select {
		case res = <-done:
		case <-cctx.Done():
			res = result[T]{err: cctx.Err()}
		}
	}

	if res.err != nil {
		err := c.normalize(ctx, cctx, res.err, op)
		if !throttled && err.Code() == errors.ErrCodeRateLimit {
			c.limiter.Reduce(c.backend.Name(), err.Error())
		}
		c.metrics.ObserveProviderCall(c.backend.Name(), op, err)
		c.logger.Warn("provider_call_failed", map[string]interface{}{
			"operation": op,
			"code":      string(errors.Code(err)),
			"error":     err.Error(),
		})
		return zero, err
	}
	c.metrics.ObserveProviderCall(c.backend.Name(), op, nil)
	return res.val, nil
}

// normalize maps any backend failure onto a structured error carrying the
// operation, provider name and raw detail.
func (c *Client) normalize(parent, cctx context.Context, err error, op string) *errors.Error {
	opts := []errors.Option{
		errors.WithOperation(op),
		errors.WithMetadata("provider", c.backend.Name()),
		errors.WithDetail(err.Error()),
	}

	switch {
	case parent.Err() != nil && stderrors.Is(parent.Err(), context.Canceled):
		return errors.WrapWithCode(err, errors.ErrCodeCanceled, op+" canceled", opts...)
	case stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(cctx.Err(), context.DeadlineExceeded):
		return errors.WrapWithCode(err, errors.ErrCodeTimeout,
			fmt.Sprintf("%s timed out after %s", op, c.timeout), opts...)
	}

	if se := errors.AsStructured(err); se != nil {
		return errors.Wrap(err, fmt.Sprintf("%s %s failed", c.backend.Name(), op), opts...)
	}
	code := classify(err)
	return errors.WrapWithCode(err, code, fmt.Sprintf("%s %s failed", c.backend.Name(), op), opts...)
}

func (c *Client) annotate(err *errors.Error, op string) *errors.Error {
	return errors.Wrap(err, err.Message(), errors.WithOperation(op), errors.WithMetadata("provider", c.backend.Name()))
}

// ValidateMessages checks roles and content. It never touches a backend.
func ValidateMessages(messages []Message) *errors.Error {
	if len(messages) == 0 {
		return errors.Validation("messages must not be empty")
	}
	for i, m := range messages {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return errors.Validation(fmt.Sprintf("message %d has invalid role %q", i, m.Role),
				errors.WithMetadata("index", fmt.Sprint(i)))
		}
		if strings.TrimSpace(m.Content) == "" {
			return errors.Validation(fmt.Sprintf("message %d has empty content", i),
				errors.WithMetadata("index", fmt.Sprint(i)))
		}
	}
	return nil
}

// ValidateOptions checks option ranges against the provider ceiling.
func ValidateOptions(opts ChatOptions, providerMax int) *errors.Error {
	if t := opts.Temperature; t != nil && !(*t >= 0 && *t <= 2) {
		return errors.Validation(fmt.Sprintf("temperature %v outside [0,2]", *t),
			errors.WithMetadata("field", "temperature"))
	}
	if p := opts.TopP; p != nil && !(*p >= 0 && *p <= 1) {
		return errors.Validation(fmt.Sprintf("top_p %v outside [0,1]", *p),
			errors.WithMetadata("field", "top_p"))
	}
	if m := opts.MaxTokens; m != nil && (*m < 1 || *m > providerMax) {
		return errors.Validation(fmt.Sprintf("max_tokens %d outside [1,%d]", *m, providerMax),
			errors.WithMetadata("field", "max_tokens"))
	}
	return nil
}

func usageOf(c *Completion) Usage {
	return Usage{
		PromptTokens:     c.InputTokens,
		CompletionTokens: c.OutputTokens,
		TotalTokens:      c.InputTokens + c.OutputTokens,
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
