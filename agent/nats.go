package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/codeloom/codeloom/plan"
)

func init() {
	Register("nats", func(cfg Config) (Provider, error) {
		return NewNATSProvider(cfg)
	})
}

const defaultRequestTimeout = 5 * time.Minute

// NATSProvider reaches the collaborator agents over NATS request/reply. Each
// role listens on its own subject under the configured prefix; requests and
// replies are JSON.
type NATSProvider struct {
	conn    *nats.Conn
	prefix  string
	timeout time.Duration
}

// NewNATSProvider connects to the NATS server in cfg.URL.
func NewNATSProvider(cfg Config) (*NATSProvider, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "codeloom.agents"
	}
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = defaultRequestTimeout
	}

	conn, err := nats.Connect(url,
		nats.Name("codeloom"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS %s: %w", url, err)
	}

	return &NATSProvider{conn: conn, prefix: prefix, timeout: timeout}, nil
}

// Name identifies the provider implementation.
func (p *NATSProvider) Name() string { return "nats" }

// Close drains the connection.
func (p *NATSProvider) Close() error {
	return p.conn.Drain()
}

// reply is the wire envelope every agent responds with.
type reply struct {
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// request performs one JSON request/reply exchange and decodes the result
// into out.
func (p *NATSProvider) request(ctx context.Context, role string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", role, err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	subject := p.prefix + "." + role
	msg, err := p.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return fmt.Errorf("no %s agent listening on %s: %w", role, subject, err)
		}
		return fmt.Errorf("%s request on %s: %w", role, subject, err)
	}

	var env reply
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		return fmt.Errorf("decode %s reply: %w", role, err)
	}
	if env.Error != "" {
		return fmt.Errorf("%s agent: %s", role, env.Error)
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", role, err)
	}
	return nil
}

// Build implements Builder.
func (p *NATSProvider) Build(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	var result BuildResult
	if err := p.request(ctx, "build", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Validate implements Validator. A reply with an unknown verdict is rejected
// rather than guessed at.
func (p *NATSProvider) Validate(ctx context.Context, req ValidateRequest) (*ValidateResult, error) {
	var result ValidateResult
	if err := p.request(ctx, "validate", req, &result); err != nil {
		return nil, err
	}
	if !result.Verdict.IsValid() {
		return nil, fmt.Errorf("validator returned unknown verdict %q", result.Verdict)
	}
	return &result, nil
}

// Scan implements Scanner.
func (p *NATSProvider) Scan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	var result ScanResult
	if err := p.request(ctx, "scan", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Plan implements Planner. The returned plan is validated before use.
func (p *NATSProvider) Plan(ctx context.Context, req PlanRequest) (*plan.Plan, error) {
	var result plan.Plan
	if err := p.request(ctx, "plan", req, &result); err != nil {
		return nil, err
	}
	plan.Normalize(&result)
	if err := plan.Validate(&result); err != nil {
		return nil, fmt.Errorf("planner returned invalid plan: %w", err)
	}
	return &result, nil
}
