package specialist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	contractx "github.com/tanpawarit/a2a-host-orchestrator/agent/contract"
)

const maxReplyBytes = 4 << 20

const (
	replyStatusSuccess = "success"
	replyStatusError   = "error"
)

type invokeRequest struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

type invokeReply struct {
	Status      string          `json:"status"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	ErrorDetail string          `json:"error_detail,omitempty"`
}

// HTTPClient invokes specialist agents over HTTP. Each Invoke is exactly one
// attempt; retry policy belongs to the caller.
type HTTPClient struct {
	httpClient *http.Client
	now        func() time.Time
}

var _ contractx.AgentClient = (*HTTPClient)(nil)

type ClientOption func(*HTTPClient)

func WithClientHTTP(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewHTTPClient(opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		httpClient: &http.Client{},
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *HTTPClient) Invoke(ctx context.Context, endpoint contractx.AgentEndpoint, args map[string]any, timeout time.Duration) contractx.ToolCallResult {
	start := c.now()
	if args == nil {
		args = map[string]any{}
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	outcome := c.call(ctx, endpoint, args)
	return contractx.ToolCallResult{
		Name:      endpoint.Name,
		Arguments: args,
		Outcome:   outcome,
		Latency:   c.now().Sub(start),
		Attempts:  1,
	}
}

func (c *HTTPClient) call(ctx context.Context, endpoint contractx.AgentEndpoint, args map[string]any) contractx.Outcome {
	body, err := json.Marshal(invokeRequest{ToolName: endpoint.Name, Arguments: args})
	if err != nil {
		return contractx.Failure(contractx.OutcomeInvalidResponse, fmt.Sprintf("encode arguments: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.Address, bytes.NewReader(body))
	if err != nil {
		return contractx.Failure(contractx.OutcomeUnreachable, fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return classifyTransportError(ctx, err)
	}

	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return contractx.Failure(contractx.OutcomeUnreachable, fmt.Sprintf("http status=%d", resp.StatusCode))
	}

	var reply invokeReply
	decodeErr := json.Unmarshal(raw, &reply)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		if decodeErr == nil && reply.Status == replyStatusError && reply.ErrorDetail != "" {
			return contractx.Failure(contractx.OutcomeRemoteError, reply.ErrorDetail)
		}
		return contractx.Failure(contractx.OutcomeRemoteError, fmt.Sprintf("http status=%d body=%s", resp.StatusCode, truncate(string(raw), 256)))
	}
	if decodeErr != nil {
		return contractx.Failure(contractx.OutcomeInvalidResponse, fmt.Sprintf("decode reply: %v", decodeErr))
	}

	switch reply.Status {
	case replyStatusSuccess:
		payload := bytes.TrimSpace(reply.Payload)
		if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
			return contractx.Failure(contractx.OutcomeInvalidResponse, "success reply without payload")
		}
		var decoded any
		if err := json.Unmarshal(payload, &decoded); err != nil {
			return contractx.Failure(contractx.OutcomeInvalidResponse, fmt.Sprintf("decode payload: %v", err))
		}
		return contractx.Success(decoded)
	case replyStatusError:
		detail := strings.TrimSpace(reply.ErrorDetail)
		if detail == "" {
			detail = "agent reported an error without detail"
		}
		return contractx.Failure(contractx.OutcomeRemoteError, detail)
	default:
		return contractx.Failure(contractx.OutcomeInvalidResponse, fmt.Sprintf("unknown reply status=%q", reply.Status))
	}
}

func classifyTransportError(ctx context.Context, err error) contractx.Outcome {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return contractx.Failure(contractx.OutcomeTimeout, "deadline exceeded")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return contractx.Failure(contractx.OutcomeTimeout, netErr.Error())
	}
	return contractx.Failure(contractx.OutcomeUnreachable, err.Error())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
