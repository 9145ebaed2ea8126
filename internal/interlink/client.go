package interlink

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	logx "interbot/pkg/logx"
)

const (
	defaultBaseURL = "https://prod.interlinklabs.ai/api/v1"
	defaultTimeout = 20 * time.Second
	userAgent      = "okhttp/4.12.0"

	pathCurrentUser    = "/auth/current-user"
	pathGetToken       = "/token/get-token"
	pathCheckClaimable = "/token/check-is-claimable"
	pathClaimAirdrop   = "/token/claim-airdrop"
)

type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client is a stateless HTTP client for the rewards API. It performs no
// retries; backoff policy belongs to the caller. SubmitClaim is not assumed
// idempotent by the remote service, so callers must not blindly re-send it.
type Client struct {
	httpc   *http.Client
	baseURL string
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		httpc:   &http.Client{Timeout: timeout},
		baseURL: base,
		log:     log,
	}
}

// envelope is the common response wrapper on all four endpoints.
type envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// GetProfile fetches the authenticated account profile.
func (c *Client) GetProfile(ctx context.Context, credential string) (*Profile, Outcome) {
	env, out := c.call(ctx, http.MethodGet, pathCurrentUser, credential)
	if !out.OK() {
		return nil, out
	}
	var p Profile
	if !hasData(env.Data) || json.Unmarshal(env.Data, &p) != nil {
		return nil, Outcome{Kind: KindUnknownResponse, Message: firstNonEmpty(env.Message, "profile payload missing"), Status: out.Status}
	}
	return &p, out
}

// GetTokenBalances fetches the current per-tier balances.
func (c *Client) GetTokenBalances(ctx context.Context, credential string) (*Balances, Outcome) {
	env, out := c.call(ctx, http.MethodGet, pathGetToken, credential)
	if !out.OK() {
		return nil, out
	}
	var b Balances
	if !hasData(env.Data) || json.Unmarshal(env.Data, &b) != nil {
		return nil, Outcome{Kind: KindUnknownResponse, Message: firstNonEmpty(env.Message, "balance payload missing"), Status: out.Status}
	}
	return &b, out
}

// CheckClaimable asks whether a claim is available right now.
func (c *Client) CheckClaimable(ctx context.Context, credential string) (*Eligibility, Outcome) {
	env, out := c.call(ctx, http.MethodGet, pathCheckClaimable, credential)
	if !out.OK() {
		return nil, out
	}
	var e Eligibility
	if !hasData(env.Data) || json.Unmarshal(env.Data, &e) != nil {
		return nil, Outcome{Kind: KindUnknownResponse, Message: firstNonEmpty(env.Message, "eligibility payload missing"), Status: out.Status}
	}
	return &e, out
}

// SubmitClaim triggers the airdrop claim (empty POST body). A 2xx response with
// an empty or non-boolean data field is reported as a completed call with
// Done=false rather than an error, matching the server's loose contract.
func (c *Client) SubmitClaim(ctx context.Context, credential string) (*ClaimResult, Outcome) {
	env, out := c.call(ctx, http.MethodPost, pathClaimAirdrop, credential)
	if !out.OK() {
		return nil, out
	}
	var done bool
	if !hasData(env.Data) || json.Unmarshal(env.Data, &done) != nil {
		// Empty success body, or data is not the expected boolean.
		return &ClaimResult{Done: false}, Outcome{
			Kind:    KindOK,
			Message: firstNonEmpty(env.Message, "claim finished with an empty server response"),
			Status:  out.Status,
		}
	}
	return &ClaimResult{Done: done}, out
}

// call runs one request and normalizes its result:
//   - transport failure (timeout, connection): Transient, status 0
//   - non-2xx with decodable JSON body: classified by status, server message kept
//   - non-2xx with undecodable body: classified by status, raw text as message
//   - 2xx with empty body: synthetic empty-success envelope
//   - 2xx with undecodable body: Transient
func (c *Client) call(ctx context.Context, method, path, credential string) (*envelope, Outcome) {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, Outcome{Kind: KindTransient, Message: err.Error()}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("authorization", "Bearer "+credential)

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.log.Debug("request failed", logx.String("path", path), logx.Err(err))
		return nil, Outcome{Kind: KindTransient, Message: "request to the rewards API failed: " + err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, Outcome{Kind: KindTransient, Message: "reading response failed: " + err.Error(), Status: resp.StatusCode}
	}

	ok2xx := resp.StatusCode >= 200 && resp.StatusCode < 300

	if len(strings.TrimSpace(string(body))) == 0 {
		if ok2xx {
			c.log.Debug("empty success body", logx.String("path", path), logx.Int("status", resp.StatusCode))
			return &envelope{Message: "empty response from server"}, Outcome{Kind: KindOK, Message: "empty response from server", Status: resp.StatusCode}
		}
		return nil, Outcome{
			Kind:    classifyStatus(resp.StatusCode, ""),
			Message: http.StatusText(resp.StatusCode),
			Status:  resp.StatusCode,
		}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if ok2xx {
			return nil, Outcome{Kind: KindTransient, Message: "response is not valid JSON", Status: resp.StatusCode}
		}
		// Keep the raw text so the caller can surface the server's complaint.
		return nil, Outcome{
			Kind:    classifyStatus(resp.StatusCode, ""),
			Message: truncate(string(body), 200),
			Status:  resp.StatusCode,
		}
	}

	if !ok2xx {
		return nil, Outcome{
			Kind:    classifyStatus(resp.StatusCode, env.Message),
			Message: firstNonEmpty(env.Message, http.StatusText(resp.StatusCode)),
			Status:  resp.StatusCode,
		}
	}
	return &env, Outcome{Kind: KindOK, Message: env.Message, Status: resp.StatusCode}
}

func hasData(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s != "" && s != "null"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
