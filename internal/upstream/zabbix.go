package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/miradorstack/alert-beacon/internal/config"
	"github.com/miradorstack/alert-beacon/internal/models"
	"github.com/miradorstack/alert-beacon/internal/utils"
)

type zabbixRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  problemGetArgs `json:"params"`
	Auth    string         `json:"auth,omitempty"`
	ID      int            `json:"id"`
}

type problemGetArgs struct {
	Severities   []int  `json:"severities,omitempty"`
	Acknowledged *bool  `json:"acknowledged,omitempty"`
	TimeFrom     int64  `json:"time_from,omitempty"`
	Recent       bool   `json:"recent,omitempty"`
	SortField    string `json:"sortfield"`
	SortOrder    string `json:"sortorder"`
}

type zabbixResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *ZabbixError    `json:"error"`
}

// ZabbixError is the JSON-RPC error object returned by the Zabbix API.
type ZabbixError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

func (e *ZabbixError) Error() string {
	return fmt.Sprintf("zabbix api error %d: %s: %s", e.Code, e.Message, e.Data)
}

// ErrResultNotArray reports a problem.get reply whose result is not a list.
var ErrResultNotArray = errors.New("unexpected zabbix response structure: result is not an array")

// ZabbixClient polls problem.get over JSON-RPC.
type ZabbixClient struct {
	id           string
	endpoint     string
	token        string
	mode         string
	severities   []int
	acknowledged *bool
	lookback     int
	recent       bool
	timeout      time.Duration
	httpClient   *http.Client
	now          func() time.Time
}

// NewZabbixClient constructs a client for the configured Zabbix API endpoint.
func NewZabbixClient(cfg config.BackendConfig) *ZabbixClient {
	return &ZabbixClient{
		id:           cfg.ID,
		endpoint:     cfg.BaseURL,
		token:        cfg.Token,
		mode:         cfg.Mode,
		severities:   append([]int(nil), cfg.Severities...),
		acknowledged: cfg.Acknowledged,
		lookback:     cfg.LookbackSeconds,
		recent:       cfg.Recent,
		timeout:      cfg.Timeout,
		httpClient:   newHTTPClient(cfg.Timeout),
		now:          time.Now,
	}
}

// ID returns the configured backend identifier.
func (c *ZabbixClient) ID() string { return c.id }

// Kind reports KindZabbix.
func (c *ZabbixClient) Kind() models.BackendKind { return models.KindZabbix }

// Poll issues one problem.get call. A non-empty result array means the backend is alerting.
func (c *ZabbixClient) Poll(ctx context.Context) models.PollResult {
	start := time.Now()
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	problems, failure, err := c.fetchProblems(ctx)
	if err != nil {
		return finish(models.Unreachable(c.id, c.Kind(), failure, err), start)
	}
	if len(problems) > 0 {
		return finish(models.Alerting(c.id, c.Kind(), len(problems)), start)
	}
	return finish(models.Healthy(c.id, c.Kind()), start)
}

func (c *ZabbixClient) buildRequest() zabbixRequest {
	body := zabbixRequest{
		JSONRPC: "2.0",
		Method:  "problem.get",
		Params: problemGetArgs{
			Severities:   c.severities,
			Acknowledged: c.acknowledged,
			TimeFrom:     utils.LookbackStart(c.now(), c.lookback),
			Recent:       c.recent,
			SortField:    "eventid",
			SortOrder:    "DESC",
		},
		ID: 1,
	}
	// Zabbix 6.0 and older only accept the token in the body.
	if c.mode == config.ZabbixModeOld {
		body.Auth = c.token
	}
	return body
}

func (c *ZabbixClient) fetchProblems(ctx context.Context) ([]json.RawMessage, models.Failure, error) {
	const op = "zabbix.poll"
	if c.endpoint == "" {
		return nil, models.FailureTransport, utils.NewAppError(op, "url not configured", nil)
	}

	payload, err := json.Marshal(c.buildRequest())
	if err != nil {
		return nil, models.FailureTransport, utils.NewAppError(op, "marshal payload", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, models.FailureTransport, utils.NewAppError(op, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json-rpc")
	if c.mode != config.ZabbixModeOld {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, models.FailureTransport, utils.NewAppError(op, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, models.FailureTransport, utils.NewAppError(op, fmt.Sprintf("zabbix returned %s", resp.Status), nil)
	}

	var rpc zabbixResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpc); err != nil {
		return nil, models.FailureSource, utils.NewAppError(op, "decode response", err)
	}
	if rpc.Error != nil {
		return nil, models.FailureSource, utils.NewAppError(op, "problem.get rejected", rpc.Error)
	}

	trimmed := bytes.TrimSpace(rpc.Result)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, models.FailureSource, utils.NewAppError(op, "problem.get", ErrResultNotArray)
	}
	var problems []json.RawMessage
	if err := json.Unmarshal(trimmed, &problems); err != nil {
		return nil, models.FailureSource, utils.NewAppError(op, "problem.get", ErrResultNotArray)
	}
	return problems, models.FailureNone, nil
}
