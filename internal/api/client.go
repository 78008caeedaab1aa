package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"starterlock/internal/constants"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// StatusError is returned for any non-2xx answer.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API error: %d", e.Code)
	}
	return fmt.Sprintf("API error: %d: %s", e.Code, e.Message)
}

type Client struct {
	baseURL  string
	operator string
	token    string
	client   *fasthttp.Client
}

// NewClient talks to the admin API at baseURL. token is sent as a bearer
// token on every request.
func NewClient(baseURL, operator, token string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		operator: operator,
		token:    token,
		client: &fasthttp.Client{
			MaxConnsPerHost:     4,
			ReadTimeout:         constants.ClientTimeout,
			WriteTimeout:        constants.ClientTimeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
	}
}

func (c *Client) Health(ctx context.Context) (*Health, error) {
	return doRequest[Health](ctx, c, fasthttp.MethodGet, "/api/v1/health", nil)
}

func (c *Client) ListPlayers(ctx context.Context, limit, offset int) (*PlayerList, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	return doRequest[PlayerList](ctx, c, fasthttp.MethodGet, "/api/v1/players?"+q.Encode(), nil)
}

func (c *Client) GetPlayer(ctx context.Context, name string) (*Player, error) {
	return doRequest[Player](ctx, c, fasthttp.MethodGet, "/api/v1/players/"+url.PathEscape(name), nil)
}

func (c *Client) Lock(ctx context.Context, name, reason string) (*Player, error) {
	return doRequest[Player](ctx, c, fasthttp.MethodPost, "/api/v1/players/"+url.PathEscape(name)+"/lock", LockRequest{Reason: reason})
}

func (c *Client) Unlock(ctx context.Context, name string) (*Player, error) {
	return doRequest[Player](ctx, c, fasthttp.MethodPost, "/api/v1/players/"+url.PathEscape(name)+"/unlock", nil)
}

func (c *Client) LockAll(ctx context.Context, reason string) (*BulkResponse, error) {
	return doRequest[BulkResponse](ctx, c, fasthttp.MethodPost, "/api/v1/lockall", LockRequest{Reason: reason})
}

func (c *Client) UnlockAll(ctx context.Context) (*BulkResponse, error) {
	return doRequest[BulkResponse](ctx, c, fasthttp.MethodPost, "/api/v1/unlockall", nil)
}

func (c *Client) Flush(ctx context.Context) (*FlushResponse, error) {
	return doRequest[FlushResponse](ctx, c, fasthttp.MethodPost, "/api/v1/flush", nil)
}

func (c *Client) Reload(ctx context.Context) error {
	_, err := doRequest[struct{}](ctx, c, fasthttp.MethodPost, "/api/v1/reload", nil)
	return err
}

func doRequest[T any](ctx context.Context, client *Client, method, path string, body any) (*T, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(client.baseURL + path)
	req.Header.SetMethod(method)
	if client.token != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+client.token)
	}
	if client.operator != "" {
		req.Header.Set(OperatorHeader, client.operator)
	}
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(raw)
	}

	deadline, ok := ctx.Deadline()
	if ok {
		if err := client.client.DoDeadline(req, resp, deadline); err != nil {
			return nil, err
		}
	} else {
		if err := client.client.DoTimeout(req, resp, constants.ClientTimeout); err != nil {
			return nil, err
		}
	}

	if code := resp.StatusCode(); code < 200 || code >= 300 {
		var apiErr Error
		_ = json.Unmarshal(resp.Body(), &apiErr)
		return nil, &StatusError{Code: code, Message: apiErr.Error}
	}

	var result T
	if len(resp.Body()) == 0 {
		return &result, nil
	}
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}
