// Package graph implements remote.Client for drives served by the
// Microsoft Graph API.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"driverecover/internal/errors"
	"driverecover/internal/metrics"
	"driverecover/internal/remote"
)

// DefaultBaseURL is the Graph v1.0 endpoint.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

const (
	backendName = "graph"
	// maxBodySize limits how much of a response is read.
	maxBodySize = 32 << 20
)

// Config configures a Client.
type Config struct {
	BaseURL string
	// DriveID selects a drive; empty means the signed-in user's drive.
	DriveID string
	// RequestsPerSecond paces outgoing requests; zero disables pacing.
	RequestsPerSecond float64

	TokenSource oauth2.TokenSource
	// HTTPClient is used as is when set and TokenSource is nil.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to one drive.
type Client struct {
	baseURL string
	prefix  string
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

var _ remote.Client = &Client{}

// New returns a Client for cfg.
func New(ctx context.Context, cfg Config) (*Client, error) {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}

	httpClient := cfg.HTTPClient
	if cfg.TokenSource != nil {
		httpClient = oauth2.NewClient(ctx, cfg.TokenSource)
	}
	if httpClient == nil {
		return nil, errors.New("graph: no token source configured")
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		baseURL: base,
		prefix:  drivePrefix(cfg.DriveID),
		http:    httpClient,
		limiter: limiter,
		log:     log.With(zap.String("backend", backendName)),
	}, nil
}

// Resolver returns the path resolver matching the client's drive.
func (c *Client) Resolver() PathResolver {
	return PathResolver{driveRoot: strings.TrimPrefix(c.prefix, "/") + "/root"}
}

func (c *Client) itemURL(id string, suffix string, q url.Values) string {
	var u string
	if strings.HasPrefix(id, "/") {
		u = c.baseURL + id + suffix
	} else {
		u = c.baseURL + c.prefix + "/items/" + url.PathEscape(id) + suffix
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// GetItem fetches an item by id or by an address from the PathResolver.
func (c *Client) GetItem(ctx context.Context, idOrAddress string, q remote.Query) (*remote.Item, error) {
	q = remote.Query{Select: remote.DefaultSelect, SelectChildren: remote.DefaultChildrenSelect}.Merge(q)

	var d driveItem
	if err := c.do(ctx, "get_item", http.MethodGet, c.itemURL(idOrAddress, "", queryValues(q)), nil, &d); err != nil {
		return nil, err
	}
	return d.toItem(), nil
}

// GetChildren lists one page of children. A page token is the next link
// returned by the previous page.
func (c *Client) GetChildren(ctx context.Context, id string, q remote.Query) (*remote.Listing, error) {
	u := q.PageToken
	if u == "" {
		q = remote.Query{Select: remote.DefaultSelect}.Merge(q)
		u = c.itemURL(id, "/children", queryValues(q))
	}

	var page childrenPage
	if err := c.do(ctx, "get_children", http.MethodGet, u, nil, &page); err != nil {
		return nil, err
	}

	listing := &remote.Listing{
		Items:         make([]*remote.Item, 0, len(page.Value)),
		TotalCount:    page.Count,
		NextPageToken: page.NextLink,
	}
	for i := range page.Value {
		listing.Items = append(listing.Items, page.Value[i].toItem())
	}
	return listing, nil
}

// RestoreItem restores a deleted item, optionally below another folder.
func (c *Client) RestoreItem(ctx context.Context, id, targetParentID string) error {
	body := restoreBody{}
	if targetParentID != "" {
		body.ParentReference = &parentReference{ID: targetParentID}
	}
	return c.do(ctx, "restore", http.MethodPost, c.itemURL(id, "/restore", nil), body, nil)
}

// ItemExists reports whether id can be fetched without asking for deleted
// items.
func (c *Client) ItemExists(ctx context.Context, id string) (bool, error) {
	var d driveItem
	err := c.do(ctx, "exists", http.MethodGet, c.itemURL(id, "", url.Values{"$select": {"id"}}), nil, &d)
	if remote.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) do(ctx context.Context, op, method, u string, in, out any) error {
	start := time.Now()
	status, err := c.roundTrip(ctx, method, u, in, out)
	elapsed := time.Since(start)

	metrics.RecordRemoteCall(backendName, op, err, elapsed)
	c.log.Debug("request",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("url", u),
		zap.Int("status", status),
		zap.Duration("duration", elapsed),
		zap.Error(err))
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, u string, in, out any) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return 0, remote.FromTransport(ctx, ctx.Err())
		}
		return 0, &remote.Error{Code: remote.CodeTimeout, Message: err.Error()}
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return 0, errors.Wrap(err, "encode request")
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return 0, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, remote.FromTransport(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return resp.StatusCode, remote.FromTransport(ctx, err)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		return resp.StatusCode, decodeError(resp.StatusCode, data)
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, &remote.Error{
				Code:       remote.CodeGeneralException,
				Message:    "invalid response: " + err.Error(),
				StatusCode: resp.StatusCode,
			}
		}
	}
	return resp.StatusCode, nil
}

// decodeError turns an error response into a *remote.Error. Throttling and
// availability statuses always map to a transient code.
func decodeError(status int, data []byte) *remote.Error {
	rerr := &remote.Error{StatusCode: status}

	var body errorBody
	if json.Unmarshal(data, &body) == nil && body.Error.Code != "" {
		rerr.Code = body.Error.Code
		rerr.Message = body.Error.Message
		rerr.Raw = json.RawMessage(data)
	} else {
		rerr.Code = remote.CodeForStatus(status)
		rerr.Message = strings.TrimSpace(string(data))
		if rerr.Message == "" {
			rerr.Message = http.StatusText(status)
		}
	}

	switch status {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		if !remote.IsTransient(rerr) {
			rerr.Code = remote.CodeForStatus(status)
		}
	}
	return rerr
}
