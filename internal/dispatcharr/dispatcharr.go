// Package dispatcharr implements the downstream channel-manager client
// (named "Dispatcharr" throughout original_source/teamarr/dispatcharr).
// Grounded on original_source/teamarr/dispatcharr/client.py (JWT bearer
// auth, automatic re-authentication on 401, paginated_get's
// "/api/channels/channels/?page_size=1000" endpoint shape) and
// original_source/teamarr/api/routes/dispatcharr.py (the
// m3u/channels/epg endpoint groupings a higher-level caller drives this
// client with). Retry/backoff is internal/httpclient's DoWithRetry
// rather than the Python client's hand-rolled exponential-backoff loop
// — same reasoning as the SportsProvider adapters: the pack already
// solves this once, generically.
//
// Every public method returns an OperationResult so a failure never
// surfaces as a Go error the core has to interpret (spec.md §6); the
// three narrow interfaces the engine actually depends on
// (reconcile.Downstream, orchestrator.StreamSource,
// engine.M3URefresher) are thin wrappers around these.
package dispatcharr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/nreeb/teamarr/internal/domain"
	"github.com/nreeb/teamarr/internal/httpclient"
	"github.com/nreeb/teamarr/internal/streamfilter"
)

// OperationResult wraps every Dispatcharr call so failures are values,
// never Go errors the caller has to recover from mid-pipeline.
type OperationResult struct {
	Success bool
	Data    any
	Err     error
}

func failure(err error) OperationResult { return OperationResult{Success: false, Err: err} }
func success(data any) OperationResult  { return OperationResult{Success: true, Data: data} }

// Client is a JWT-authenticated HTTP client for one Dispatcharr
// instance. Token refresh is transparent: a 401 clears the cached
// token and the request is retried once with a freshly obtained one,
// mirroring client.py's retry_on_401 behavior.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client

	mu    sync.Mutex
	token string
}

func New(baseURL, username, password string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		http:     httpclient.Default(),
	}
}

// tokenResponse mirrors the JWT pair a Django SimpleJWT-style token
// endpoint returns; only access is needed here since every request is
// short-lived and re-authenticates on 401 rather than refreshing.
type tokenResponse struct {
	Access string `json:"access"`
}

func (c *Client) authenticate(ctx context.Context) (string, error) {
	body, _ := json.Marshal(map[string]string{"username": c.username, "password": c.password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/accounts/token/", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpclient.DoWithRetry(ctx, c.http, req, httpclient.DefaultRetryPolicy)
	if err != nil {
		return "", fmt.Errorf("dispatcharr auth: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("dispatcharr auth: HTTP %d: %s", resp.StatusCode, body)
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("dispatcharr auth: decode: %w", err)
	}
	if tr.Access == "" {
		return "", fmt.Errorf("dispatcharr auth: empty access token")
	}
	return tr.Access, nil
}

func (c *Client) getToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, nil
	}
	tok, err := c.authenticate(ctx)
	if err != nil {
		return "", err
	}
	c.token = tok
	return tok, nil
}

func (c *Client) clearToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// request performs one authenticated call, re-authenticating once on a
// 401 before giving up.
func (c *Client) request(ctx context.Context, method, endpoint string, body any) (*http.Response, error) {
	return c.requestRetrying(ctx, method, endpoint, body, true)
}

func (c *Client) requestRetrying(ctx context.Context, method, endpoint string, body any, retryOn401 bool) (*http.Response, error) {
	token, err := c.getToken(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpclient.DoWithRetry(ctx, c.http, req, httpclient.DefaultRetryPolicy)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized && retryOn401 {
		resp.Body.Close()
		c.clearToken()
		return c.requestRetrying(ctx, method, endpoint, body, false)
	}
	return resp, nil
}

func decodeJSON(resp *http.Response, into any) error {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)
	}
	if into == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(into)
}

// paginatedGet walks a DRF-style {results, next} page chain, or falls
// back to a bare JSON array, mirroring client.py's paginated_get.
func (c *Client) paginatedGet(ctx context.Context, endpoint string) ([]map[string]any, error) {
	var out []map[string]any
	next := endpoint
	for next != "" {
		resp, err := c.request(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, err
		}
		var raw json.RawMessage
		if err := decodeJSON(resp, &raw); err != nil {
			return nil, err
		}

		var page struct {
			Results []map[string]any `json:"results"`
			Next    string           `json:"next"`
		}
		if err := json.Unmarshal(raw, &page); err == nil && (page.Results != nil || page.Next != "") {
			out = append(out, page.Results...)
			next = relativeNext(page.Next)
			continue
		}

		var list []map[string]any
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("unexpected response shape for %s: %w", endpoint, err)
		}
		out = append(out, list...)
		next = ""
	}
	return out, nil
}

func relativeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "http") {
		return next
	}
	u, err := url.Parse(next)
	if err != nil {
		return ""
	}
	if u.RawQuery != "" {
		return u.Path + "?" + u.RawQuery
	}
	return u.Path
}

// ── channel-manager capability (spec.md §6) ───────────────────────────────

// ListChannels returns every Dispatcharr channel, minimally parsed.
func (c *Client) ListChannels(ctx context.Context) OperationResult {
	rows, err := c.paginatedGet(ctx, "/api/channels/channels/?page_size=1000")
	if err != nil {
		return failure(fmt.Errorf("list channels: %w", err))
	}
	return success(rows)
}

// CreateChannel creates one channel and returns its assigned id via Data.
func (c *Client) CreateChannel(ctx context.Context, name string, number int, streamIDs []int64, tvgID string, groupID int64, profileIDs []int64) OperationResult {
	payload := map[string]any{
		"name":                 name,
		"channel_number":       number,
		"stream_ids":           streamIDs,
		"tvg_id":               tvgID,
		"channel_group_id":     groupID,
		"channel_profile_ids":  profileIDs,
	}
	resp, err := c.request(ctx, http.MethodPost, "/api/channels/channels/", payload)
	if err != nil {
		return failure(fmt.Errorf("create channel %q: %w", name, err))
	}
	var created struct {
		ID int64 `json:"id"`
	}
	if err := decodeJSON(resp, &created); err != nil {
		return failure(fmt.Errorf("create channel %q: %w", name, err))
	}
	return success(map[string]any{"id": created.ID})
}

// UpdateChannel PATCHes the given fields onto an existing channel.
func (c *Client) UpdateChannel(ctx context.Context, id int64, fields map[string]any) OperationResult {
	resp, err := c.request(ctx, http.MethodPatch, fmt.Sprintf("/api/channels/channels/%d/", id), fields)
	if err != nil {
		return failure(fmt.Errorf("update channel %d: %w", id, err))
	}
	if err := decodeJSON(resp, nil); err != nil {
		return failure(fmt.Errorf("update channel %d: %w", id, err))
	}
	return success(nil)
}

// DeleteChannel removes a channel from Dispatcharr.
func (c *Client) DeleteChannel(ctx context.Context, id int64) OperationResult {
	resp, err := c.request(ctx, http.MethodDelete, fmt.Sprintf("/api/channels/channels/%d/", id), nil)
	if err != nil {
		return failure(fmt.Errorf("delete channel %d: %w", id, err))
	}
	if err := decodeJSON(resp, nil); err != nil {
		return failure(fmt.Errorf("delete channel %d: %w", id, err))
	}
	return success(nil)
}

// ListStreams lists streams in one M3U group/account, per the
// /api/channels/streams/ endpoint referenced by
// api/routes/dispatcharr.py's list_group_streams.
func (c *Client) ListStreams(ctx context.Context, groupID, accountID int64) OperationResult {
	endpoint := fmt.Sprintf("/api/channels/streams/?group_id=%d&account_id=%d&page_size=1000", groupID, accountID)
	rows, err := c.paginatedGet(ctx, endpoint)
	if err != nil {
		return failure(fmt.Errorf("list streams group=%d account=%d: %w", groupID, accountID, err))
	}
	return success(rows)
}

// ListM3UAccounts lists configured M3U accounts.
func (c *Client) ListM3UAccounts(ctx context.Context) OperationResult {
	rows, err := c.paginatedGet(ctx, "/api/m3u/accounts/?page_size=1000")
	if err != nil {
		return failure(fmt.Errorf("list m3u accounts: %w", err))
	}
	return success(rows)
}

// RefreshM3UAccount triggers a re-scan of one M3U account's playlist.
func (c *Client) RefreshM3UAccount(ctx context.Context, id int64) OperationResult {
	resp, err := c.request(ctx, http.MethodPost, fmt.Sprintf("/api/m3u/accounts/%d/refresh/", id), nil)
	if err != nil {
		return failure(fmt.Errorf("refresh m3u account %d: %w", id, err))
	}
	if err := decodeJSON(resp, nil); err != nil {
		return failure(fmt.Errorf("refresh m3u account %d: %w", id, err))
	}
	return success(nil)
}

// TriggerEPGRefresh asks Dispatcharr to re-pull one EPG source.
func (c *Client) TriggerEPGRefresh(ctx context.Context, sourceID int64) OperationResult {
	resp, err := c.request(ctx, http.MethodPost, fmt.Sprintf("/api/epg/sources/%d/refresh/", sourceID), nil)
	if err != nil {
		return failure(fmt.Errorf("refresh epg source %d: %w", sourceID, err))
	}
	if err := decodeJSON(resp, nil); err != nil {
		return failure(fmt.Errorf("refresh epg source %d: %w", sourceID, err))
	}
	return success(nil)
}

// TestConnection mirrors client.py's test_connection diagnostic,
// hitting the EPG sources endpoint as a lightweight connectivity check.
func (c *Client) TestConnection(ctx context.Context) OperationResult {
	resp, err := c.request(ctx, http.MethodGet, "/api/epg/sources/", nil)
	if err != nil {
		return failure(fmt.Errorf("connection test: %w", err))
	}
	var sources []map[string]any
	if err := decodeJSON(resp, &sources); err != nil {
		return failure(fmt.Errorf("connection test: %w", err))
	}
	return success(map[string]any{"sources_found": len(sources)})
}

// ── narrow engine-facing interfaces ────────────────────────────────────────

// ListChannelIDs implements reconcile.Downstream: every Dispatcharr
// channel id mapped to its tvg_id, for the three-way diff.
func (c *Client) ListChannelIDs(ctx context.Context) (map[int64]string, error) {
	res := c.ListChannels(ctx)
	if !res.Success {
		return nil, res.Err
	}
	rows, _ := res.Data.([]map[string]any)
	out := make(map[int64]string, len(rows))
	for _, row := range rows {
		id, ok := numericField(row["id"])
		if !ok {
			continue
		}
		tvgID, _ := row["tvg_id"].(string)
		out[id] = tvgID
	}
	return out, nil
}

// ListRawStreams implements orchestrator.StreamSource: the current
// stream list for one event_epg_group's upstream M3U group.
func (c *Client) ListRawStreams(ctx context.Context, group domain.EventEPGGroup) ([]streamfilter.RawStream, error) {
	groupID, err := strconv.ParseInt(group.M3UGroupID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("group %d: non-numeric m3u_group_id %q", group.ID, group.M3UGroupID)
	}
	res := c.ListStreams(ctx, groupID, group.M3UAccountID)
	if !res.Success {
		return nil, res.Err
	}
	rows, _ := res.Data.([]map[string]any)
	out := make([]streamfilter.RawStream, 0, len(rows))
	for _, row := range rows {
		id, ok := numericField(row["id"])
		if !ok {
			continue
		}
		name, _ := row["name"].(string)
		accountName, _ := row["m3u_account_name"].(string)
		groupName, _ := row["group_name"].(string)
		out = append(out, streamfilter.RawStream{
			ID:             id,
			Name:           name,
			M3UAccountName: accountName,
			GroupName:      groupName,
		})
	}
	return out, nil
}

// RefreshM3UAccounts implements engine.M3URefresher: refresh every
// configured M3U account before a matching tick runs, so C9's filter
// sees the current upstream playlist. A per-account failure is logged
// and skipped rather than aborting the rest.
func (c *Client) RefreshM3UAccounts(ctx context.Context) error {
	res := c.ListM3UAccounts(ctx)
	if !res.Success {
		return res.Err
	}
	rows, _ := res.Data.([]map[string]any)
	for _, row := range rows {
		id, ok := numericField(row["id"])
		if !ok {
			continue
		}
		if r := c.RefreshM3UAccount(ctx, id); !r.Success {
			name, _ := row["name"].(string)
			log.Printf("[DISPATCHARR] refresh m3u account %d (%s): %v", id, name, r.Err)
		}
	}
	return nil
}

func numericField(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case int64:
		return n, true
	default:
		return 0, false
	}
}
