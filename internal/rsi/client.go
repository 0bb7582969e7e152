package rsi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/draxon/draxon-bots/internal/faults"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL  = "https://api.starcitizen-api.com"
	DefaultVersion  = "v1"
	DefaultMode     = "live"
	DefaultPageSize = 32

	// maintenanceMessage is the exact text the API emits during its daily outage.
	maintenanceMessage = "Can't process the request."
	userAgent          = "DraXon_AI_Bot/2.0"
	maxErrorBodyBytes  = 512
)

var (
	// ErrMaintenance reports the recurring maintenance window. It wraps faults.ErrRemoteUnavailable.
	ErrMaintenance = fmt.Errorf("rsi: api maintenance window: %w", faults.ErrRemoteUnavailable)
	// ErrUnavailable reports any other failed request. It wraps faults.ErrRemoteUnavailable.
	ErrUnavailable = fmt.Errorf("rsi: api request failed: %w", faults.ErrRemoteUnavailable)
	// ErrHandleNotFound reports a handle the API does not know.
	ErrHandleNotFound = fmt.Errorf("RSI handle %w", faults.ErrNotFound)
	// ErrMissingAPIKey reports a client constructed without credentials.
	ErrMissingAPIKey = errors.New("rsi: api key required")
)

// ClientConfig describes how to reach the RSI community API.
type ClientConfig struct {
	BaseURL    string
	APIKey     string
	Version    string
	Mode       string
	PageSize   int
	HTTPClient *http.Client
	Limiter    *rate.Limiter
	Logger     *zap.Logger
}

// Client fetches organisation rosters and citizen profiles.
type Client struct {
	baseURL    string
	apiKey     string
	version    string
	mode       string
	pageSize   int
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient validates cfg and applies defaults.
func NewClient(cfg ClientConfig) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	version := strings.TrimSpace(cfg.Version)
	if version == "" {
		version = DefaultVersion
	}
	mode := strings.TrimSpace(cfg.Mode)
	if mode == "" {
		mode = DefaultMode
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(500*time.Millisecond), 2)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		version:    version,
		mode:       mode,
		pageSize:   pageSize,
		httpClient: httpClient,
		limiter:    limiter,
		logger:     logger,
	}, nil
}

// NewHTTPClient returns an http.Client with conservative timeouts for the community API.
func NewHTTPClient() *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   30 * time.Second,
	}
}

// FetchAllMembers pages through the organisation roster until a page comes back
// empty or short. Any failed page fails the whole fetch.
func (c *Client) FetchAllMembers(ctx context.Context, orgSID string) ([]OrgMember, error) {
	orgSID = strings.TrimSpace(orgSID)
	if orgSID == "" {
		return nil, fmt.Errorf("%w: organization sid required", ErrUnavailable)
	}

	var members []OrgMember
	for page := 1; ; page++ {
		query := url.Values{"page": []string{strconv.Itoa(page)}}
		envelope, err := c.get(ctx, "organization_members/"+url.PathEscape(orgSID), query)
		if err != nil {
			c.logger.Warn("organization roster fetch failed",
				zap.String("org_sid", orgSID),
				zap.Int("page", page),
				zap.Error(err))
			return nil, err
		}
		if !envelope.Success {
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, envelope.Message)
		}
		if envelope.isNullData() {
			break
		}
		var batch []OrgMember
		if err := json.Unmarshal(envelope.Data, &batch); err != nil {
			return nil, fmt.Errorf("%w: decode roster page %d: %v", ErrUnavailable, page, err)
		}
		members = append(members, batch...)
		if len(batch) < c.pageSize {
			break
		}
	}

	c.logger.Debug("organization roster fetched",
		zap.String("org_sid", orgSID),
		zap.Int("members", len(members)))
	return members, nil
}

// LookupUser fetches the citizen profile, main organisation and affiliations for handle.
func (c *Client) LookupUser(ctx context.Context, handle string) (UserInfo, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return UserInfo{}, ErrHandleNotFound
	}
	envelope, err := c.get(ctx, "user/"+url.PathEscape(handle), nil)
	if err != nil {
		return UserInfo{}, err
	}
	if !bool(envelope.Success) || envelope.isNullData() {
		return UserInfo{}, fmt.Errorf("%w: %s", ErrHandleNotFound, handle)
	}
	var info UserInfo
	if err := json.Unmarshal(envelope.Data, &info); err != nil {
		return UserInfo{}, fmt.Errorf("%w: decode user %s: %v", ErrUnavailable, handle, err)
	}
	if strings.TrimSpace(info.Profile.Handle) == "" {
		return UserInfo{}, fmt.Errorf("%w: %s", ErrHandleNotFound, handle)
	}
	info.Raw = append(json.RawMessage(nil), envelope.Data...)
	return info, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	endpoint := fmt.Sprintf("%s/%s/%s/%s/%s", c.baseURL, url.PathEscape(c.apiKey), c.version, c.mode, path)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	return endpoint
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (apiEnvelope, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return apiEnvelope{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, query), http.NoBody)
	if err != nil {
		return apiEnvelope{}, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	request.Header.Set("User-Agent", userAgent)
	request.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return apiEnvelope{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBodyBytes))
		return apiEnvelope{}, fmt.Errorf("%w: status=%d body=%s", ErrUnavailable, response.StatusCode, strings.TrimSpace(string(body)))
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(response.Body).Decode(&envelope); err != nil {
		return apiEnvelope{}, fmt.Errorf("%w: decode envelope: %v", ErrUnavailable, err)
	}
	if envelope.isMaintenance() {
		return apiEnvelope{}, ErrMaintenance
	}
	return envelope, nil
}
