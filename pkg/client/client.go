// Package client talks to the snapshot and restore endpoints on behalf of
// an editing session.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"plumenote-server/pkg/apperror"

	"go.uber.org/zap"
)

const beaconTimeout = 10 * time.Second

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger

	beacons sync.WaitGroup
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (c *Client) notePath(noteID string, parts ...string) string {
	return c.baseURL + "/api/v1/notes/" + url.PathEscape(noteID) + strings.Join(parts, "")
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return apperror.NewInternal("failed to encode request", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return apperror.NewInternal("failed to build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperror.NewTransientIO("request failed", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return statusError(resp.StatusCode, fmt.Sprintf("unexpected response (status %d)", resp.StatusCode))
	}
	if resp.StatusCode >= 400 || !env.Success {
		return statusError(resp.StatusCode, env.Error)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return apperror.NewInternal("failed to decode response", err)
		}
	}
	return nil
}

func statusError(status int, message string) error {
	switch {
	case status == http.StatusBadRequest:
		return apperror.NewValidation(message)
	case status == http.StatusNotFound:
		return apperror.NewNotFound(message)
	case status == http.StatusForbidden:
		return apperror.NewForbidden(message)
	case status == http.StatusTooManyRequests || status >= 500:
		return apperror.NewTransientIO(message, nil)
	default:
		return apperror.NewInternal(message, nil)
	}
}

func (c *Client) CreateSnapshot(ctx context.Context, noteID string) (*SnapshotResult, error) {
	var result SnapshotResult
	if err := c.do(ctx, http.MethodPost, c.notePath(noteID, "/snapshot"), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SendBeacon asks for a snapshot without waiting for or reading the
// response. Failures are logged only.
func (c *Client) SendBeacon(noteID string) {
	endpoint := c.notePath(noteID, "/snapshot/beacon") + "?token=" + url.QueryEscape(c.token)

	c.beacons.Add(1)
	go func() {
		defer c.beacons.Done()

		ctx, cancel := context.WithTimeout(context.Background(), beaconTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
		if err != nil {
			c.logger.Debug("beacon not sent", zap.String("noteID", noteID), zap.Error(err))
			return
		}

		resp, err := c.http.Do(req)
		if err != nil {
			c.logger.Debug("beacon not delivered", zap.String("noteID", noteID), zap.Error(err))
			return
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()
}

// WaitBeacons blocks until beacons already sent have finished.
func (c *Client) WaitBeacons() {
	c.beacons.Wait()
}

func (c *Client) Restore(ctx context.Context, noteID, versionID string) (*RestoreResult, error) {
	var result RestoreResult
	body := map[string]string{"versionId": versionID}
	if err := c.do(ctx, http.MethodPost, c.notePath(noteID, "/restore"), body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ListVersions(ctx context.Context, noteID string, limit int) ([]VersionSummary, error) {
	endpoint := c.notePath(noteID, "/versions")
	if limit > 0 {
		endpoint += "?limit=" + strconv.Itoa(limit)
	}

	var versions []VersionSummary
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &versions); err != nil {
		return nil, err
	}
	return versions, nil
}

func (c *Client) GetVersion(ctx context.Context, noteID, versionID string) (*Version, error) {
	var version Version
	if err := c.do(ctx, http.MethodGet, c.notePath(noteID, "/versions/", url.PathEscape(versionID)), nil, &version); err != nil {
		return nil, err
	}
	return &version, nil
}
