// Copyright (c) 2025-2026, the koro contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package remote implements the client for the remote authority: the full
// track catalog, activation key records, last-used notifications, and
// asset downloads. Every response is either a typed success or one of the
// classified failures in errors.go.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/koro-app/koro/internal/buildinfo"
)

const (
	catalogEndpoint = "/rest/v1/tracks"
	keysEndpoint    = "/rest/v1/activation_keys"

	downloadRetries = 3
)

// CatalogEntry is one track in the remote catalog. Ephemeral: never
// persisted as its own entity.
type CatalogEntry struct {
	ID       string   `json:"id"`
	Code     string   `json:"code"`
	Artist   string   `json:"artist"`
	Title    string   `json:"title"`
	AssetURL string   `json:"asset_url"`
	FileName *string  `json:"file_name"`
	Size     *FlexInt `json:"size"`
	Duration *FlexInt `json:"duration"`
	OwnerID  *string  `json:"owner_id"`
}

// KeyRecord is the remote authority's view of one activation key.
// Timestamps arrive as flexible textual date-times and are parsed later.
type KeyRecord struct {
	ID         string   `json:"id"`
	Key        string   `json:"key"`
	Kind       string   `json:"kind"`
	Status     string   `json:"status"`
	ExpiresAt  *string  `json:"expires_at"`
	StartsAt   *string  `json:"starts_at"`
	HourLimit  *float64 `json:"hour_limit"`
	OwnerID    *string  `json:"owner_id"`
	LastUsedAt *string  `json:"last_used_at"`
}

// KeyStatusActive is the only remote status under which a key grants
// activation.
const KeyStatusActive = "active"

// FlexInt tolerates numeric fields that the remote serves either as JSON
// numbers or as strings.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("flexint: %w", err)
		}
		*f = FlexInt(v)
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = FlexInt(v)
	return nil
}

// Int64 returns the value as *int64, nil-safe.
func (f *FlexInt) Int64() *int64 {
	if f == nil {
		return nil
	}
	v := int64(*f)
	return &v
}

// Client talks to the remote authority. A zero base URL or API key means
// not configured; every call then fails with ErrNotConfigured so callers
// fall back to local state immediately.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// IsConfigured checks if the client has credentials to reach the remote.
func (c *Client) IsConfigured() bool {
	return c.baseURL != "" && c.apiKey != ""
}

func (c *Client) authedRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", buildinfo.UserAgent)
	return req, nil
}

// FetchCatalog returns the full remote track catalog.
func (c *Client) FetchCatalog(ctx context.Context) ([]CatalogEntry, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	req, err := c.authedRequest(ctx, http.MethodGet, c.baseURL+catalogEndpoint+"?select=*", nil)
	if err != nil {
		return nil, errors.Wrap(ErrNetwork, err.Error())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch catalog")
		return nil, errors.Wrap(ErrNetwork, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(ErrNetwork, err.Error())
	}

	if resp.StatusCode != http.StatusOK {
		log.Error().
			Int("status", resp.StatusCode).
			Msg("Catalog fetch rejected")
		return nil, errors.Wrapf(ErrRejected, "status %d", resp.StatusCode)
	}

	var entries []CatalogEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		log.Error().Err(err).Msg("Failed to parse catalog response")
		return nil, errors.Wrap(ErrMalformedResponse, err.Error())
	}

	log.Debug().Int("count", len(entries)).Msg("Fetched remote catalog")

	return entries, nil
}

// FetchKeyRecord looks up one activation key. The machine fingerprint is
// forwarded so the authority can pin machine-bound keys. Returns
// ErrKeyNotFound when no record matches.
func (c *Client) FetchKeyRecord(ctx context.Context, key, fingerprint string) (*KeyRecord, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	url := fmt.Sprintf("%s%s?key=eq.%s&select=*", c.baseURL, keysEndpoint, key)
	req, err := c.authedRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(ErrNetwork, err.Error())
	}
	if fingerprint != "" {
		req.Header.Set("X-Machine-Fingerprint", fingerprint)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error().
			Err(err).
			Str("key", MaskKey(key)).
			Msg("Failed to fetch key record")
		return nil, errors.Wrap(ErrNetwork, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Error().
			Int("status", resp.StatusCode).
			Str("key", MaskKey(key)).
			Msg("Key lookup rejected")
		return nil, errors.Wrapf(ErrRejected, "status %d", resp.StatusCode)
	}

	var records []KeyRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, errors.Wrap(ErrMalformedResponse, err.Error())
	}

	if len(records) == 0 {
		return nil, ErrKeyNotFound
	}

	return &records[0], nil
}

// TouchLastUsed notifies the authority that a key was just used.
// Fire-and-forget: callers ignore the returned error.
func (c *Client) TouchLastUsed(ctx context.Context, keyID string) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}

	payload, err := json.Marshal(map[string]string{
		"last_used_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s%s?id=eq.%s", c.baseURL, keysEndpoint, keyID)
	req, err := c.authedRequest(ctx, http.MethodPatch, url, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(ErrNetwork, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(ErrNetwork, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return errors.Wrapf(ErrRejected, "status %d", resp.StatusCode)
	}

	return nil
}

// Download fetches one asset to destPath as an atomic whole-file write and
// returns the byte count. Transient failures are retried a few times since
// downloads are idempotent.
func (c *Client) Download(ctx context.Context, url, destPath string) (int64, error) {
	if !c.IsConfigured() {
		return 0, ErrNotConfigured
	}

	var size int64
	err := retry.Do(
		func() error {
			n, err := c.downloadOnce(ctx, url, destPath)
			if err != nil {
				return err
			}
			size = n
			return nil
		},
		retry.Attempts(downloadRetries),
		retry.Context(ctx),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			// A rejected request will not improve on retry
			return !errors.Is(err, ErrRejected)
		}),
	)
	if err != nil {
		return 0, err
	}

	return size, nil
}

func (c *Client) downloadOnce(ctx context.Context, url, destPath string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, errors.Wrap(ErrNetwork, err.Error())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, errors.Wrap(ErrNetwork, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, errors.Wrapf(ErrRejected, "download status %d", resp.StatusCode)
	}

	// Write to a temp file first so a torn download never lands at the
	// final path.
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".koro-download-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpName)
		return 0, errors.Wrap(ErrNetwork, err.Error())
	}

	if err := os.Rename(tmpName, destPath); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("failed to move download into place: %w", err)
	}

	return n, nil
}

// MaskKey masks an activation key for logging (first 8 chars + ***).
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:8] + "***"
}
