// Package license validates the operator's device authorization against
// the licensing endpoint, caching the verdict on disk so batch work can
// start offline and survive transient endpoint outages.
package license

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/assayworks/hallmark-cli/internal/resilience"
)

// ErrUnlicensed is returned when the endpoint has definitively rejected
// this device.
var ErrUnlicensed = eris.New("license: device not licensed")

// Status is the cached licensing verdict for this device.
type Status struct {
	Licensed  bool      `json:"licensed"`
	Plan      string    `json:"plan,omitempty"`
	DeviceID  string    `json:"device_id"`
	CheckedAt time.Time `json:"checked_at"`
}

// Client revalidates the device license and caches the last verdict.
// Consumers read cache-first; only the background worker talks to the
// endpoint.
type Client struct {
	endpoint  string
	cachePath string
	deviceID  string
	http      *http.Client
	retry     resilience.RetryConfig

	mu      sync.RWMutex
	current Status
}

// Options configures a Client.
type Options struct {
	Endpoint  string
	CachePath string
	Timeout   time.Duration
	Retry     resilience.RetryConfig
}

// New builds a Client, computing the device fingerprint and loading any
// cached verdict from disk.
func New(opts Options) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}

	c := &Client{
		endpoint:  opts.Endpoint,
		cachePath: opts.CachePath,
		deviceID:  Fingerprint(),
		http:      &http.Client{Timeout: opts.Timeout},
		retry:     opts.Retry,
	}

	if cached, err := c.loadCache(); err == nil {
		c.current = cached
	} else if !os.IsNotExist(eris.Cause(err)) {
		zap.L().Warn("license: cache unreadable, starting cold", zap.Error(err))
	}
	return c, nil
}

// Fingerprint derives a stable device identifier from host, user, and
// platform. It carries no secrets; the endpoint only needs stability.
func Fingerprint() string {
	host, _ := os.Hostname()
	username := ""
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	sum := sha256.Sum256([]byte(host + "|" + username + "|" + runtime.GOOS + "/" + runtime.GOARCH))
	return hex.EncodeToString(sum[:16])
}

// Current returns the cached verdict without touching the network.
func (c *Client) Current() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Check returns nil when the cached verdict allows batch work. A cold
// cache triggers one synchronous revalidation.
func (c *Client) Check(ctx context.Context) error {
	cur := c.Current()
	if cur.CheckedAt.IsZero() {
		var err error
		cur, err = c.Revalidate(ctx)
		if err != nil {
			return err
		}
	}
	if !cur.Licensed {
		return eris.Wrapf(ErrUnlicensed, "device %s", c.deviceID)
	}
	return nil
}

type verdictResponse struct {
	Licensed bool   `json:"licensed"`
	Plan     string `json:"plan"`
}

// Revalidate asks the endpoint for a fresh verdict. A transient failure
// falls back to the last known good verdict; only a definitive response
// replaces it.
func (c *Client) Revalidate(ctx context.Context) (Status, error) {
	verdict, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (verdictResponse, error) {
		return c.fetchVerdict(ctx)
	})
	if err != nil {
		prev := c.Current()
		if !prev.CheckedAt.IsZero() {
			zap.L().Warn("license: revalidation failed, keeping last known verdict",
				zap.Time("checked_at", prev.CheckedAt),
				zap.Error(err),
			)
			return prev, nil
		}
		return Status{}, eris.Wrap(err, "license: revalidate")
	}

	st := Status{
		Licensed:  verdict.Licensed,
		Plan:      verdict.Plan,
		DeviceID:  c.deviceID,
		CheckedAt: time.Now().UTC(),
	}

	c.mu.Lock()
	c.current = st
	c.mu.Unlock()

	if err := c.saveCache(st); err != nil {
		zap.L().Warn("license: cache write failed", zap.Error(err))
	}
	if !st.Licensed {
		return st, eris.Wrapf(ErrUnlicensed, "device %s", c.deviceID)
	}
	return st, nil
}

func (c *Client) fetchVerdict(ctx context.Context) (verdictResponse, error) {
	body, err := json.Marshal(map[string]string{"device_id": c.deviceID})
	if err != nil {
		return verdictResponse{}, eris.Wrap(err, "license: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return verdictResponse{}, eris.Wrap(err, "license: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return verdictResponse{}, resilience.NewTransientError(err, 0)
	}
	defer resp.Body.Close()

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return verdictResponse{}, resilience.NewTransientError(
			eris.Errorf("license: endpoint returned %d", resp.StatusCode), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return verdictResponse{}, eris.Errorf("license: endpoint returned %d", resp.StatusCode)
	}

	var verdict verdictResponse
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return verdictResponse{}, eris.Wrap(err, "license: decode response")
	}
	return verdict, nil
}

// Run revalidates at the given interval until ctx is cancelled. Batch
// commands start it alongside their main work.
func (c *Client) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Revalidate(ctx); err != nil {
				zap.L().Warn("license: periodic revalidation", zap.Error(err))
			}
		}
	}
}

func (c *Client) loadCache() (Status, error) {
	data, err := os.ReadFile(c.cachePath)
	if err != nil {
		return Status{}, eris.Wrap(err, "license: read cache")
	}
	var st Status
	if err := json.Unmarshal(data, &st); err != nil {
		return Status{}, eris.Wrap(err, "license: parse cache")
	}
	// A cache written on another machine is not ours to trust.
	if st.DeviceID != c.deviceID {
		return Status{}, eris.New("license: cache device mismatch")
	}
	return st, nil
}

func (c *Client) saveCache(st Status) error {
	if c.cachePath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.cachePath), 0o700); err != nil {
		return eris.Wrap(err, "license: create cache dir")
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return eris.Wrap(err, "license: marshal cache")
	}
	return eris.Wrap(os.WriteFile(c.cachePath, data, 0o600), "license: write cache")
}
