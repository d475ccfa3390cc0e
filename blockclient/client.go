package blockclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/Austin-Williams/cid-accumulator-client/cid"
	"github.com/Austin-Williams/cid-accumulator-client/internal/accerr"
	"github.com/Austin-Williams/cid-accumulator-client/internal/logging"
	"github.com/Austin-Williams/cid-accumulator-client/internal/ratelimit"
)

// MaxBlockSize is the max IPFS block size spec.md §6 names as a
// constant of the system.
const MaxBlockSize = 1_000_000

// Options configures a Client. GatewayURL alone enables get; WriteURL
// additionally enables put; PinEndpoint additionally enables pin;
// ProvideEndpoint additionally enables provide — put→pin→provide is a
// strict dependency chain, per spec.md §4.5.
type Options struct {
	GatewayURL      string
	WriteURL        string
	PinEndpoint     string
	ProvideEndpoint string

	PinMinDelay         time.Duration
	PinFailureThreshold uint32

	HTTPClient *http.Client
}

// Client is the content-addressed block client.
type Client struct {
	opts Options
	http *http.Client

	canPut     bool
	canPin     bool
	canProvide bool

	pinQueue *ratelimit.Queue
	breaker  *gobreaker.CircuitBreaker[any]
	disabled atomic.Bool
}

// New constructs a Client, deriving capability gating from which
// endpoints are set: pin requires put, provide requires pin, per
// spec.md §4.5.
func New(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.PinMinDelay <= 0 {
		opts.PinMinDelay = 200 * time.Millisecond
	}
	if opts.PinFailureThreshold == 0 {
		opts.PinFailureThreshold = 5
	}

	canPut := opts.WriteURL != ""
	canPin := canPut && opts.PinEndpoint != ""
	canProvide := canPin && opts.ProvideEndpoint != ""

	c := &Client{
		opts:       opts,
		http:       opts.HTTPClient,
		canPut:     canPut,
		canPin:     canPin,
		canProvide: canProvide,
	}

	if canPin {
		c.pinQueue = ratelimit.New(opts.PinMinDelay)
		c.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
			Name:        "blockclient.pin",
			MaxRequests: 1,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= opts.PinFailureThreshold
			},
			// gobreaker's own Timeout lets an open breaker half-open and
			// retry; the disabled flag below instead latches the side
			// channel off for the process lifetime once it trips, per
			// spec.md §4.5.
			OnStateChange: func(name string, from, to gobreaker.State) {
				if to == gobreaker.StateOpen {
					c.disabled.Store(true)
				}
			},
		})
	}

	return c
}

// CanPut, CanPin, and CanProvide report the capability gating derived
// at construction.
func (c *Client) CanPut() bool      { return c.canPut }
func (c *Client) CanPin() bool      { return c.canPin }
func (c *Client) CanProvide() bool  { return c.canProvide }

// Get fetches the block at cid and verifies it rehashes to cid, per
// spec.md §4.5: "fails NotFound or CidMismatch if returned bytes do
// not rehash to cid".
func (c *Client) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	const op = "blockclient.Get"
	if c.opts.GatewayURL == "" {
		return nil, accerr.Newf(accerr.ConfigError, op, "no gateway configured")
	}

	url := fmt.Sprintf("%s/ipfs/%s?format=raw", c.opts.GatewayURL, id.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, accerr.New(accerr.Transport, op, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, accerr.New(accerr.Transport, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, accerr.Newf(accerr.NotFound, op, "%s: not found", id)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, accerr.Newf(accerr.Transport, op, "gateway returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBlockSize+1))
	if err != nil {
		return nil, accerr.New(accerr.Transport, op, err)
	}
	if len(body) > MaxBlockSize {
		return nil, accerr.Newf(accerr.Invariant, op, "block exceeds max size %d", MaxBlockSize)
	}

	if err := cid.VerifyCIDChecked(body, id); err != nil {
		return nil, accerr.New(accerr.CidMismatch, op, err)
	}
	return body, nil
}

// Put sends encoded to the write endpoint, verifying the CID
// client-side before sending. If the server echoes back a different
// CID, that's logged, not failed — per spec.md §4.5 ("tolerates
// server-returned CID mismatch by logging only"). A successful put
// triggers the remote-pin side channel if configured.
func (c *Client) Put(ctx context.Context, id cid.Cid, encoded []byte) error {
	const op = "blockclient.Put"
	if !c.canPut {
		return accerr.Newf(accerr.ConfigError, op, "put not enabled")
	}
	if err := cid.VerifyCIDChecked(encoded, id); err != nil {
		return accerr.New(accerr.CidMismatch, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.WriteURL, bytes.NewReader(encoded))
	if err != nil {
		return accerr.New(accerr.Transport, op, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return accerr.New(accerr.Transport, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return accerr.Newf(accerr.Transport, op, "write endpoint returned %d", resp.StatusCode)
	}

	var result struct {
		Cid string `json:"cid"`
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if len(body) > 0 && json.Unmarshal(body, &result) == nil && result.Cid != "" {
		if echoed, err := cid.Parse(result.Cid); err == nil && !echoed.Equals(id) {
			logging.Sugar.Warnw("write endpoint echoed a different CID", "expected", id.String(), "got", result.Cid)
		}
	}

	if c.canPin {
		c.pin(ctx, id)
	}
	return nil
}

// Provide fires a fire-and-forget announce request; all errors are
// swallowed, per spec.md §4.5.
func (c *Client) Provide(ctx context.Context, id cid.Cid) {
	if !c.canProvide {
		return
	}
	url := fmt.Sprintf("%s?cid=%s", c.opts.ProvideEndpoint, id.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return
	}
	resp, err := c.http.Do(req)
	if err != nil {
		logging.Sugar.Debugw("provide failed, ignoring", "cid", id.String(), "err", err)
		return
	}
	_ = resp.Body.Close()
}

// pin posts {cid} to the remote-pin endpoint through the pin FIFO
// queue and circuit breaker. It never returns an error to the caller:
// pinning is best-effort by design (spec.md §4.5).
func (c *Client) pin(ctx context.Context, id cid.Cid) {
	if c.disabled.Load() {
		return
	}
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.pinQueue.Do(ctx, func(ctx context.Context) error {
			payload, _ := json.Marshal(map[string]string{"cid": id.String()})
			url := c.opts.PinEndpoint + "/pins"
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := c.http.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode/100 != 2 {
				return fmt.Errorf("pin endpoint returned %d", resp.StatusCode)
			}
			return nil
		})
	})
	if err != nil {
		logging.Sugar.Warnw("pin failed", "cid", id.String(), "err", err, "breaker_state", c.breaker.State())
	}
}
