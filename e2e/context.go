package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/go-chi/chi/v5"

	vaultauth "treasury/internal/vault/auth"
	"treasury/internal/vault/clock"
	"treasury/internal/vault/handler"
	"treasury/internal/vault/models"
	"treasury/internal/vault/service"
	"treasury/internal/vault/store"
	"treasury/internal/vault/transfer"
	authmw "treasury/pkg/platform/middleware/auth"
	"treasury/pkg/platform/middleware/ratelimit"
	"treasury/pkg/platform/middleware/request"
)

const (
	vaultAccount     = "GTREASURY"
	defaultRateLimit = 10_000
)

// TestContext runs the full HTTP stack in process and records the last
// response for assertion steps. State survives server restarts within a
// scenario.
type TestContext struct {
	kv        store.KV
	clock     *clock.Manual
	ledger    *transfer.Ledger
	tokens    *vaultauth.TokenService
	rateLimit int

	server *httptest.Server
	client *http.Client

	lastStatus int
	lastBody   []byte
	lastHeader http.Header
}

func NewTestContext() *TestContext {
	kv := store.NewMemory()
	return &TestContext{
		kv:        kv,
		clock:     clock.NewManual(0),
		ledger:    transfer.NewLedger(vaultAccount, transfer.WithStore(kv)),
		tokens:    vaultauth.NewTokenService("e2e-signing-key", "treasury", "treasury-api"),
		rateLimit: defaultRateLimit,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (tc *TestContext) ensureServer() error {
	if tc.server != nil {
		return nil
	}
	logger := slog.New(slog.DiscardHandler)
	svc, err := service.New(tc.kv, vaultauth.NewContextAuthenticator(), tc.ledger, tc.clock,
		service.WithLogger(logger))
	if err != nil {
		return err
	}
	limiter := ratelimit.New(ratelimit.NewMemoryBucketStore(), tc.rateLimit, time.Minute,
		ratelimit.WithLogger(logger))

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.ContentTypeJSON)
	r.Use(authmw.RequireAuth(tc.tokens, logger))
	r.Use(limiter.Handler)
	handler.New(svc, logger).Register(r)

	tc.server = httptest.NewServer(r)
	return nil
}

// Close stops the server; the next request starts a fresh one.
func (tc *TestContext) Close() {
	if tc.server != nil {
		tc.server.Close()
		tc.server = nil
	}
}

// SetRateLimit restarts the API with a new per-caller limit.
func (tc *TestContext) SetRateLimit(requests int) {
	tc.rateLimit = requests
	tc.Close()
}

// Request sends an authenticated request as caller. An empty caller sends no token.
func (tc *TestContext) Request(method, path, caller string, body any) error {
	if err := tc.ensureServer(); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, tc.server.URL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		token, err := tc.tokens.IssueToken(models.Identity(caller), time.Hour)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	tc.lastStatus = resp.StatusCode
	tc.lastHeader = resp.Header
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) GetLastResponseStatus() int {
	return tc.lastStatus
}

func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.lastBody
}

func (tc *TestContext) GetLastResponseHeader(name string) string {
	if tc.lastHeader == nil {
		return ""
	}
	return tc.lastHeader.Get(name)
}

// GetResponseField reads a top-level field from the last JSON response.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var body map[string]any
	if err := json.Unmarshal(tc.lastBody, &body); err != nil {
		return nil, fmt.Errorf("decode response %q: %w", tc.lastBody, err)
	}
	v, ok := body[field]
	if !ok {
		return nil, fmt.Errorf("field %q not in response %s", field, tc.lastBody)
	}
	return v, nil
}

func (tc *TestContext) SetLedger(tick uint64) {
	tc.clock.Set(models.Tick(tick))
}

func (tc *TestContext) AdvanceLedger(ticks uint64) {
	tc.clock.Advance(models.Tick(ticks))
}

// Fund credits the vault account on the settlement ledger.
func (tc *TestContext) Fund(token, amount string) error {
	a, err := models.ParseAmount(amount)
	if err != nil {
		return err
	}
	return tc.ledger.Credit(context.Background(), models.Identity(token), vaultAccount, a)
}

func (tc *TestContext) Balance(token, holder string) (models.Amount, error) {
	return tc.ledger.Balance(context.Background(), models.Identity(token), models.Identity(holder))
}
