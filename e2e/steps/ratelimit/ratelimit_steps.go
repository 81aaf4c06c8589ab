package ratelimit

import (
	"context"
	"net/http"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Request(method, path, caller string, body any) error
	SetRateLimit(requests int)
}

// RegisterSteps registers rate-limiting step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &ratelimitSteps{tc: tc}

	ctx.Step(`^the API allows (\d+) requests per minute$`, steps.apiAllows)
	ctx.Step(`^"([^"]*)" sends (\d+) requests?$`, steps.sendRequests)
}

type ratelimitSteps struct {
	tc TestContext
}

func (s *ratelimitSteps) apiAllows(ctx context.Context, requests int) error {
	s.tc.SetRateLimit(requests)
	return nil
}

// sendRequests reads the vault config n times; the last response is kept.
func (s *ratelimitSteps) sendRequests(ctx context.Context, caller string, n int) error {
	for range n {
		if err := s.tc.Request(http.MethodGet, "/vault/config", caller, nil); err != nil {
			return err
		}
	}
	return nil
}
