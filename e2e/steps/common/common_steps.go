package common

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"

	"treasury/internal/vault/models"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	GetLastResponseHeader(name string) string
	SetLedger(tick uint64)
	AdvanceLedger(ticks uint64)
	Fund(token, amount string) error
	Balance(token, holder string) (models.Amount, error)
}

// RegisterSteps registers steps shared by every feature
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	// Ledger
	ctx.Step(`^the ledger is at tick (\d+)$`, steps.ledgerAt)
	ctx.Step(`^the ledger advances (\d+) ticks?$`, steps.ledgerAdvances)
	ctx.Step(`^the vault holds "([^"]*)" "([^"]*)"$`, steps.vaultHolds)
	ctx.Step(`^"([^"]*)" should hold "([^"]*)" "([^"]*)"$`, steps.shouldHold)

	// Assertions
	ctx.Step(`^the response status should be (\d+)$`, steps.statusShouldBe)
	ctx.Step(`^the response status should not be (\d+)$`, steps.statusShouldNotBe)
	ctx.Step(`^the response error should be "([^"]*)"$`, steps.errorShouldBe)
	ctx.Step(`^the response header "([^"]*)" should be present$`, steps.headerShouldBePresent)
	ctx.Step(`^the response header "([^"]*)" should be "([^"]*)"$`, steps.headerShouldBe)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) ledgerAt(ctx context.Context, tick int) error {
	s.tc.SetLedger(uint64(tick))
	return nil
}

func (s *commonSteps) ledgerAdvances(ctx context.Context, ticks int) error {
	s.tc.AdvanceLedger(uint64(ticks))
	return nil
}

func (s *commonSteps) vaultHolds(ctx context.Context, amount, token string) error {
	return s.tc.Fund(token, amount)
}

func (s *commonSteps) shouldHold(ctx context.Context, holder, amount, token string) error {
	want, err := models.ParseAmount(amount)
	if err != nil {
		return err
	}
	got, err := s.tc.Balance(token, holder)
	if err != nil {
		return err
	}
	if !got.Equal(want) {
		return fmt.Errorf("expected %s to hold %s %s, got %s", holder, want, token, got)
	}
	return nil
}

func (s *commonSteps) statusShouldBe(ctx context.Context, expected int) error {
	if actual := s.tc.GetLastResponseStatus(); actual != expected {
		return fmt.Errorf("expected status %d, got %d: %s", expected, actual, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *commonSteps) statusShouldNotBe(ctx context.Context, unexpected int) error {
	if actual := s.tc.GetLastResponseStatus(); actual == unexpected {
		return fmt.Errorf("unexpected status %d: %s", actual, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *commonSteps) errorShouldBe(ctx context.Context, code string) error {
	got, err := s.tc.GetResponseField("error")
	if err != nil {
		return err
	}
	if got != code {
		return fmt.Errorf("expected error %q, got %v", code, got)
	}
	return nil
}

func (s *commonSteps) headerShouldBePresent(ctx context.Context, name string) error {
	if s.tc.GetLastResponseHeader(name) == "" {
		return fmt.Errorf("expected header %s to be set", name)
	}
	return nil
}

func (s *commonSteps) headerShouldBe(ctx context.Context, name, expected string) error {
	if got := s.tc.GetLastResponseHeader(name); got != expected {
		return fmt.Errorf("expected header %s=%q, got %q", name, expected, got)
	}
	return nil
}
