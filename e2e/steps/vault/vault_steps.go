package vault

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Request(method, path, caller string, body any) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
}

// RegisterSteps registers vault configuration and proposal step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &vaultSteps{tc: tc}

	// Configuration and roles
	ctx.Step(`^"([^"]*)" initializes the vault with signers "([^"]*)" and threshold (\d+)$`, steps.initialize)
	ctx.Step(`^"([^"]*)" is granted the "([^"]*)" role$`, steps.grantRole)

	// Proposal lifecycle
	ctx.Step(`^"([^"]*)" proposes a transfer of "([^"]*)" "([^"]*)" to "([^"]*)"$`, steps.propose)
	ctx.Step(`^"([^"]*)" approves the proposal$`, steps.approve)
	ctx.Step(`^"([^"]*)" rejects the proposal$`, steps.reject)
	ctx.Step(`^"([^"]*)" executes the proposal$`, steps.execute)
	ctx.Step(`^the proposal status should be "([^"]*)"$`, steps.statusShouldBe)
	ctx.Step(`^the proposal should unlock at tick (\d+)$`, steps.unlockShouldBe)
}

type vaultSteps struct {
	tc         TestContext
	proposalID uint64
}

// initialize uses fixed limits: 1000 per transfer, 5000 daily, 20000 weekly
// and a 200 tick timelock from 500 up.
func (s *vaultSteps) initialize(ctx context.Context, admin, signers string, threshold int) error {
	body := map[string]any{
		"signers":            strings.Split(signers, ","),
		"threshold":          threshold,
		"spending_limit":     "1000",
		"daily_limit":        "5000",
		"weekly_limit":       "20000",
		"timelock_threshold": "500",
		"timelock_delay":     200,
	}
	if err := s.tc.Request(http.MethodPost, "/vault/initialize", admin, body); err != nil {
		return err
	}
	return s.expect(http.StatusCreated)
}

func (s *vaultSteps) grantRole(ctx context.Context, identity, role string) error {
	// the background admin is always GADMIN
	if err := s.tc.Request(http.MethodPut, "/vault/roles/"+identity, "GADMIN", map[string]string{"role": role}); err != nil {
		return err
	}
	return s.expect(http.StatusOK)
}

func (s *vaultSteps) propose(ctx context.Context, proposer, amount, token, recipient string) error {
	body := map[string]string{
		"recipient": recipient,
		"token":     token,
		"amount":    amount,
		"memo":      "e2e",
	}
	if err := s.tc.Request(http.MethodPost, "/proposals", proposer, body); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() != http.StatusCreated {
		return nil
	}
	id, err := s.tc.GetResponseField("id")
	if err != nil {
		return err
	}
	s.proposalID = uint64(id.(float64))
	return nil
}

func (s *vaultSteps) approve(ctx context.Context, caller string) error {
	return s.tc.Request(http.MethodPost, s.proposalPath("/approve"), caller, nil)
}

func (s *vaultSteps) reject(ctx context.Context, caller string) error {
	return s.tc.Request(http.MethodPost, s.proposalPath("/reject"), caller, nil)
}

func (s *vaultSteps) execute(ctx context.Context, caller string) error {
	return s.tc.Request(http.MethodPost, s.proposalPath("/execute"), caller, nil)
}

func (s *vaultSteps) statusShouldBe(ctx context.Context, expected string) error {
	got, err := s.proposalField("status")
	if err != nil {
		return err
	}
	if got != expected {
		return fmt.Errorf("expected proposal status %q, got %v", expected, got)
	}
	return nil
}

func (s *vaultSteps) unlockShouldBe(ctx context.Context, tick int) error {
	got, err := s.proposalField("unlock_ledger")
	if err != nil {
		return err
	}
	if got != float64(tick) {
		return fmt.Errorf("expected unlock at tick %d, got %v", tick, got)
	}
	return nil
}

func (s *vaultSteps) proposalField(field string) (any, error) {
	if err := s.tc.Request(http.MethodGet, s.proposalPath(""), "GADMIN", nil); err != nil {
		return nil, err
	}
	if err := s.expect(http.StatusOK); err != nil {
		return nil, err
	}
	return s.tc.GetResponseField(field)
}

func (s *vaultSteps) proposalPath(suffix string) string {
	return fmt.Sprintf("/proposals/%d%s", s.proposalID, suffix)
}

func (s *vaultSteps) expect(status int) error {
	if got := s.tc.GetLastResponseStatus(); got != status {
		return fmt.Errorf("expected status %d, got %d", status, got)
	}
	return nil
}
