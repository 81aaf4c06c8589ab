package recurring

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Request(method, path, caller string, body any) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
}

// RegisterSteps registers recurring payment step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &recurringSteps{tc: tc}

	ctx.Step(`^"([^"]*)" schedules "([^"]*)" "([^"]*)" to "([^"]*)" every (\d+) ticks$`, steps.schedule)
	ctx.Step(`^"([^"]*)" pauses the schedule$`, steps.pause)
	ctx.Step(`^"([^"]*)" resumes the schedule$`, steps.resume)
	ctx.Step(`^the due payments are processed$`, steps.process)
	ctx.Step(`^no payments should have been made$`, steps.noPayments)
	ctx.Step(`^(\d+) payments? should have been made$`, steps.paymentsMade)
	ctx.Step(`^the schedule should have paid (\d+) times?$`, steps.paymentCount)
}

type recurringSteps struct {
	tc         TestContext
	scheduleID uint64
}

func (s *recurringSteps) schedule(ctx context.Context, caller, amount, token, recipient string, interval int) error {
	body := map[string]any{
		"recipient": recipient,
		"token":     token,
		"amount":    amount,
		"memo":      "payroll",
		"interval":  interval,
	}
	if err := s.tc.Request(http.MethodPost, "/recurring", caller, body); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() != http.StatusCreated {
		return nil
	}
	id, err := s.tc.GetResponseField("id")
	if err != nil {
		return err
	}
	s.scheduleID = uint64(id.(float64))
	return nil
}

func (s *recurringSteps) pause(ctx context.Context, caller string) error {
	return s.tc.Request(http.MethodPost, fmt.Sprintf("/recurring/%d/pause", s.scheduleID), caller, nil)
}

func (s *recurringSteps) resume(ctx context.Context, caller string) error {
	return s.tc.Request(http.MethodPost, fmt.Sprintf("/recurring/%d/resume", s.scheduleID), caller, nil)
}

// process runs as an identity with no role: processing is permissionless.
func (s *recurringSteps) process(ctx context.Context) error {
	return s.tc.Request(http.MethodPost, "/recurring/process", "GKEEPER", nil)
}

func (s *recurringSteps) noPayments(ctx context.Context) error {
	return s.paymentsMade(ctx, 0)
}

func (s *recurringSteps) paymentsMade(ctx context.Context, n int) error {
	if got := s.tc.GetLastResponseStatus(); got != http.StatusOK {
		return fmt.Errorf("expected status 200 from processing, got %d", got)
	}
	paid, err := s.tc.GetResponseField("paid")
	if err != nil {
		return err
	}
	ids, _ := paid.([]any)
	if len(ids) != n {
		return fmt.Errorf("expected %d payments, got %v", n, paid)
	}
	return nil
}

func (s *recurringSteps) paymentCount(ctx context.Context, n int) error {
	if err := s.tc.Request(http.MethodGet, fmt.Sprintf("/recurring/%d", s.scheduleID), "GADMIN", nil); err != nil {
		return err
	}
	got, err := s.tc.GetResponseField("payment_count")
	if err != nil {
		return err
	}
	if got != float64(n) {
		return fmt.Errorf("expected %d payments on the schedule, got %v", n, got)
	}
	return nil
}
