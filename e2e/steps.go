package e2e

import (
	"github.com/cucumber/godog"

	"treasury/e2e/steps/common"
	"treasury/e2e/steps/ratelimit"
	"treasury/e2e/steps/recurring"
	"treasury/e2e/steps/vault"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Ledger time, response assertions
	common.RegisterSteps(ctx, tc)

	// Configuration, roles and the proposal lifecycle
	vault.RegisterSteps(ctx, tc)

	recurring.RegisterSteps(ctx, tc)

	ratelimit.RegisterSteps(ctx, tc)
}
