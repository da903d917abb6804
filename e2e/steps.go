package e2e

import (
	"github.com/cucumber/godog"

	"bikeauth/e2e/steps/auth"
)

// RegisterSteps registers all step definitions from modular packages.
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	auth.RegisterSteps(ctx, tc)
}
