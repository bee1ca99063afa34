package llm

import (
	"context"
	"time"

	"github.com/wbarena/arena/internal/core"
)

// HealthCheckPrompt is a minimal one-line probe prompt, matching
// provider/health.go's HealthCheckPrompt. HealthCheck does not send it; it
// probes with a single PROPOSAL turn instead.
const HealthCheckPrompt = "1+1? One digit answer only"

// HealthStatus is the result of a one-off provider health probe.
type HealthStatus struct {
	Available    bool
	ResponseTime time.Duration
	Error        string
	CheckedAt    time.Time
}

// HealthCheck runs a minimal conversation + single turn against p and
// reports whether it succeeded. Not part of the canonical HTTP route
// table (spec.md §6); cmd/server calls it once at startup for a real
// provider and logs the result. A failed check does not stop the server.
func HealthCheck(ctx context.Context, p Provider) HealthStatus {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	probe := core.Challenge{Seed: 1, Tier: 1, BiomeSetting: "probe", Inhabitants: "probe", TwistConstraint: "probe"}
	handle, err := p.StartConversation(ctx, core.TeamA, probe, core.Canon{})
	if err != nil {
		return HealthStatus{Available: false, ResponseTime: time.Since(start), Error: err.Error(), CheckedAt: time.Now()}
	}

	_, _, _, err = p.GenerateTurn(ctx, handle, core.TurnSpec{
		Role: core.RoleArchitect, TurnType: core.TurnProposal, Phase: 1, Round: 1,
		AllowedPatchPrefixes: []string{"/world_name"},
	})
	elapsed := time.Since(start)
	if err != nil {
		return HealthStatus{Available: false, ResponseTime: elapsed, Error: err.Error(), CheckedAt: time.Now()}
	}
	return HealthStatus{Available: true, ResponseTime: elapsed, CheckedAt: time.Now()}
}
