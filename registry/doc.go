// Package registry is the directory of running agents.
//
// # Overview
//
// A Registry holds one entry per agent id. Agents are registered with the
// capabilities they advertise, the agents they depend on and an optional
// periodic health check. Callers discover agents by id, kind, status or
// capability set, and read per-agent performance metrics and registry-wide
// aggregates.
//
// # Registration
//
//	reg := registry.New(registry.Config{}, registry.WithLogger(logger))
//	err := reg.Register(ctx, complianceAgent, registry.RegisterOptions{
//	    Dependencies: []string{"policy-agent"},
//	    AutoStart:    true,
//	})
//
// Registration fails with ALREADY_EXISTS for a duplicate id and with
// DEPENDENCY when a dependency is missing or not active. Nothing is stored
// on failure.
//
// # Status
//
// On registration the registry installs an agent.Observer. Every lifecycle
// transition the agent makes is forwarded to UpdateAgentStatus, and every
// performance metric it records lands in the entry's buffer. The buffer keeps
// the newest DefaultMetricsBufferSize samples.
//
// # Discovery
//
//	entries := reg.GetAgents(registry.Filter{
//	    Kind:         agent.KindCompliance,
//	    Status:       agent.StatusActive,
//	    Capabilities: []string{"gap-analysis", "risk-assessment"},
//	})
//
// Capabilities are matched case-insensitively and all of them must be
// present.
//
// # Events
//
//	id := reg.AddEventListener(registry.EventStatusChanged, func(e registry.Event) error {
//	    log.Printf("%s: %v -> %v", e.AgentID, e.Payload["from"], e.Payload["to"])
//	    return nil
//	})
//	defer reg.RemoveEventListener(registry.EventStatusChanged, id)
//
// Handlers run synchronously in registration order. An error or panic in one
// handler is logged and the remaining handlers still run.
//
// # Health
//
// CheckAgentHealth never returns an error. An agent is healthy only while
// its status is active and its provider probe, if any, succeeds. With
// AutoStart the registry runs the check every HealthCheckInterval until the
// agent is unregistered. Failures found by these periodic checks are
// published on a separate goroutine, so a handler may unregister the agent.
//
// # Shutdown
//
// Shutdown unregisters and shuts down every agent, drops all listeners and
// stops the health checks. It is safe to call more than once.
package registry
