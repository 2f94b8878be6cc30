// Package roster keeps the in-memory list of virtual agents registered in the fleet.
package roster

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/devilai/devil-console/internal/models"
	"github.com/google/uuid"
)

var (
	// ErrNameRequired is returned when an agent is added without a name.
	ErrNameRequired = errors.New("agent name is required")
	// ErrInvalidRole is returned for a role outside models.AgentRoles.
	ErrInvalidRole = errors.New("invalid agent role")
	// ErrInvalidStatus is returned for a status outside models.AgentStatuses.
	ErrInvalidStatus = errors.New("invalid agent status")
	// ErrAgentNotFound is returned when removing an unknown agent.
	ErrAgentNotFound = errors.New("agent not found")
)

// DefaultAgents is the fleet the console boots with when no agents are configured.
func DefaultAgents() []models.Agent {
	return []models.Agent{
		{
			ID: "1", Name: "Alpha-1 (Overseer)", Role: models.AgentRoleOverseer,
			Status: models.AgentStatusBusy, Capabilities: []string{"Orchestration"},
		},
		{
			ID: "2", Name: "Beta-Dev (Eng)", Role: models.AgentRoleEngineer,
			Status: models.AgentStatusIdle, Capabilities: []string{"React", "TS"},
		},
		{
			ID: "3", Name: "Gamma-Ops (Data)", Role: models.AgentRoleAnalyst,
			Status: models.AgentStatusIdle, Capabilities: []string{"Metrics"},
		},
		{
			ID: "4", Name: "Delta-Sec (Sec)", Role: models.AgentRoleAnalyst,
			Status: models.AgentStatusOffline, Capabilities: []string{"Security"},
		},
	}
}

// Roster is a mutable, ordered list of agents. It is safe for concurrent use.
type Roster struct {
	mu     sync.RWMutex
	agents []models.Agent
}

// New creates a roster holding a copy of seed.
func New(seed []models.Agent) *Roster {
	agents := make([]models.Agent, len(seed))
	for i, a := range seed {
		a.Capabilities = slices.Clone(a.Capabilities)
		agents[i] = a
	}
	return &Roster{agents: agents}
}

// Add registers a new agent. capabilities is a comma separated list, blank entries are dropped.
// An empty status defaults to idle.
func (r *Roster) Add(name string, role models.AgentRole, status models.AgentStatus, capabilities string) (models.Agent, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Agent{}, ErrNameRequired
	}
	if !role.Valid() {
		return models.Agent{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if status == "" {
		status = models.AgentStatusIdle
	}
	if !status.Valid() {
		return models.Agent{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	agent := models.Agent{
		ID:           uuid.New().String(),
		Name:         name,
		Role:         role,
		Status:       status,
		Capabilities: ParseCapabilities(capabilities),
	}

	r.mu.Lock()
	r.agents = append(r.agents, agent)
	r.mu.Unlock()

	return agent, nil
}

// Remove deletes the agent with the given ID.
func (r *Roster) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := slices.IndexFunc(r.agents, func(a models.Agent) bool { return a.ID == id })
	if idx == -1 {
		return ErrAgentNotFound
	}
	r.agents = slices.Delete(r.agents, idx, idx+1)
	return nil
}

// List returns the agents in registration order.
func (r *Roster) List() []models.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]models.Agent, len(r.agents))
	for i, a := range r.agents {
		a.Capabilities = slices.Clone(a.Capabilities)
		agents[i] = a
	}
	return agents
}

// Len returns the number of registered agents.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// ActiveCount returns how many agents are not offline.
func (r *Roster) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, a := range r.agents {
		if a.Status.Active() {
			n++
		}
	}
	return n
}

// ParseCapabilities splits a comma separated list, trimming each entry and dropping blanks.
func ParseCapabilities(s string) []string {
	caps := []string{}
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			caps = append(caps, c)
		}
	}
	return caps
}
