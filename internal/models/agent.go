package models

import "slices"

// Agent is a virtual node registered in the fleet roster. Agents have no lifecycle of their own,
// they only change when the operator adds or removes them.
type Agent struct {
	ID           string
	Name         string
	Role         AgentRole
	Status       AgentStatus
	Capabilities []string
}

// AgentRole is the function an agent fills in the fleet.
type AgentRole string

// AgentStatus is the reported availability of an agent.
type AgentStatus string

const (
	AgentRoleOverseer AgentRole = "OVERSEER"
	AgentRoleEngineer AgentRole = "ENGINEER"
	AgentRoleAnalyst  AgentRole = "ANALYST"
	AgentRoleUser     AgentRole = "USER"

	AgentStatusIdle    AgentStatus = "idle"
	AgentStatusBusy    AgentStatus = "busy"
	AgentStatusOffline AgentStatus = "offline"
)

// AgentRoles lists every valid role in display order.
var AgentRoles = []AgentRole{AgentRoleOverseer, AgentRoleEngineer, AgentRoleAnalyst, AgentRoleUser}

// AgentStatuses lists every valid status in display order.
var AgentStatuses = []AgentStatus{AgentStatusIdle, AgentStatusBusy, AgentStatusOffline}

// Valid reports whether r is one of the known roles.
func (r AgentRole) Valid() bool {
	return slices.Contains(AgentRoles, r)
}

// Badge is the short form of the role shown next to agent names.
func (r AgentRole) Badge() string {
	if len(r) <= 4 {
		return string(r)
	}
	return string(r[:4])
}

// Valid reports whether s is one of the known statuses.
func (s AgentStatus) Valid() bool {
	return slices.Contains(AgentStatuses, s)
}

// Active reports whether an agent with this status counts towards the active fleet.
func (s AgentStatus) Active() bool {
	return s != AgentStatusOffline
}
