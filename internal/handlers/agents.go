package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/devilai/devil-console/internal/models"
	"github.com/devilai/devil-console/internal/roster"
)

type settingsPageData struct {
	Page     string
	Agents   []models.Agent
	Roles    []models.AgentRole
	Statuses []models.AgentStatus
}

// HandleSettings renders the roster configuration view.
func (m Main) HandleSettings(w http.ResponseWriter, _ *http.Request) {
	data := settingsPageData{
		Page:     "settings",
		Agents:   m.roster.List(),
		Roles:    models.AgentRoles,
		Statuses: models.AgentStatuses,
	}
	if err := m.templates.ExecuteTemplate(w, "settings.html", data); err != nil {
		m.logger.Error("Failed to render settings", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleAddAgent registers an agent from the "name", "role", "status" and "capabilities" form
// fields and sends the operator back to the settings view. A blank name is ignored.
func (m Main) HandleAddAgent(w http.ResponseWriter, r *http.Request) {
	a, err := m.roster.Add(
		r.FormValue("name"),
		models.AgentRole(r.FormValue("role")),
		models.AgentStatus(r.FormValue("status")),
		r.FormValue("capabilities"),
	)
	switch {
	case errors.Is(err, roster.ErrNameRequired):
	case err != nil:
		m.logger.Warn("Rejected agent", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	default:
		m.logger.Info("Agent added", slog.String("id", a.ID), slog.String("name", a.Name))
	}

	http.Redirect(w, r, "/settings", http.StatusSeeOther)
}

// HandleRemoveAgent removes the agent named by the {id} path segment. Form posts are redirected back
// to the settings view, DELETE requests get 204 No Content.
func (m Main) HandleRemoveAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := m.roster.Remove(id); err != nil {
		if errors.Is(err, roster.ErrAgentNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	m.logger.Info("Agent removed", slog.String("id", id))

	if r.Method == http.MethodDelete {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, "/settings", http.StatusSeeOther)
}
