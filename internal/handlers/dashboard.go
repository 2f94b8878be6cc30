package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/devilai/devil-console/internal/models"
	"github.com/devilai/devil-console/internal/telemetry"
	"github.com/tmaxmax/go-sse"
)

var telemetrySSEType = sse.Type("telemetry")

// totalMemoryGB is the simulated memory capacity the memory gauge is a percentage of.
const totalMemoryGB = 8.0

type dashboardPageData struct {
	Page         string
	Agents       []models.Agent
	ActiveAgents int
	TotalAgents  int
}

type telemetryEvent struct {
	telemetry.Snapshot
	MemoryGB     float64 `json:"memoryGB"`
	ActiveAgents int     `json:"activeAgents"`
	TotalAgents  int     `json:"totalAgents"`
}

// HandleDashboard renders the telemetry dashboard. The live figures arrive through HandleTelemetry.
func (m Main) HandleDashboard(w http.ResponseWriter, _ *http.Request) {
	data := dashboardPageData{
		Page:         "dashboard",
		Agents:       m.roster.List(),
		ActiveAgents: m.roster.ActiveCount(),
		TotalAgents:  m.roster.Len(),
	}
	if err := m.templates.ExecuteTemplate(w, "dashboard.html", data); err != nil {
		m.logger.Error("Failed to render dashboard", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleTelemetry streams simulated telemetry to one dashboard. Every connection owns its own
// simulator, started when the dashboard connects and stopped as soon as it disconnects.
func (m Main) HandleTelemetry(w http.ResponseWriter, r *http.Request) {
	sess, err := sse.Upgrade(w, r)
	if err != nil {
		m.logger.Error("Failed to upgrade telemetry connection", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	m.recorder.DashboardOpened(ctx)
	defer m.recorder.DashboardClosed(ctx)

	sim := telemetry.New(m.telemetryOpts)

	publish := func(snap telemetry.Snapshot) error {
		data, err := json.Marshal(telemetryEvent{
			Snapshot:     snap,
			MemoryGB:     snap.Memory * totalMemoryGB / 100,
			ActiveAgents: m.roster.ActiveCount(),
			TotalAgents:  m.roster.Len(),
		})
		if err != nil {
			return fmt.Errorf("failed to marshal telemetry: %w", err)
		}

		e := &sse.Message{Type: telemetrySSEType}
		e.AppendData(string(data))
		if err := sess.Send(e); err != nil {
			return err
		}
		return sess.Flush()
	}

	if err := publish(sim.Snapshot()); err != nil {
		m.logger.Debug("Dashboard went away", slog.String(errLoggerKey, err.Error()))
		return
	}
	if err := telemetry.Run(ctx, sim, publish); err != nil {
		m.logger.Debug("Dashboard went away", slog.String(errLoggerKey, err.Error()))
	}
}
