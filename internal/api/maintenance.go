package api

import (
	"fmt"
	"net/http"
)

// handleMaintenanceRun triggers one upkeep operation and returns its summary.
func handleMaintenanceRun(deps Dependencies, w http.ResponseWriter, r *http.Request, operation string) {
	if deps.Maintenance == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "MAINTENANCE_NOT_CONFIGURED", "maintenance service is not configured", false, nil)
		return
	}
	if !allow(w, r, "ops_admin") {
		return
	}

	var summary any
	var err error
	switch operation {
	case "vacuum":
		summary, err = deps.Maintenance.RunVacuumOnce(r.Context())
	case "snapshot":
		summary, err = deps.Maintenance.RunSnapshotOnce(r.Context())
	case "backup":
		summary, err = deps.Maintenance.RunBackupOnce(r.Context())
	case "retention":
		summary, err = deps.Maintenance.RunRetentionOnce(r.Context())
	case "integrity":
		summary, err = deps.Maintenance.RunIntegrityCheckOnce(r.Context())
	default:
		writeError(r.Context(), w, http.StatusNotFound, "UNKNOWN_OPERATION", fmt.Sprintf("unknown maintenance operation %q", operation), false, nil)
		return
	}
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "MAINTENANCE_FAILED", fmt.Sprintf("%s run failed", operation), true, map[string]any{
			"details": err.Error(),
			"summary": summary,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "completed",
		"operation": operation,
		"summary":   summary,
	})
}
