package handler

import (
	"fmt"
	"net/http"

	"github.com/YannKr/adimport/internal/diskstat"
)

var warnNames = []string{"none", "yellow", "red", "block"}

func (h *Handler) APIStorage(w http.ResponseWriter, r *http.Request) {
	if h.DiskCache == nil {
		renderJSONError(w, http.StatusServiceUnavailable, "disk_monitoring_unavailable", "Disk monitoring not available.")
		return
	}
	stats := h.DiskCache.Get()
	level := stats.WarningLevel(h.Cfg.DiskWarnYellowPct, h.Cfg.DiskWarnRedPct, h.Cfg.DiskWarnBlockPct)
	renderJSON(w, http.StatusOK, map[string]interface{}{
		"stats":    stats,
		"pct_free": stats.PctFree(),
		"warning":  warnNames[level],
		"message":  diskWarnMsg(level, stats.PctFree()),
	})
}

func diskWarnMsg(level int, pctFree float64) string {
	switch level {
	case diskstat.WarnYellow:
		return fmt.Sprintf("%.1f%% free, running low", pctFree)
	case diskstat.WarnRed:
		return fmt.Sprintf("%.1f%% free, critically low", pctFree)
	case diskstat.WarnBlock:
		return fmt.Sprintf("%.1f%% free, imports blocked", pctFree)
	default:
		return ""
	}
}
