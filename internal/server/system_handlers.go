package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/mvportfolio/internal/database"
	"github.com/aristath/mvportfolio/internal/scheduler"
)

// SystemHandlers serves process and host status.
type SystemHandlers struct {
	log       zerolog.Logger
	cacheDB   *database.DB
	scheduler *scheduler.Scheduler
	startedAt time.Time
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(log zerolog.Logger, cacheDB *database.DB, sched *scheduler.Scheduler) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		cacheDB:   cacheDB,
		scheduler: sched,
		startedAt: time.Now(),
	}
}

// SystemStatusResponse is the body of GET /api/system/status.
type SystemStatusResponse struct {
	Status        string       `json:"status"`
	CPUPercent    float64      `json:"cpu_percent"`
	MemoryPercent float64      `json:"memory_percent"`
	Goroutines    int          `json:"goroutines"`
	UptimeSeconds float64      `json:"uptime_seconds"`
	ScheduledJobs []JobStatus  `json:"scheduled_jobs"`
	Cache         *CacheStatus `json:"cache,omitempty"`
	LastCheck     string       `json:"last_check"`
}

// JobStatus describes a scheduled job. Next is empty until the scheduler runs.
type JobStatus struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Next     string `json:"next,omitempty"`
}

// CacheStatus describes the price cache database.
type CacheStatus struct {
	Path    string `json:"path"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// HandleSystemStatus returns system status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	cpuPercent, memPercent := h.getSystemStats()
	response := SystemStatusResponse{
		Status:        "healthy",
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Goroutines:    runtime.NumGoroutine(),
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
		ScheduledJobs: []JobStatus{},
		LastCheck:     time.Now().Format(time.RFC3339),
	}
	if h.scheduler != nil {
		for _, e := range h.scheduler.Entries() {
			job := JobStatus{Name: e.Job, Schedule: e.Schedule}
			if !e.Next.IsZero() {
				job.Next = e.Next.Format(time.RFC3339)
			}
			response.ScheduledJobs = append(response.ScheduledJobs, job)
		}
	}
	if h.cacheDB != nil {
		status := &CacheStatus{Path: h.cacheDB.Path(), Healthy: true}
		if err := h.cacheDB.QuickCheck(r.Context()); err != nil {
			status.Healthy = false
			status.Error = err.Error()
			response.Status = "degraded"
			h.log.Warn().Err(err).Msg("Cache database check failed")
		}
		response.Cache = status
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode system status")
	}
}

// getSystemStats calculates CPU and RAM usage percentages
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	// 100ms keeps the endpoint responsive while still sampling CPU.
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
