package metrics

import (
	"database/sql"
	"time"
)

type PoolHealthStatus string

const (
	PoolHealthy   PoolHealthStatus = "healthy"
	PoolDegraded  PoolHealthStatus = "degraded"
	PoolUnhealthy PoolHealthStatus = "unhealthy"
)

// PoolHealth summarises a database/sql pool for the readiness endpoint.
type PoolHealth struct {
	Status      PoolHealthStatus `json:"status"`
	Open        int              `json:"open"`
	InUse       int              `json:"in_use"`
	MaxOpen     int              `json:"max_open"`
	WaitCount   int64            `json:"wait_count"`
	Utilization float64          `json:"utilization"`
	Message     string           `json:"message,omitempty"`
}

// AssessPool classifies stats: >=95% in use is unhealthy, >=80% or long
// waits is degraded.
func AssessPool(stats sql.DBStats) PoolHealth {
	h := PoolHealth{
		Status:    PoolHealthy,
		Open:      stats.OpenConnections,
		InUse:     stats.InUse,
		MaxOpen:   stats.MaxOpenConnections,
		WaitCount: stats.WaitCount,
		Message:   "pool operating normally",
	}
	if stats.MaxOpenConnections == 0 {
		h.Message = "unlimited connections"
		return h
	}

	h.Utilization = float64(stats.InUse) / float64(stats.MaxOpenConnections)
	switch {
	case h.Utilization >= 0.95:
		h.Status, h.Message = PoolUnhealthy, "pool nearly exhausted"
	case h.Utilization >= 0.80:
		h.Status, h.Message = PoolDegraded, "high pool utilization"
	}
	if stats.WaitCount > 0 && stats.WaitDuration > 5*time.Second && h.Status == PoolHealthy {
		h.Status, h.Message = PoolDegraded, "elevated connection wait times"
	}
	return h
}
