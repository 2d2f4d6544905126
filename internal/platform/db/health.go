package db

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

// GetPoolStats returns pgx pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// SQLStats converts database/sql statistics for dialects without a pgx pool.
func SQLStats(s sql.DBStats) *PoolStats {
	return &PoolStats{
		TotalConns:      int32(s.OpenConnections),
		IdleConns:       int32(s.Idle),
		AcquiredConns:   int32(s.InUse),
		MaxConns:        int32(s.MaxOpenConnections),
		AcquireCount:    s.WaitCount,
		AcquireDuration: s.WaitDuration.String(),
		Healthy:         true,
	}
}

// Stats returns pool statistics for whichever driver backs d.
func (d *DB) Stats() *PoolStats {
	if d.pool != nil {
		return GetPoolStats(d.pool)
	}
	return SQLStats(d.DB.Stats())
}

// Check is a named dependency ping reported by the health endpoint.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Check returns the ping for the metadata database.
func (d *DB) Check() Check {
	return Check{Name: d.Dialect.Name, Ping: d.PingContext}
}

// HealthResponse is the health-check body.
type HealthResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies"`
	Pool         *PoolStats        `json:"pool,omitempty"`
}

// HealthHandler returns a handler that pings every dependency. Any failing
// dependency turns the response into a 503.
func HealthHandler(d *DB, version string, checks ...Check) echo.HandlerFunc {
	all := append([]Check{d.Check()}, checks...)
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		resp := HealthResponse{
			Status:       "OK",
			Version:      version,
			Dependencies: make(map[string]string, len(all)),
			Pool:         d.Stats(),
		}
		code := http.StatusOK
		for _, chk := range all {
			if err := chk.Ping(ctx); err != nil {
				resp.Dependencies[chk.Name] = "DOWN"
				resp.Status = "DEGRADED"
				resp.Pool.Healthy = false
				code = http.StatusServiceUnavailable
				continue
			}
			resp.Dependencies[chk.Name] = "UP"
		}

		return c.JSON(code, resp)
	}
}
