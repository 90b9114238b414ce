package models

import "time"

// TherapistDaySummary is the composed dashboard view of one therapist's day.
type TherapistDaySummary struct {
	TherapistID   string             `json:"therapist_id"`
	Date          string             `json:"date"`
	TotalSessions int                `json:"total_sessions"`
	TotalMinutes  int                `json:"total_minutes"`
	ByStatus      map[string]int     `json:"by_status"`
	Sessions      []SessionSnapshot  `json:"sessions"`
	Conflicts     []ScheduleConflict `json:"conflicts"`
	GeneratedAt   time.Time          `json:"generated_at"`
}

// SystemMetrics is a lightweight aggregate for the ops dashboard.
type SystemMetrics struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
