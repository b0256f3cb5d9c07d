package storage

import "time"

// RunInfo is the bookkeeping row stored next to each checkpoint
type RunInfo struct {
	Seed      string
	RunID     string
	MaxDepth  int
	Status    string
	NodeCount int
	QueueSize int
	UpdatedAt time.Time
}

// Metrics tracks crawl statistics for export on exit
type Metrics struct {
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	RunID             string    `json:"run_id"`
	Requests          int       `json:"requests"`
	Retries           int       `json:"retries"`
	Unavailable       int       `json:"unavailable"`
	NodesDiscovered   int       `json:"nodes_discovered"`
	NodesExpanded     int       `json:"nodes_expanded"`
	EdgesRecorded     int       `json:"edges_recorded"`
	Checkpoints       int       `json:"checkpoints"`
	TotalFetchTimeMs  int64     `json:"total_fetch_time_ms"`
	AvgFetchTimeMs    int64     `json:"avg_fetch_time_ms"`
	TerminationReason string    `json:"termination_reason"`
}
