package smoke

import "time"

// Config holds configuration for a smoke run against the job API.
type Config struct {
	BaseURL      string        // Base URL of the service
	Jobs         int           // Number of distinct jobs to submit
	Workers      int           // Number of concurrent submitters
	Timeout      time.Duration // HTTP request timeout
	PollInterval time.Duration // Delay between job status polls
	Wait         time.Duration // Upper bound on waiting for all jobs
	AsOf         string        // Panel cut-off passed to every job
	Verbose      bool          // Log every job transition
}

// Stats holds run statistics.
type Stats struct {
	Submitted  int
	Accepted   int
	Duplicates int
	Rejected   int
	Completed  int
	Failed     int
	Reports    int
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
}
