package storage

import "time"

// Job names recorded in JobRunStore.
const (
	JobVerification = "verification"
	JobBackfill     = "backfill"
)

// JobRun is the summary of one batch job execution.
type JobRun struct {
	Job        string    // job name
	StartedAt  time.Time // batch start
	FinishedAt time.Time // batch end
	Total      int       // items loaded
	Succeeded  int       // items finished normally
	Failed     int       // items that failed
	Error      *string   // batch-level error (nullable)
}
