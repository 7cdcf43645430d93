package queue

import "time"

// Status describes the lifecycle position of a dubbing job.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Stage identifies which pipeline stage a running job is executing.
type Stage string

const (
	StageDiarizing    Stage = "diarizing"
	StageTranslating  Stage = "translating"
	StageSynthesizing Stage = "synthesizing"
	StageResyncing    Stage = "resyncing"
)

// StageOrder lists pipeline stages in execution order.
var StageOrder = []Stage{StageDiarizing, StageTranslating, StageSynthesizing, StageResyncing}

// NextStage returns the stage following current, or false when current is the
// last stage of the pipeline.
func NextStage(current Stage) (Stage, bool) {
	for i, stage := range StageOrder {
		if stage == current && i+1 < len(StageOrder) {
			return StageOrder[i+1], true
		}
	}
	return "", false
}

// ValidStage reports whether the given stage is part of the pipeline.
func ValidStage(stage Stage) bool {
	for _, s := range StageOrder {
		if s == stage {
			return true
		}
	}
	return false
}

// Job is a persisted dubbing request moving through the pipeline.
type Job struct {
	ID             string
	SourceAsset    string
	TargetLanguage string
	Status         Status
	Stage          Stage
	OutputAsset    string
	ErrorMessage   string
	SegmentsJSON   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

// IsTerminal reports whether the job has reached a final state.
func (j *Job) IsTerminal() bool {
	return j.Status == StatusDone || j.Status == StatusFailed
}

// MarkDone records the finished output and clears any stale error text.
func (j *Job) MarkDone(outputAsset string) {
	j.Status = StatusDone
	j.Stage = ""
	j.OutputAsset = outputAsset
	j.ErrorMessage = ""
}

// MarkFailed records the failure reason and clears any partial output.
func (j *Job) MarkFailed(message string) {
	j.Status = StatusFailed
	j.OutputAsset = ""
	j.ErrorMessage = message
}

// LogEntry is one append-only progress record for a job. Entries are ordered
// by their autoincrement ID, never by timestamp.
type LogEntry struct {
	ID        int64
	JobID     string
	Stage     string
	Message   string
	CreatedAt time.Time
}

// HealthSummary aggregates job counts for diagnostic output.
type HealthSummary struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Running int `json:"running"`
	Done    int `json:"done"`
	Failed  int `json:"failed"`
}

// DatabaseHealth reports the state of the underlying SQLite database.
type DatabaseHealth struct {
	DBPath         string `json:"db_path"`
	DatabaseExists bool   `json:"database_exists"`
	Healthy        bool   `json:"healthy"`
	Error          string `json:"error,omitempty"`
}
