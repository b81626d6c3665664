package catalog

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("catalog: not found")

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"

	ArtifactKindSnapshot = "snapshot"
	ArtifactKindBackup   = "backup"
)

// Repository is the read model over the SQLite file: live schema
// introspection plus the ingest_runs and artifacts bookkeeping tables.
type Repository interface {
	HealthCheck(ctx context.Context) error
	RequireTables(ctx context.Context, names ...string) error
	ListTables(ctx context.Context) ([]Table, error)
	GetTable(ctx context.Context, name string) (Table, error)
	SampleRows(ctx context.Context, table string, limit int) (Sample, error)
	DatabaseStats(ctx context.Context) (DatabaseStats, error)
	StartIngestRun(ctx context.Context, table, source string) (int64, error)
	CompleteIngestRun(ctx context.Context, runID int64, rows int64, runErr error) error
	ListIngestRuns(ctx context.Context, limit int) ([]IngestRun, error)
	LatestIngestRuns(ctx context.Context) ([]IngestRun, error)
	RecordArtifact(ctx context.Context, in RecordArtifactInput) (Artifact, error)
	ListArtifacts(ctx context.Context, kind string, limit int) ([]Artifact, error)
	StaleArtifacts(ctx context.Context, kind string, keep int, olderThan time.Time) ([]Artifact, error)
	DeleteArtifact(ctx context.Context, artifactID int64) error
}

type Column struct {
	Name       string
	Type       string
	NotNull    bool
	PrimaryKey bool
}

type Table struct {
	Name     string
	Columns  []Column
	RowCount int64
}

type Sample struct {
	Columns []string
	Rows    [][]any
}

type DatabaseStats struct {
	PageCount int64
	PageSize  int64
	SizeBytes int64
}

type IngestRun struct {
	ID          int64
	TableName   string
	Source      string
	Rows        int64
	Status      string
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}

type Artifact struct {
	ID          int64
	Kind        string
	TableName   string
	Path        string
	SizeBytes   int64
	RecordCount int64
	CreatedAt   time.Time
}

type RecordArtifactInput struct {
	Kind        string
	TableName   string
	Path        string
	SizeBytes   int64
	RecordCount int64
}
