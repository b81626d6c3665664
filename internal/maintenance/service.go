package maintenance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/askdb/askdb/internal/catalog"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/snapshot"
	"github.com/askdb/askdb/internal/storage"
)

type Catalog interface {
	DatabaseStats(ctx context.Context) (catalog.DatabaseStats, error)
	RecordArtifact(ctx context.Context, in catalog.RecordArtifactInput) (catalog.Artifact, error)
	ListArtifacts(ctx context.Context, kind string, limit int) ([]catalog.Artifact, error)
	StaleArtifacts(ctx context.Context, kind string, keep int, olderThan time.Time) ([]catalog.Artifact, error)
	DeleteArtifact(ctx context.Context, artifactID int64) error
}

type Snapshotter interface {
	ExportAll(ctx context.Context) (snapshot.Summary, error)
}

type Config struct {
	CheckpointInterval     time.Duration
	RetentionInterval      time.Duration
	KeepArtifacts          int
	SafetyAge              time.Duration
	BackupDir              string
	DatabaseName           string
	IntegrityArtifactLimit int
}

// Service owns the upkeep of the SQLite file and its artifact trail: vacuum
// and WAL checkpoints, full backups, parquet snapshots, artifact retention,
// and integrity checks.
type Service struct {
	DB          *sql.DB
	Catalog     Catalog
	ObjectStore storage.ObjectStore
	Snapshots   Snapshotter
	Config      Config
	Logger      *slog.Logger
	Clock       func() time.Time
}

type VacuumSummary struct {
	SizeBytesBefore      int64 `json:"size_bytes_before"`
	SizeBytesAfter       int64 `json:"size_bytes_after"`
	BytesReclaimed       int64 `json:"bytes_reclaimed"`
	WALPagesLogged       int64 `json:"wal_pages_logged"`
	WALPagesCheckpointed int64 `json:"wal_pages_checkpointed"`
}

type BackupSummary struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
}

type RetentionSummary struct {
	CandidateArtifacts int `json:"candidate_artifacts"`
	ArtifactsDeleted   int `json:"artifacts_deleted"`
	Failures           int `json:"failures"`
}

type IntegritySummary struct {
	IntegrityCheckOK     bool `json:"integrity_check_ok"`
	ForeignKeyViolations int  `json:"foreign_key_violations"`
	ArtifactsChecked     int  `json:"artifacts_checked"`
	MissingArtifacts     int  `json:"missing_artifacts"`
	SizeMismatches       int  `json:"size_mismatches"`
	OperationalFailures  int  `json:"operational_failures"`
}

// Run drives periodic upkeep until the context ends. Vacuum rides the
// checkpoint ticker, retention its own.
func (s *Service) Run(ctx context.Context) error {
	s.ensureDefaults()

	checkpointTicker := time.NewTicker(s.Config.CheckpointInterval)
	defer checkpointTicker.Stop()
	retentionTicker := time.NewTicker(s.Config.RetentionInterval)
	defer retentionTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-checkpointTicker.C:
			summary, err := s.RunVacuumOnce(ctx)
			if err != nil {
				if s.Logger != nil {
					s.Logger.ErrorContext(ctx, "vacuum cycle failed", slog.Any("error", err), slog.Any("summary", summary))
				}
				continue
			}
			if s.Logger != nil {
				s.Logger.InfoContext(ctx, "vacuum cycle completed", slog.Any("summary", summary))
			}
		case <-retentionTicker.C:
			summary, err := s.RunRetentionOnce(ctx)
			if err != nil {
				if s.Logger != nil {
					s.Logger.ErrorContext(ctx, "retention cycle failed", slog.Any("error", err), slog.Any("summary", summary))
				}
				continue
			}
			if s.Logger != nil {
				s.Logger.InfoContext(ctx, "retention cycle completed", slog.Any("summary", summary))
			}
		}
	}
}

// RunVacuumOnce compacts the database file, refreshes planner statistics and
// truncates the WAL.
func (s *Service) RunVacuumOnce(ctx context.Context) (summary VacuumSummary, err error) {
	s.ensureDefaults()
	defer func() { observability.ObserveMaintenanceRun("vacuum", err) }()
	if s.DB == nil {
		return VacuumSummary{}, fmt.Errorf("database handle is required")
	}
	if s.Catalog == nil {
		return VacuumSummary{}, fmt.Errorf("catalog is required")
	}

	statsBefore, err := s.Catalog.DatabaseStats(ctx)
	if err != nil {
		return VacuumSummary{}, fmt.Errorf("database stats before vacuum: %w", err)
	}
	summary.SizeBytesBefore = statsBefore.SizeBytes

	if _, err = s.DB.ExecContext(ctx, "VACUUM"); err != nil {
		return summary, fmt.Errorf("vacuum: %w", err)
	}
	if _, err = s.DB.ExecContext(ctx, "ANALYZE"); err != nil {
		return summary, fmt.Errorf("analyze: %w", err)
	}

	var busy, logged, checkpointed int64
	if err = s.DB.QueryRowContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)").Scan(&busy, &logged, &checkpointed); err != nil {
		return summary, fmt.Errorf("wal checkpoint: %w", err)
	}
	summary.WALPagesLogged = logged
	summary.WALPagesCheckpointed = checkpointed
	if busy != 0 {
		return summary, fmt.Errorf("wal checkpoint blocked by concurrent reader")
	}

	statsAfter, err := s.Catalog.DatabaseStats(ctx)
	if err != nil {
		return summary, fmt.Errorf("database stats after vacuum: %w", err)
	}
	summary.SizeBytesAfter = statsAfter.SizeBytes
	summary.BytesReclaimed = summary.SizeBytesBefore - summary.SizeBytesAfter
	return summary, nil
}

// RunBackupOnce writes a consistent copy of the database with VACUUM INTO,
// uploads it and records the artifact.
func (s *Service) RunBackupOnce(ctx context.Context) (summary BackupSummary, err error) {
	s.ensureDefaults()
	defer func() { observability.ObserveMaintenanceRun("backup", err) }()
	if s.DB == nil {
		return BackupSummary{}, fmt.Errorf("database handle is required")
	}
	if s.ObjectStore == nil {
		return BackupSummary{}, fmt.Errorf("object store is required")
	}
	if s.Catalog == nil {
		return BackupSummary{}, fmt.Errorf("catalog is required")
	}

	createdAt := s.Clock().UTC()
	workDir := s.Config.BackupDir
	if workDir == "" {
		workDir, err = os.MkdirTemp("", "askdb-backup-")
		if err != nil {
			return BackupSummary{}, fmt.Errorf("create backup temp dir: %w", err)
		}
		defer func() { _ = os.RemoveAll(workDir) }()
	} else if err = os.MkdirAll(workDir, 0o755); err != nil {
		return BackupSummary{}, fmt.Errorf("create backup dir: %w", err)
	}

	localPath := filepath.Join(workDir, fmt.Sprintf("%s-%d.db", s.Config.DatabaseName, createdAt.Unix()))
	defer func() { _ = os.Remove(localPath) }()

	// VACUUM INTO does not accept bound parameters, so the target path is
	// embedded as a quoted literal.
	if _, err = s.DB.ExecContext(ctx, fmt.Sprintf("VACUUM INTO %s", quoteTextLiteral(localPath))); err != nil {
		return BackupSummary{}, fmt.Errorf("vacuum into: %w", err)
	}

	stat, err := os.Stat(localPath)
	if err != nil {
		return BackupSummary{}, fmt.Errorf("stat backup file: %w", err)
	}
	file, err := os.Open(localPath)
	if err != nil {
		return BackupSummary{}, fmt.Errorf("open backup file: %w", err)
	}
	defer func() { _ = file.Close() }()

	key, err := storage.BuildBackupPath(s.Config.DatabaseName, createdAt)
	if err != nil {
		return BackupSummary{}, err
	}
	info, err := s.ObjectStore.Put(ctx, key, file, stat.Size(), storage.PutOptions{ContentType: storage.ContentTypeSQLite})
	if err != nil {
		return BackupSummary{}, fmt.Errorf("upload backup: %w", err)
	}

	if _, err = s.Catalog.RecordArtifact(ctx, catalog.RecordArtifactInput{
		Kind:      catalog.ArtifactKindBackup,
		Path:      key,
		SizeBytes: info.Size,
	}); err != nil {
		return BackupSummary{}, fmt.Errorf("record backup artifact: %w", err)
	}

	return BackupSummary{Path: key, SizeBytes: info.Size}, nil
}

// RunSnapshotOnce delegates to the parquet exporter.
func (s *Service) RunSnapshotOnce(ctx context.Context) (summary snapshot.Summary, err error) {
	s.ensureDefaults()
	defer func() { observability.ObserveMaintenanceRun("snapshot", err) }()
	if s.Snapshots == nil {
		return snapshot.Summary{}, fmt.Errorf("snapshot exporter is required")
	}
	return s.Snapshots.ExportAll(ctx)
}

// RunRetentionOnce deletes stale snapshot and backup artifacts, keeping the
// newest per table and anything younger than the safety age.
func (s *Service) RunRetentionOnce(ctx context.Context) (summary RetentionSummary, err error) {
	s.ensureDefaults()
	defer func() { observability.ObserveMaintenanceRun("retention", err) }()
	if s.Catalog == nil {
		return RetentionSummary{}, fmt.Errorf("catalog is required")
	}
	if s.ObjectStore == nil {
		return RetentionSummary{}, fmt.Errorf("object store is required")
	}

	cutoff := s.Clock().Add(-s.Config.SafetyAge)
	failures := make([]string, 0)

	for _, kind := range []string{catalog.ArtifactKindSnapshot, catalog.ArtifactKindBackup} {
		candidates, listErr := s.Catalog.StaleArtifacts(ctx, kind, s.Config.KeepArtifacts, cutoff)
		if listErr != nil {
			summary.Failures++
			failures = append(failures, fmt.Sprintf("%s candidates: %v", kind, listErr))
			continue
		}
		summary.CandidateArtifacts += len(candidates)

		for _, candidate := range candidates {
			if delErr := s.ObjectStore.Delete(ctx, candidate.Path); delErr != nil {
				summary.Failures++
				failures = append(failures, fmt.Sprintf("delete object %s: %v", candidate.Path, delErr))
				continue
			}
			if delErr := s.Catalog.DeleteArtifact(ctx, candidate.ID); delErr != nil {
				summary.Failures++
				failures = append(failures, fmt.Sprintf("delete artifact %d: %v", candidate.ID, delErr))
				continue
			}
			summary.ArtifactsDeleted++
		}
	}

	if summary.ArtifactsDeleted > 0 {
		observability.AddArtifactsDeleted(summary.ArtifactsDeleted)
	}
	if len(failures) > 0 {
		return summary, fmt.Errorf("retention encountered %d failure(s): %s", len(failures), strings.Join(failures, "; "))
	}
	return summary, nil
}

// RunIntegrityCheckOnce verifies the database file and confirms recorded
// artifacts still exist in the object store at their recorded size.
func (s *Service) RunIntegrityCheckOnce(ctx context.Context) (summary IntegritySummary, err error) {
	s.ensureDefaults()
	defer func() { observability.ObserveMaintenanceRun("integrity", err) }()
	if s.DB == nil {
		return IntegritySummary{}, fmt.Errorf("database handle is required")
	}
	if s.Catalog == nil {
		return IntegritySummary{}, fmt.Errorf("catalog is required")
	}
	if s.ObjectStore == nil {
		return IntegritySummary{}, fmt.Errorf("object store is required")
	}

	const maxIssueSamples = 20
	issueSamples := make([]string, 0, maxIssueSamples)
	issueCount := 0
	addIssue := func(message string) {
		issueCount++
		if len(issueSamples) < maxIssueSamples {
			issueSamples = append(issueSamples, message)
		}
	}

	summary.IntegrityCheckOK = true
	checkRows, err := s.DB.QueryContext(ctx, "PRAGMA integrity_check")
	if err != nil {
		return summary, fmt.Errorf("integrity_check: %w", err)
	}
	for checkRows.Next() {
		var line string
		if scanErr := checkRows.Scan(&line); scanErr != nil {
			_ = checkRows.Close()
			return summary, fmt.Errorf("scan integrity_check: %w", scanErr)
		}
		if line != "ok" {
			summary.IntegrityCheckOK = false
			addIssue(fmt.Sprintf("integrity_check: %s", line))
		}
	}
	if err = checkRows.Err(); err != nil {
		_ = checkRows.Close()
		return summary, fmt.Errorf("iterate integrity_check: %w", err)
	}
	_ = checkRows.Close()

	fkRows, err := s.DB.QueryContext(ctx, "PRAGMA foreign_key_check")
	if err != nil {
		return summary, fmt.Errorf("foreign_key_check: %w", err)
	}
	for fkRows.Next() {
		summary.ForeignKeyViolations++
	}
	if err = fkRows.Err(); err != nil {
		_ = fkRows.Close()
		return summary, fmt.Errorf("iterate foreign_key_check: %w", err)
	}
	_ = fkRows.Close()
	if summary.ForeignKeyViolations > 0 {
		addIssue(fmt.Sprintf("foreign_key_check reported %d violation(s)", summary.ForeignKeyViolations))
	}

	for _, kind := range []string{catalog.ArtifactKindSnapshot, catalog.ArtifactKindBackup} {
		artifacts, listErr := s.Catalog.ListArtifacts(ctx, kind, s.Config.IntegrityArtifactLimit)
		if listErr != nil {
			summary.OperationalFailures++
			addIssue(fmt.Sprintf("list %s artifacts: %v", kind, listErr))
			continue
		}
		for _, artifact := range artifacts {
			summary.ArtifactsChecked++
			info, statErr := s.ObjectStore.Stat(ctx, artifact.Path)
			if statErr != nil {
				if errors.Is(statErr, storage.ErrObjectNotFound) {
					summary.MissingArtifacts++
					addIssue(fmt.Sprintf("missing %s artifact %s (id=%d)", kind, artifact.Path, artifact.ID))
					continue
				}
				summary.OperationalFailures++
				addIssue(fmt.Sprintf("stat artifact %s: %v", artifact.Path, statErr))
				continue
			}
			if artifact.SizeBytes > 0 && info.Size != artifact.SizeBytes {
				summary.SizeMismatches++
				addIssue(fmt.Sprintf("size mismatch for %s (expected=%d actual=%d)", artifact.Path, artifact.SizeBytes, info.Size))
			}
		}
	}

	if issueCount > 0 {
		extra := issueCount - len(issueSamples)
		if extra > 0 {
			return summary, fmt.Errorf("integrity check found %d issue(s): %s; ... plus %d more", issueCount, strings.Join(issueSamples, "; "), extra)
		}
		return summary, fmt.Errorf("integrity check found %d issue(s): %s", issueCount, strings.Join(issueSamples, "; "))
	}
	return summary, nil
}

func (s *Service) ensureDefaults() {
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.Config.CheckpointInterval <= 0 {
		s.Config.CheckpointInterval = 5 * time.Minute
	}
	if s.Config.RetentionInterval <= 0 {
		s.Config.RetentionInterval = time.Hour
	}
	if s.Config.KeepArtifacts < 1 {
		s.Config.KeepArtifacts = 5
	}
	if s.Config.SafetyAge <= 0 {
		s.Config.SafetyAge = time.Hour
	}
	if s.Config.DatabaseName == "" {
		s.Config.DatabaseName = "product_data"
	}
	if s.Config.IntegrityArtifactLimit <= 0 {
		s.Config.IntegrityArtifactLimit = 50
	}
}

func quoteTextLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
