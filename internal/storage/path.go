package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

// Artifact name components: leading alphanumeric, then up to 127 word, dot
// or dash characters. Separators and traversal never match.
var componentRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// BuildSnapshotPath names a per-table parquet export, partitioned by export
// date so a bucket listing groups one day's snapshots together.
func BuildSnapshotPath(tableName string, exportedAt time.Time) (string, error) {
	return artifactPath("snapshots", tableName, "table name", "parquet", exportedAt)
}

// BuildBackupPath names a full-database backup produced by VACUUM INTO.
func BuildBackupPath(databaseName string, createdAt time.Time) (string, error) {
	return artifactPath("backups", databaseName, "database name", "db", createdAt)
}

// artifactPath lays out <kind>/date=YYYY-MM-DD/<name>-<unix>.<ext>.
func artifactPath(kind, name, field, ext string, at time.Time) (string, error) {
	if !componentRE.MatchString(name) {
		return "", fmt.Errorf("invalid %s: %q", field, name)
	}
	ts := at.UTC()
	day := "date=" + ts.Format("2006-01-02")
	return path.Join(kind, day, fmt.Sprintf("%s-%d.%s", name, ts.Unix(), ext)), nil
}
