package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/klauspost/compress/gzip"

	"momentum/internal/types"
)

// DefaultArchiveRetention is how long notification records stay queryable
// before the archiver moves them to cold storage.
const DefaultArchiveRetention = 90 * 24 * time.Hour

// DefaultArchiveBatchSize bounds one fetch-upload-delete cycle.
const DefaultArchiveBatchSize = 1000

// ArchiveDB defines the database operations the notification archiver needs.
type ArchiveDB interface {
	// ListOlderThan returns notifications created before cutoff, oldest
	// first.
	ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*types.Notification, error)

	// DeleteByIDs removes notifications by ID, returning the count deleted.
	DeleteByIDs(ctx context.Context, ids []string) (int, error)
}

// ArchiveUploader abstracts the cold-storage upload. The archiver generates
// keys of the form "notifications/YYYY/MM/run_<nanos>_batch_<n>.jsonl.gz".
type ArchiveUploader interface {
	UploadArchive(ctx context.Context, key string, data []byte) error
}

// NotificationArchiver moves old notification records to cold storage in a
// fetch-upload-delete cycle. Records are only deleted after the upload
// succeeds, so a failure mid-cycle leaves data duplicated, never lost.
type NotificationArchiver struct {
	db       ArchiveDB
	uploader ArchiveUploader
	logger   *slog.Logger
}

// NewNotificationArchiver creates a notification archiver. uploader may be
// nil, in which case runs are skipped.
func NewNotificationArchiver(db ArchiveDB, uploader ArchiveUploader, logger *slog.Logger) *NotificationArchiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationArchiver{
		db:       db,
		uploader: uploader,
		logger:   logger,
	}
}

// Archive moves notifications older than retention to cold storage in
// batches. Returns the count of records archived and deleted.
func (a *NotificationArchiver) Archive(ctx context.Context, now time.Time, retention time.Duration, batchSize int) (int, error) {
	if a.uploader == nil {
		a.logger.WarnContext(ctx, "notification archive uploader not configured, skipping")
		return 0, nil
	}

	cutoff := now.Add(-retention)
	totalArchived := 0

	for batch := 1; ; batch++ {
		notifications, err := a.db.ListOlderThan(ctx, cutoff, batchSize)
		if err != nil {
			return totalArchived, fmt.Errorf("listing notifications for archival: %w", err)
		}
		if len(notifications) == 0 {
			break
		}

		data, err := serializeNotificationsJSONL(notifications)
		if err != nil {
			return totalArchived, fmt.Errorf("serializing notification archive: %w", err)
		}

		// The batch counter keeps keys within one run distinct; each batch's
		// rows are deleted right after its upload, so a reused key would
		// overwrite data that no longer exists anywhere else.
		key := fmt.Sprintf("notifications/%d/%02d/run_%d_batch_%04d.jsonl.gz",
			cutoff.Year(), cutoff.Month(), now.UnixNano(), batch)

		if err := a.uploader.UploadArchive(ctx, key, data); err != nil {
			return totalArchived, fmt.Errorf("uploading notification archive to %s: %w", key, err)
		}

		ids := make([]string, len(notifications))
		for i, n := range notifications {
			ids[i] = n.ID
		}
		deleted, err := a.db.DeleteByIDs(ctx, ids)
		if err != nil {
			return totalArchived, fmt.Errorf("deleting archived notifications: %w", err)
		}
		totalArchived += deleted

		a.logger.InfoContext(ctx, "archived notification batch",
			"batch_size", deleted,
			"key", key,
			"total_archived", totalArchived,
		)

		if len(notifications) < batchSize {
			break
		}
	}

	return totalArchived, nil
}

// serializeNotificationsJSONL renders one record per line and gzips the
// result.
func serializeNotificationsJSONL(notifications []*types.Notification) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	enc := json.NewEncoder(zw)

	for _, n := range notifications {
		if err := enc.Encode(n); err != nil {
			return nil, fmt.Errorf("encoding notification %s: %w", n.ID, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip stream: %w", err)
	}
	return buf.Bytes(), nil
}
