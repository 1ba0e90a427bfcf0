package scheduler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"momentum/internal/types"
)

type mockArchiveDB struct {
	batches [][]*types.Notification // consumed in order by ListOlderThan
	listErr error

	deleted   [][]string
	deleteErr error
}

func (m *mockArchiveDB) ListOlderThan(_ context.Context, _ time.Time, _ int) ([]*types.Notification, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	if len(m.batches) == 0 {
		return nil, nil
	}
	batch := m.batches[0]
	m.batches = m.batches[1:]
	return batch, nil
}

func (m *mockArchiveDB) DeleteByIDs(_ context.Context, ids []string) (int, error) {
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	m.deleted = append(m.deleted, ids)
	return len(ids), nil
}

type mockUploader struct {
	uploads map[string][]byte
	err     error
}

func newMockUploader() *mockUploader {
	return &mockUploader{uploads: map[string][]byte{}}
}

func (m *mockUploader) UploadArchive(_ context.Context, key string, data []byte) error {
	if m.err != nil {
		return m.err
	}
	m.uploads[key] = data
	return nil
}

var archiveNow = time.Date(2026, 3, 4, 4, 0, 0, 0, time.UTC)

func oldNotification(id string) *types.Notification {
	return &types.Notification{
		ID:        id,
		UserID:    "user_1",
		Type:      types.NotifMorningCheckin,
		Title:     "Plan your day",
		CreatedAt: archiveNow.Add(-100 * 24 * time.Hour),
	}
}

func TestArchive_UploadsThenDeletes(t *testing.T) {
	db := &mockArchiveDB{batches: [][]*types.Notification{
		{oldNotification("notif_1"), oldNotification("notif_2")},
	}}
	uploader := newMockUploader()
	a := NewNotificationArchiver(db, uploader, nil)

	count, err := a.Archive(context.Background(), archiveNow, DefaultArchiveRetention, DefaultArchiveBatchSize)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	if len(uploader.uploads) != 1 {
		t.Fatalf("uploads = %d, want 1", len(uploader.uploads))
	}
	if len(db.deleted) != 1 || len(db.deleted[0]) != 2 {
		t.Errorf("deleted = %v, want one batch of 2", db.deleted)
	}

	for key, data := range uploader.uploads {
		if !strings.HasPrefix(key, "notifications/") || !strings.HasSuffix(key, ".jsonl.gz") {
			t.Errorf("key = %q, want notifications/...jsonl.gz", key)
		}
		ids := decodeArchive(t, data)
		if len(ids) != 2 || ids[0] != "notif_1" || ids[1] != "notif_2" {
			t.Errorf("archived ids = %v", ids)
		}
	}
}

func TestArchive_UploadFailureLeavesRecords(t *testing.T) {
	db := &mockArchiveDB{batches: [][]*types.Notification{
		{oldNotification("notif_1")},
	}}
	uploader := newMockUploader()
	uploader.err = errors.New("s3 503")
	a := NewNotificationArchiver(db, uploader, nil)

	count, err := a.Archive(context.Background(), archiveNow, DefaultArchiveRetention, DefaultArchiveBatchSize)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
	if len(db.deleted) != 0 {
		t.Errorf("nothing may be deleted after a failed upload, got %v", db.deleted)
	}
}

func TestArchive_MultipleBatches(t *testing.T) {
	full := make([]*types.Notification, 3)
	for i := range full {
		full[i] = oldNotification(fmt.Sprintf("notif_%d", i))
	}
	db := &mockArchiveDB{batches: [][]*types.Notification{
		full,
		{oldNotification("notif_tail")},
	}}
	uploader := newMockUploader()
	a := NewNotificationArchiver(db, uploader, nil)

	count, err := a.Archive(context.Background(), archiveNow, DefaultArchiveRetention, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 4 {
		t.Errorf("count = %d, want 4", count)
	}
	if len(uploader.uploads) != 2 {
		t.Errorf("uploads = %d, want 2", len(uploader.uploads))
	}
}

func TestArchive_EveryBatchKeptUnderDistinctKey(t *testing.T) {
	// Batch N-1's rows are already deleted by the time batch N uploads, so a
	// key collision would overwrite the only remaining copy. Every archived
	// record must be recoverable from the uploads after the run.
	db := &mockArchiveDB{batches: [][]*types.Notification{
		{oldNotification("notif_a")},
		{oldNotification("notif_b")},
		{oldNotification("notif_c")},
	}}
	uploader := newMockUploader()
	a := NewNotificationArchiver(db, uploader, nil)

	count, err := a.Archive(context.Background(), archiveNow, DefaultArchiveRetention, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
	if len(uploader.uploads) != 3 {
		t.Fatalf("uploads = %d, want 3 distinct keys", len(uploader.uploads))
	}

	archived := map[string]bool{}
	for key, data := range uploader.uploads {
		for _, id := range decodeArchive(t, data) {
			archived[id] = true
		}
		if !strings.Contains(key, "batch_") {
			t.Errorf("key %q missing batch component", key)
		}
	}
	for _, id := range []string{"notif_a", "notif_b", "notif_c"} {
		if !archived[id] {
			t.Errorf("record %s lost: not present in any upload", id)
		}
	}
}

func TestArchive_NoUploaderSkips(t *testing.T) {
	db := &mockArchiveDB{batches: [][]*types.Notification{
		{oldNotification("notif_1")},
	}}
	a := NewNotificationArchiver(db, nil, nil)

	count, err := a.Archive(context.Background(), archiveNow, DefaultArchiveRetention, DefaultArchiveBatchSize)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}

func TestArchive_NothingOldEnough(t *testing.T) {
	db := &mockArchiveDB{}
	uploader := newMockUploader()
	a := NewNotificationArchiver(db, uploader, nil)

	count, err := a.Archive(context.Background(), archiveNow, DefaultArchiveRetention, DefaultArchiveBatchSize)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 || len(uploader.uploads) != 0 {
		t.Errorf("count = %d uploads = %d, want zero work", count, len(uploader.uploads))
	}
}

// decodeArchive gunzips the blob and returns the notification IDs line by
// line.
func decodeArchive(t *testing.T, data []byte) []string {
	t.Helper()

	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("opening gzip stream: %v", err)
	}
	defer zr.Close()

	var ids []string
	scanner := bufio.NewScanner(zr)
	for scanner.Scan() {
		var n types.Notification
		if err := json.Unmarshal(scanner.Bytes(), &n); err != nil {
			t.Fatalf("decoding archive line: %v", err)
		}
		ids = append(ids, n.ID)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scanning archive: %v", err)
	}
	return ids
}
