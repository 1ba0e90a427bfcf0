package reminders

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"momentum/internal/types"
)

// --- Mocks ---

type sentCall struct {
	JobID  string
	SentAt time.Time
	Note   string
}

type mockJobStore struct {
	due     []*types.ReminderJob
	listErr error
	listNow time.Time

	sent     []sentCall
	failures map[string]string // jobID -> recorded error
	failed   map[string]string // jobID -> terminal failure reason
	deleted  []string

	markSentErr error
}

func newMockJobStore(due ...*types.ReminderJob) *mockJobStore {
	return &mockJobStore{
		due:      due,
		failures: map[string]string{},
		failed:   map[string]string{},
	}
}

func (m *mockJobStore) ListDue(_ context.Context, now time.Time, _ int) ([]*types.ReminderJob, error) {
	m.listNow = now
	return m.due, m.listErr
}

func (m *mockJobStore) MarkSent(_ context.Context, jobID string, sentAt time.Time, note string) error {
	if m.markSentErr != nil {
		return m.markSentErr
	}
	m.sent = append(m.sent, sentCall{JobID: jobID, SentAt: sentAt, Note: note})
	return nil
}

func (m *mockJobStore) RecordFailure(_ context.Context, jobID string, errMsg string, _ time.Time) error {
	m.failures[jobID] = errMsg
	return nil
}

func (m *mockJobStore) MarkFailed(_ context.Context, jobID string, reason string, _ time.Time) error {
	m.failed[jobID] = reason
	return nil
}

func (m *mockJobStore) Delete(_ context.Context, jobID string) error {
	m.deleted = append(m.deleted, jobID)
	return nil
}

type mockOwnerStore struct {
	squads  map[string]*types.Squad
	clients map[string]*types.CoachingClient
}

func (m *mockOwnerStore) GetSquad(_ context.Context, id string) (*types.Squad, error) {
	return m.squads[id], nil
}

func (m *mockOwnerStore) GetClient(_ context.Context, id string) (*types.CoachingClient, error) {
	return m.clients[id], nil
}

type mockCallReader struct {
	calls map[string]*types.Call
	err   error
}

func (m *mockCallReader) GetCall(_ context.Context, id string) (*types.Call, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.calls[id], nil
}

type mockChat struct {
	messages []struct{ ChannelID, Text string }
	members  []struct{ ChannelID, UserID string }

	ensureErr error
	memberErr error
	// sendErrFor fails SendMessage for a specific channel only.
	sendErrFor map[string]error
}

func (m *mockChat) EnsureBotUser(_ context.Context) (string, error) {
	if m.ensureErr != nil {
		return "", m.ensureErr
	}
	return "bot_momentum", nil
}

func (m *mockChat) AddChannelMember(_ context.Context, channelID, userID string) error {
	if m.memberErr != nil {
		return m.memberErr
	}
	m.members = append(m.members, struct{ ChannelID, UserID string }{channelID, userID})
	return nil
}

func (m *mockChat) SendMessage(_ context.Context, channelID, text string) error {
	if err := m.sendErrFor[channelID]; err != nil {
		return err
	}
	m.messages = append(m.messages, struct{ ChannelID, Text string }{channelID, text})
	return nil
}

// --- Fixtures ---

var (
	testNow    = time.Date(2026, 3, 4, 16, 0, 0, 0, time.UTC)
	testCallAt = time.Date(2026, 3, 4, 17, 0, 0, 0, time.UTC)
)

func premiumSquad(id, channel string, callAt *time.Time) *types.Squad {
	return &types.Squad{
		ID:            id,
		Name:          "Test Squad",
		Premium:       true,
		ChatChannelID: channel,
		CallDateTime:  callAt,
		CallTimezone:  "America/New_York",
		CallTitle:     "Weekly sync",
	}
}

func standardSquad(id, channel string) *types.Squad {
	return &types.Squad{ID: id, Name: "Test Squad", ChatChannelID: channel}
}

func squadJob(id, squadID, channel, callID string) *types.ReminderJob {
	return &types.ReminderJob{
		ID:            id,
		OwnerType:     types.OwnerSquad,
		OwnerID:       squadID,
		CallID:        callID,
		CallDateTime:  testCallAt,
		ChatChannelID: channel,
		ReminderTime:  testNow.Add(-time.Minute),
		CreatedAt:     testNow.Add(-time.Hour),
	}
}

func confirmedCall(id string, start time.Time) *types.Call {
	return &types.Call{
		ID:               id,
		Status:           types.CallConfirmed,
		StartDateTimeUTC: start,
		Timezone:         "America/New_York",
		Title:            "Voted call",
	}
}

func newTestProcessor(jobs *mockJobStore, owners *mockOwnerStore, calls *mockCallReader, chat *mockChat) *Processor {
	if owners == nil {
		owners = &mockOwnerStore{}
	}
	if calls == nil {
		calls = &mockCallReader{}
	}
	if chat == nil {
		chat = &mockChat{}
	}
	return NewProcessor(jobs, owners, calls, chat, types.FixedClock{T: testNow}, nil)
}

// --- Happy paths ---

func TestRun_ReferenceTimeScopesDueQuery(t *testing.T) {
	// A replayed batch must select jobs due at the reference instant, not at
	// the wall clock.
	past := testNow.Add(-72 * time.Hour)
	jobs := newMockJobStore()
	p := newTestProcessor(jobs, nil, nil, nil)

	if _, err := p.Run(context.Background(), past); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !jobs.listNow.Equal(past) {
		t.Errorf("ListDue received now=%v, want reference time %v", jobs.listNow, past)
	}
}

func TestRun_ZeroReferenceTimeUsesClock(t *testing.T) {
	jobs := newMockJobStore()
	p := newTestProcessor(jobs, nil, nil, nil)

	if _, err := p.Run(context.Background(), time.Time{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !jobs.listNow.Equal(testNow) {
		t.Errorf("ListDue received now=%v, want clock time %v", jobs.listNow, testNow)
	}
}

func TestRun_PremiumSquadReminderSent(t *testing.T) {
	jobs := newMockJobStore(squadJob("job_1", "squad_1", "chan_1", ""))
	owners := &mockOwnerStore{squads: map[string]*types.Squad{
		"squad_1": premiumSquad("squad_1", "chan_1", &testCallAt),
	}}
	chat := &mockChat{}
	p := newTestProcessor(jobs, owners, nil, chat)

	stats, err := p.Run(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Sent != 1 || stats.Processed != 1 {
		t.Errorf("stats = %+v, want 1 processed 1 sent", stats)
	}
	if len(jobs.sent) != 1 || jobs.sent[0].JobID != "job_1" {
		t.Fatalf("sent = %+v, want job_1", jobs.sent)
	}
	if jobs.sent[0].Note != "" {
		t.Errorf("clean send must have no note, got %q", jobs.sent[0].Note)
	}
	if len(chat.messages) != 1 || chat.messages[0].ChannelID != "chan_1" {
		t.Fatalf("messages = %+v", chat.messages)
	}
	if !strings.Contains(chat.messages[0].Text, "Weekly sync") {
		t.Errorf("message %q missing call title", chat.messages[0].Text)
	}
	// 17:00 UTC is 12:00 in New York (EST).
	if !strings.Contains(chat.messages[0].Text, "12:00 PM") {
		t.Errorf("message %q must render call-local time", chat.messages[0].Text)
	}
	if len(chat.members) != 1 || chat.members[0].UserID != "bot_momentum" {
		t.Errorf("bot must be added to channel, got %+v", chat.members)
	}
}

func TestRun_StandardSquadReminderSent(t *testing.T) {
	jobs := newMockJobStore(squadJob("job_1", "squad_1", "chan_1", "call_1"))
	owners := &mockOwnerStore{squads: map[string]*types.Squad{
		"squad_1": standardSquad("squad_1", "chan_1"),
	}}
	calls := &mockCallReader{calls: map[string]*types.Call{
		"call_1": confirmedCall("call_1", testCallAt),
	}}
	p := newTestProcessor(jobs, owners, calls, nil)

	stats, err := p.Run(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Sent != 1 {
		t.Errorf("stats = %+v, want 1 sent", stats)
	}
}

// --- Staleness discards ---

func TestRun_DiscardsWhenOwnerMissing(t *testing.T) {
	jobs := newMockJobStore(squadJob("job_1", "squad_gone", "chan_1", ""))
	p := newTestProcessor(jobs, &mockOwnerStore{}, nil, nil)

	stats, err := p.Run(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.DiscardedStale != 1 || stats.Sent != 0 {
		t.Errorf("stats = %+v, want 1 discarded", stats)
	}
	if len(jobs.deleted) != 1 || jobs.deleted[0] != "job_1" {
		t.Errorf("deleted = %v, want [job_1]", jobs.deleted)
	}
}

func TestRun_DiscardsRescheduledReferencedCall(t *testing.T) {
	// Authoritative record moved to T2 != job's stored T1: delete, no message.
	jobs := newMockJobStore(squadJob("job_1", "squad_1", "chan_1", "call_1"))
	owners := &mockOwnerStore{squads: map[string]*types.Squad{
		"squad_1": standardSquad("squad_1", "chan_1"),
	}}
	calls := &mockCallReader{calls: map[string]*types.Call{
		"call_1": confirmedCall("call_1", testCallAt.Add(2*time.Hour)),
	}}
	chat := &mockChat{}
	p := newTestProcessor(jobs, owners, calls, chat)

	stats, err := p.Run(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.DiscardedStale != 1 {
		t.Errorf("stats = %+v, want 1 discarded", stats)
	}
	if len(jobs.deleted) != 1 {
		t.Errorf("job must be deleted, deleted=%v", jobs.deleted)
	}
	if len(chat.messages) != 0 {
		t.Errorf("no message may be sent for a stale job, got %d", len(chat.messages))
	}
}

func TestRun_DiscardsUnconfirmedOrMissingCall(t *testing.T) {
	tests := []struct {
		name  string
		calls map[string]*types.Call
		jobID string
	}{
		{"call record missing", map[string]*types.Call{}, "call_1"},
		{"call canceled", map[string]*types.Call{
			"call_1": {ID: "call_1", Status: types.CallCanceled, StartDateTimeUTC: testCallAt},
		}, "call_1"},
		{"call still pending", map[string]*types.Call{
			"call_1": {ID: "call_1", Status: types.CallPending, StartDateTimeUTC: testCallAt},
		}, "call_1"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			jobs := newMockJobStore(squadJob("job_1", "squad_1", "chan_1", tc.jobID))
			owners := &mockOwnerStore{squads: map[string]*types.Squad{
				"squad_1": standardSquad("squad_1", "chan_1"),
			}}
			p := newTestProcessor(jobs, owners, &mockCallReader{calls: tc.calls}, nil)

			stats, err := p.Run(context.Background(), time.Time{})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if stats.DiscardedStale != 1 {
				t.Errorf("stats = %+v, want 1 discarded", stats)
			}
		})
	}
}

func TestRun_DiscardsStandardJobWithNoCallID(t *testing.T) {
	jobs := newMockJobStore(squadJob("job_1", "squad_1", "chan_1", ""))
	owners := &mockOwnerStore{squads: map[string]*types.Squad{
		"squad_1": standardSquad("squad_1", "chan_1"),
	}}
	p := newTestProcessor(jobs, owners, nil, nil)

	stats, err := p.Run(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.DiscardedStale != 1 {
		t.Errorf("stats = %+v, want 1 discarded", stats)
	}
}

func TestRun_DiscardsPremiumSnapshotMismatch(t *testing.T) {
	moved := testCallAt.Add(time.Hour)
	jobs := newMockJobStore(squadJob("job_1", "squad_1", "chan_1", ""))
	owners := &mockOwnerStore{squads: map[string]*types.Squad{
		"squad_1": premiumSquad("squad_1", "chan_1", &moved),
	}}
	p := newTestProcessor(jobs, owners, nil, nil)

	stats, err := p.Run(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.DiscardedStale != 1 {
		t.Errorf("stats = %+v, want 1 discarded", stats)
	}
}

// --- Coaching clients ---

func TestRun_CoachingClientReminderSent(t *testing.T) {
	job := &types.ReminderJob{
		ID:           "job_1",
		OwnerType:    types.OwnerCoachingClient,
		OwnerID:      "client_1",
		CallDateTime: testCallAt,
		ReminderTime: testNow.Add(-time.Minute),
		CreatedAt:    testNow.Add(-time.Hour),
	}
	jobs := newMockJobStore(job)
	owners := &mockOwnerStore{clients: map[string]*types.CoachingClient{
		"client_1": {
			ID:            "client_1",
			ChatChannelID: "dm_1",
			CallDateTime:  &testCallAt,
			CallTimezone:  "UTC",
			CallTitle:     "Coaching session",
		},
	}}
	chat := &mockChat{}
	p := newTestProcessor(jobs, owners, nil, chat)

	stats, err := p.Run(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Sent != 1 {
		t.Errorf("stats = %+v, want 1 sent", stats)
	}
	if len(chat.messages) != 1 || chat.messages[0].ChannelID != "dm_1" {
		t.Errorf("message must go to client channel, got %+v", chat.messages)
	}
}

// --- Missing channel ---

func TestRun_MissingChannelClosesJobWithNote(t *testing.T) {
	squad := premiumSquad("squad_1", "", &testCallAt)
	jobs := newMockJobStore(squadJob("job_1", "squad_1", "", ""))
	owners := &mockOwnerStore{squads: map[string]*types.Squad{"squad_1": squad}}
	chat := &mockChat{}
	p := newTestProcessor(jobs, owners, nil, chat)

	stats, err := p.Run(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.NoChannel != 1 {
		t.Errorf("stats = %+v, want 1 no_channel", stats)
	}
	if len(jobs.sent) != 1 || jobs.sent[0].Note == "" {
		t.Errorf("job must be closed with a note, sent=%+v", jobs.sent)
	}
	if len(chat.messages) != 0 {
		t.Errorf("no message may be attempted, got %d", len(chat.messages))
	}
}

// --- Partial failure isolation ---

func TestRun_FailingJobDoesNotAbortBatch(t *testing.T) {
	// Three jobs; job 2's chat send fails. Jobs 1 and 3 still reach sent,
	// job 2 stays unsent with a recorded error.
	j1 := squadJob("job_1", "squad_1", "chan_1", "")
	j2 := squadJob("job_2", "squad_2", "chan_2", "")
	j3 := squadJob("job_3", "squad_3", "chan_3", "")
	jobs := newMockJobStore(j1, j2, j3)
	owners := &mockOwnerStore{squads: map[string]*types.Squad{
		"squad_1": premiumSquad("squad_1", "chan_1", &testCallAt),
		"squad_2": premiumSquad("squad_2", "chan_2", &testCallAt),
		"squad_3": premiumSquad("squad_3", "chan_3", &testCallAt),
	}}
	chat := &mockChat{sendErrFor: map[string]error{"chan_2": errors.New("provider 503")}}
	p := newTestProcessor(jobs, owners, nil, chat)

	stats, err := p.Run(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Sent != 2 || stats.Errors != 1 {
		t.Errorf("stats = %+v, want 2 sent 1 error", stats)
	}

	sentIDs := map[string]bool{}
	for _, s := range jobs.sent {
		sentIDs[s.JobID] = true
	}
	if !sentIDs["job_1"] || !sentIDs["job_3"] || sentIDs["job_2"] {
		t.Errorf("sent set = %v, want job_1 and job_3 only", sentIDs)
	}
	if msg, ok := jobs.failures["job_2"]; !ok || !strings.Contains(msg, "provider 503") {
		t.Errorf("job_2 failure not recorded, failures=%v", jobs.failures)
	}
}

func TestRun_StuckJobFailsTerminallyAfterMaxAttempts(t *testing.T) {
	job := squadJob("job_1", "squad_1", "chan_1", "")
	job.Attempts = DefaultMaxAttempts - 1 // this run is the final attempt
	jobs := newMockJobStore(job)
	owners := &mockOwnerStore{squads: map[string]*types.Squad{
		"squad_1": premiumSquad("squad_1", "chan_1", &testCallAt),
	}}
	chat := &mockChat{sendErrFor: map[string]error{"chan_1": errors.New("provider 503")}}
	p := newTestProcessor(jobs, owners, nil, chat)

	stats, err := p.Run(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Failed != 1 {
		t.Errorf("stats = %+v, want 1 failed", stats)
	}
	if _, ok := jobs.failed["job_1"]; !ok {
		t.Errorf("job_1 must be terminally failed, failed=%v", jobs.failed)
	}
}

func TestRun_StuckJobFailsTerminallyPastMaxAge(t *testing.T) {
	job := squadJob("job_1", "squad_1", "chan_1", "")
	job.CreatedAt = testNow.Add(-DefaultMaxAge - time.Hour)
	jobs := newMockJobStore(job)
	owners := &mockOwnerStore{squads: map[string]*types.Squad{
		"squad_1": premiumSquad("squad_1", "chan_1", &testCallAt),
	}}
	chat := &mockChat{sendErrFor: map[string]error{"chan_1": errors.New("provider 503")}}
	p := newTestProcessor(jobs, owners, nil, chat)

	stats, err := p.Run(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Failed != 1 {
		t.Errorf("stats = %+v, want 1 failed", stats)
	}
}

func TestRun_ListDueErrorAbortsRun(t *testing.T) {
	jobs := newMockJobStore()
	jobs.listErr = errors.New("db down")
	p := newTestProcessor(jobs, nil, nil, nil)

	if _, err := p.Run(context.Background(), time.Time{}); err == nil {
		t.Fatal("expected error, got nil")
	}
}
