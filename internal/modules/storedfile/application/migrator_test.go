package application_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/saransh1220/s3files/internal/modules/storedfile/application"
	"github.com/saransh1220/s3files/internal/modules/storedfile/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newS3Harness(t *testing.T) *harness {
	return newHarness(t, func(c *application.Config) {
		c.RemoteMode = application.RemoteModeS3
		c.CheckImages = false
	})
}

func upload(t *testing.T, h *harness, name, body string, owner *uuid.UUID) *domain.StoredFile {
	t.Helper()
	res, err := h.svc.CreateFromUpload(context.Background(), application.UploadInput{
		Reader:      strings.NewReader(body),
		Filename:    name,
		ContentType: "text/plain",
		OwnerID:     owner,
	})
	require.NoError(t, err)
	return res.File
}

func newTestMigrator(h *harness, cfg application.MigratorConfig) *application.Migrator {
	if cfg.NodeID == "" {
		cfg.NodeID = "node-a"
	}
	return application.NewMigrator(h.repo, h.local, h.remote, h.events, h.clock, nil, cfg)
}

func TestMigrator_RunOnce_Stores(t *testing.T) {
	h := newS3Harness(t)
	owner := uuid.New()
	a := upload(t, h, "a.txt", "alpha", &owner)
	b := upload(t, h, "b.txt", "bravo", nil)
	assert.Equal(t, domain.RemoteStatusLocalReady, a.RemoteStatus)

	h.clock.Advance(time.Minute)
	m := newTestMigrator(h, application.MigratorConfig{Workers: 2})
	stored, failed, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stored)
	assert.Equal(t, 0, failed)

	for _, f := range []*domain.StoredFile{a, b} {
		got, ok := h.repo.get(f.ID)
		require.True(t, ok)
		assert.Equal(t, domain.RemoteStatusRemoteOnly, got.RemoteStatus)
		require.NotNil(t, got.DateStored)
		assert.Equal(t, h.clock.Now(), *got.DateStored)
		assert.Nil(t, got.ClaimedAt)
		assert.False(t, h.local.Exists(f.GeneratedFilename), "local copy dropped")
	}
	assert.Equal(t, []byte("alpha"), h.remote.objects["uploads/"+a.GeneratedFilename])
	assert.Contains(t, h.events.types(), domain.EventStored)

	// nothing left to claim
	stored, failed, err = m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stored)
	assert.Zero(t, failed)
}

func TestMigrator_RunOnce_OnlyOwnNode(t *testing.T) {
	h := newS3Harness(t)
	f := upload(t, h, "a.txt", "alpha", nil)

	m := newTestMigrator(h, application.MigratorConfig{NodeID: "node-b"})
	stored, _, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stored)

	got, _ := h.repo.get(f.ID)
	assert.Equal(t, domain.RemoteStatusLocalReady, got.RemoteStatus)
}

func TestMigrator_RunOnce_LocalModeFilesStay(t *testing.T) {
	h := newHarness(t, nil)
	f := upload(t, h, "a.txt", "alpha", nil)

	stored, _, err := newTestMigrator(h, application.MigratorConfig{}).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stored)
	got, _ := h.repo.get(f.ID)
	assert.Equal(t, domain.RemoteStatusLocalOnly, got.RemoteStatus)
}

func TestMigrator_RunOnce_UploadFailureRetriesThenGivesUp(t *testing.T) {
	h := newS3Harness(t)
	owner := uuid.New()
	f := upload(t, h, "a.txt", "alpha", &owner)
	h.remote.uploadErr = errors.New("s3 unavailable")

	m := newTestMigrator(h, application.MigratorConfig{MaxAttempts: 2})
	ctx := context.Background()

	stored, failed, err := m.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stored)
	assert.Equal(t, 1, failed)

	got, _ := h.repo.get(f.ID)
	assert.Equal(t, domain.RemoteStatusLocalReady, got.RemoteStatus)
	assert.Equal(t, 1, got.MigrationAttempts)
	assert.True(t, h.local.Exists(f.GeneratedFilename))
	assert.NotContains(t, h.events.types(), domain.EventMigrationFailed)

	_, failed, err = m.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)
	got, _ = h.repo.get(f.ID)
	assert.Equal(t, 2, got.MigrationAttempts)
	assert.Contains(t, h.events.types(), domain.EventMigrationFailed)

	// out of attempts: no longer claimed even once S3 recovers
	h.remote.uploadErr = nil
	stored, failed, err = m.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, stored)
	assert.Zero(t, failed)
}

func TestMigrator_RunOnce_SkipsUploadWhenObjectExists(t *testing.T) {
	h := newS3Harness(t)
	f := upload(t, h, "a.txt", "alpha", nil)
	// an earlier attempt got the object up but never recorded it
	h.remote.objects["uploads/"+f.GeneratedFilename] = []byte("alpha")

	stored, failed, err := newTestMigrator(h, application.MigratorConfig{}).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stored)
	assert.Zero(t, failed)
	assert.Zero(t, h.remote.uploads)

	got, _ := h.repo.get(f.ID)
	assert.Equal(t, domain.RemoteStatusRemoteOnly, got.RemoteStatus)
	assert.False(t, h.local.Exists(f.GeneratedFilename))
}

func TestMigrator_RunOnce_ExistsFailureReleasesClaim(t *testing.T) {
	h := newS3Harness(t)
	f := upload(t, h, "a.txt", "alpha", nil)
	h.remote.existsErr = errors.New("head failed")

	stored, failed, err := newTestMigrator(h, application.MigratorConfig{}).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stored)
	assert.Equal(t, 1, failed)

	got, _ := h.repo.get(f.ID)
	assert.Equal(t, domain.RemoteStatusLocalReady, got.RemoteStatus)
	assert.Equal(t, 1, got.MigrationAttempts)
	assert.True(t, h.local.Exists(f.GeneratedFilename))
}

func TestMigrator_RunOnce_OneFailureDoesNotStopOthers(t *testing.T) {
	h := newS3Harness(t)
	a := upload(t, h, "a.txt", "alpha", nil)
	b := upload(t, h, "b.txt", "bravo", nil)
	require.NoError(t, h.local.Remove(a.GeneratedFilename))

	stored, failed, err := newTestMigrator(h, application.MigratorConfig{Workers: 1}).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stored)
	assert.Equal(t, 1, failed)

	got, _ := h.repo.get(b.ID)
	assert.Equal(t, domain.RemoteStatusRemoteOnly, got.RemoteStatus)
}

func TestMigrator_RunOnce_MissingLocalFileIsCorrupt(t *testing.T) {
	h := newS3Harness(t)
	f := upload(t, h, "a.txt", "alpha", nil)
	require.NoError(t, h.local.Remove(f.GeneratedFilename))

	_, failed, err := newTestMigrator(h, application.MigratorConfig{}).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	got, _ := h.repo.get(f.ID)
	assert.Equal(t, domain.RemoteStatusLocalCorrupt, got.RemoteStatus)
	assert.False(t, got.Valid())
	assert.Empty(t, h.remote.objects)
}

func TestMigrator_RunOnce_ResetsStaleClaims(t *testing.T) {
	h := newS3Harness(t)
	f := upload(t, h, "a.txt", "alpha", nil)
	ctx := context.Background()

	// a previous pass claimed the file and died
	claimed, err := h.repo.ClaimForMigration(ctx, "node-a", 10, 3, h.clock.Now())
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	m := newTestMigrator(h, application.MigratorConfig{ClaimTimeout: 10 * time.Minute})
	stored, _, err := m.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, stored, "claim is still fresh")

	h.clock.Advance(11 * time.Minute)
	stored, _, err = m.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stored)

	got, _ := h.repo.get(f.ID)
	assert.Equal(t, domain.RemoteStatusRemoteOnly, got.RemoteStatus)
	assert.Equal(t, 1, got.MigrationAttempts, "the abandoned claim counts as an attempt")
}

func TestMigrator_Run_StopsOnCancel(t *testing.T) {
	h := newS3Harness(t)
	upload(t, h, "a.txt", "alpha", nil)
	m := newTestMigrator(h, application.MigratorConfig{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(h.remote.keys()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("migrator did not stop")
	}
}
