package reindex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailvault/internal/logger"
	"github.com/customeros/mailvault/internal/models"
	"github.com/customeros/mailvault/internal/repository"
)

type stubMessageRepo struct {
	known   map[string]bool
	failOn  map[string]bool
	created []models.Message
}

func (r *stubMessageRepo) GetByImmutableID(_ context.Context, _ string) (*models.Message, error) {
	return nil, nil
}

func (r *stubMessageRepo) Create(_ context.Context, message *models.Message) error {
	if r.failOn[message.InternetMessageID] {
		return fmt.Errorf("insert failed for %s", message.InternetMessageID)
	}
	r.created = append(r.created, *message)
	return nil
}

func (r *stubMessageRepo) UpdateLocation(_ context.Context, _, _, _, _ string) error { return nil }

func (r *stubMessageRepo) Quarantine(_ context.Context, _, _, _ string, _ time.Time) error {
	return nil
}

func (r *stubMessageRepo) Count(_ context.Context) (int64, error)            { return 0, nil }
func (r *stubMessageRepo) CountQuarantined(_ context.Context) (int64, error) { return 0, nil }

func (r *stubMessageRepo) ExistsByInternetMessageID(_ context.Context, id string) (bool, error) {
	return r.known[id], nil
}

func writeArtifact(t *testing.T, root, rel, messageID string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	content := fmt.Sprintf(
		"From: alice@example.com\r\nTo: bob@example.com, carol@example.com\r\nSubject: Hello\r\nDate: Mon, 03 Mar 2025 09:30:00 +0000\r\nMessage-ID: %s\r\nContent-Type: text/plain\r\n\r\nbody\r\n",
		messageID)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestService(t *testing.T, root string, repo *stubMessageRepo) *reindexService {
	t.Helper()
	log := logger.NewAppLogger(&logger.Config{LogLevel: "error", Encoder: "console"})
	log.InitLogger()
	return NewReindexService(root, log, &repository.Repositories{MessageRepository: repo})
}

func TestRun_IndexesUnknownArtifacts(t *testing.T) {
	root := t.TempDir()
	writeArtifact(t, root, "Inbox/20250303_093000_hello.eml", "<new-1@example.com>")
	writeArtifact(t, root, "Inbox/Receipts/20250303_093000_hello.eml", "<new-2@example.com>")

	repo := &stubMessageRepo{known: map[string]bool{}}
	svc := newTestService(t, root, repo)

	result, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Scanned)
	assert.Equal(t, 2, result.Indexed)
	assert.Equal(t, 0, result.Skipped)
	require.Len(t, repo.created, 2)

	byPath := map[string]models.Message{}
	for _, m := range repo.created {
		byPath[m.FolderPath] = m
	}
	inbox := byPath["Inbox"]
	assert.Equal(t, "Hello", inbox.Subject)
	assert.Equal(t, "alice@example.com", inbox.Sender)
	assert.Equal(t, []string{"bob@example.com", "carol@example.com"}, []string(inbox.Recipients))
	// Angle brackets are stripped, matching how the sync path stores the id.
	assert.Equal(t, "new-1@example.com", inbox.InternetMessageID)
	assert.Equal(t, time.Date(2025, 3, 3, 9, 30, 0, 0, time.UTC), inbox.ReceivedAt)
	assert.NotEmpty(t, inbox.ID)
	assert.Greater(t, inbox.Size, int64(0))
}

func TestRun_SkipsKnownMessageIDs(t *testing.T) {
	root := t.TempDir()
	writeArtifact(t, root, "Inbox/a.eml", "<known@example.com>")

	repo := &stubMessageRepo{known: map[string]bool{"known@example.com": true}}
	svc := newTestService(t, root, repo)

	result, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, repo.created)
}

func TestRun_IgnoresQuarantineAndForeignFiles(t *testing.T) {
	root := t.TempDir()
	writeArtifact(t, root, "_quarantine/Inbox/a.eml", "<q@example.com>")
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("not mail"), 0o644))

	repo := &stubMessageRepo{known: map[string]bool{}}
	svc := newTestService(t, root, repo)

	result, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Scanned)
	assert.Empty(t, repo.created)
}

func TestRun_CountsFailuresAndKeepsWalking(t *testing.T) {
	root := t.TempDir()
	writeArtifact(t, root, "Inbox/bad.eml", "<bad@example.com>")
	writeArtifact(t, root, "Inbox/good.eml", "<good@example.com>")

	repo := &stubMessageRepo{
		known:  map[string]bool{},
		failOn: map[string]bool{"bad@example.com": true},
	}
	svc := newTestService(t, root, repo)

	result, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Scanned)
	assert.Equal(t, 1, result.Indexed)
	assert.Equal(t, 1, result.Failures)
}
