package archive

import (
	"context"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/customeros/mailvault/interfaces"
	er "github.com/customeros/mailvault/internal/errors"
	"github.com/customeros/mailvault/internal/models"
	"github.com/customeros/mailvault/internal/repository"
	"github.com/customeros/mailvault/internal/retry"
	"github.com/customeros/mailvault/internal/utils"
)

// ---- in-memory repositories -------------------------------------------------

type memSyncStateRepo struct {
	mu     sync.Mutex
	states map[string]models.SyncState
}

func newMemSyncStateRepo() *memSyncStateRepo {
	return &memSyncStateRepo{states: map[string]models.SyncState{}}
}

func (r *memSyncStateRepo) Get(_ context.Context, mailboxID string) (*models.SyncState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.states[mailboxID]; ok {
		copied := s
		return &copied, nil
	}
	return nil, nil
}

func (r *memSyncStateRepo) Save(_ context.Context, state *models.SyncState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[state.MailboxID] = *state
	return nil
}

type memFolderRepo struct {
	mu      sync.Mutex
	folders map[string]models.Folder
}

func newMemFolderRepo() *memFolderRepo {
	return &memFolderRepo{folders: map[string]models.Folder{}}
}

func (r *memFolderRepo) GetByID(_ context.Context, id string) (*models.Folder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.folders[id]; ok {
		copied := f
		return &copied, nil
	}
	return nil, nil
}

func (r *memFolderRepo) GetAll(_ context.Context) ([]models.Folder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Folder, 0, len(r.folders))
	for _, f := range r.folders {
		out = append(out, f)
	}
	return out, nil
}

func (r *memFolderRepo) Upsert(_ context.Context, folder *models.Folder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.folders[folder.ID]; ok {
		existing.ParentID = folder.ParentID
		existing.Path = folder.Path
		existing.DisplayName = folder.DisplayName
		existing.TotalCount = folder.TotalCount
		existing.UnreadCount = folder.UnreadCount
		r.folders[folder.ID] = existing
		return nil
	}
	r.folders[folder.ID] = *folder
	return nil
}

func (r *memFolderRepo) MarkSynced(_ context.Context, id, deltaToken string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.folders[id]
	if !ok {
		return er.ErrFolderMissing
	}
	f.DeltaToken = deltaToken
	f.LastSyncAt = &at
	r.folders[id] = f
	return nil
}

type memProgressRepo struct {
	mu       sync.Mutex
	progress map[string]models.FolderSyncProgress
	saves    int
	// savedPositions records the position marker at every save, in order.
	savedPositions []int
}

func newMemProgressRepo() *memProgressRepo {
	return &memProgressRepo{progress: map[string]models.FolderSyncProgress{}}
}

func (r *memProgressRepo) Get(_ context.Context, folderID string) (*models.FolderSyncProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.progress[folderID]; ok {
		copied := p
		return &copied, nil
	}
	return nil, nil
}

func (r *memProgressRepo) Save(_ context.Context, progress *models.FolderSyncProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress[progress.FolderID] = *progress
	r.saves++
	r.savedPositions = append(r.savedPositions, progress.PendingPosition)
	return nil
}

func (r *memProgressRepo) Delete(_ context.Context, folderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.progress, folderID)
	return nil
}

func (r *memProgressRepo) GetAll(_ context.Context) ([]models.FolderSyncProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.FolderSyncProgress, 0, len(r.progress))
	for _, p := range r.progress {
		out = append(out, p)
	}
	return out, nil
}

type memMessageRepo struct {
	mu       sync.Mutex
	messages map[string]models.Message
	creates  int
}

func newMemMessageRepo() *memMessageRepo {
	return &memMessageRepo{messages: map[string]models.Message{}}
}

func (r *memMessageRepo) GetByImmutableID(_ context.Context, immutableID string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.messages[immutableID]; ok {
		copied := m
		return &copied, nil
	}
	return nil, nil
}

func (r *memMessageRepo) Create(_ context.Context, message *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.messages[message.ImmutableID]; ok {
		return fmt.Errorf("duplicate message %s", message.ImmutableID)
	}
	r.messages[message.ImmutableID] = *message
	r.creates++
	return nil
}

func (r *memMessageRepo) UpdateLocation(_ context.Context, immutableID, mutableID, folderPath, artifactPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[immutableID]
	if !ok {
		return er.ErrNotFound
	}
	if mutableID != "" {
		m.ID = mutableID
	}
	m.FolderPath = folderPath
	m.ArtifactPath = artifactPath
	r.messages[immutableID] = m
	return nil
}

func (r *memMessageRepo) Quarantine(_ context.Context, immutableID, quarantinePath, reason string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[immutableID]
	if !ok {
		return er.ErrNotFound
	}
	m.ArtifactPath = quarantinePath
	m.QuarantinedAt = &at
	m.QuarantineReason = reason
	r.messages[immutableID] = m
	return nil
}

func (r *memMessageRepo) Count(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.messages)), nil
}

func (r *memMessageRepo) CountQuarantined(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, m := range r.messages {
		if m.QuarantinedAt != nil {
			n++
		}
	}
	return n, nil
}

func (r *memMessageRepo) ExistsByInternetMessageID(_ context.Context, internetMessageID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.InternetMessageID == internetMessageID {
			return true, nil
		}
	}
	return false, nil
}

// ---- fake remote source -----------------------------------------------------

const fakePageSize = 50

type fakeSource struct {
	mu      sync.Mutex
	folders []interfaces.FolderDescriptor
	// items holds each folder's full enumeration, split into pages of
	// fakePageSize when served.
	items map[string][]interfaces.MessageDescriptor
	// deltaItems is served instead of items when a known delta token comes in.
	deltaItems map[string][]interfaces.MessageDescriptor
	content    map[string][]byte

	// expiredTokens trigger the delta-invalid error once each.
	expiredTokens map[string]bool

	contentFetches    int
	deltaCalls        int
	sinceCalls        int
	lastSinceArg      time.Time
	transientFailures int
	// contentTransientFailures makes raw content fetches fail with a
	// retryable status until it runs out.
	contentTransientFailures int
	// onContentFetch, when set, runs at the start of every content fetch.
	onContentFetch func()
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		items:         map[string][]interfaces.MessageDescriptor{},
		deltaItems:    map[string][]interfaces.MessageDescriptor{},
		content:       map[string][]byte{},
		expiredTokens: map[string]bool{},
	}
}

func (s *fakeSource) addFolder(id, parentID, name string) {
	s.folders = append(s.folders, interfaces.FolderDescriptor{ID: id, ParentID: parentID, DisplayName: name})
}

func (s *fakeSource) addMessage(folderID string, d interfaces.MessageDescriptor, raw []byte) {
	s.items[folderID] = append(s.items[folderID], d)
	s.content[d.ID] = raw
}

func (s *fakeSource) ListFolders(_ context.Context) ([]interfaces.FolderDescriptor, error) {
	return s.folders, nil
}

func (s *fakeSource) FetchDeltaPage(_ context.Context, folderID, cursor string) (*interfaces.DeltaPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deltaCalls++

	if s.transientFailures > 0 {
		s.transientFailures--
		return nil, &er.StatusError{StatusCode: 503, Status: "503 Service Unavailable"}
	}
	if s.expiredTokens[cursor] {
		delete(s.expiredTokens, cursor)
		return nil, er.ErrDeltaTokenExpired
	}

	all := s.items[folderID]
	if cursor != "" {
		if delta, ok := s.deltaItems[folderID]; ok {
			all = delta
		}
	}

	offset := 0
	if n, err := parsePageCursor(cursor); err == nil {
		offset = n
	}
	end := offset + fakePageSize
	if end >= len(all) {
		return &interfaces.DeltaPage{
			Items:       all[min(offset, len(all)):],
			FinalCursor: "delta-final-" + folderID,
		}, nil
	}
	return &interfaces.DeltaPage{
		Items:      all[offset:end],
		HasMore:    true,
		NextCursor: fmt.Sprintf("page:%d", end),
	}, nil
}

func parsePageCursor(cursor string) (int, error) {
	var n int
	_, err := fmt.Sscanf(cursor, "page:%d", &n)
	return n, err
}

func (s *fakeSource) FetchSinceDate(_ context.Context, folderID string, since time.Time) ([]interfaces.MessageDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinceCalls++
	s.lastSinceArg = since

	var out []interfaces.MessageDescriptor
	for _, d := range s.items[folderID] {
		if !d.ReceivedAt.Before(since) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *fakeSource) FetchRawContent(ctx context.Context, itemID string) ([]byte, error) {
	if s.onContentFetch != nil {
		s.onContentFetch()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.contentTransientFailures > 0 {
		s.contentTransientFailures--
		return nil, &er.StatusError{StatusCode: 503, Status: "503 Service Unavailable"}
	}
	s.contentFetches++
	raw, ok := s.content[itemID]
	if !ok {
		return nil, fmt.Errorf("no content for %s", itemID)
	}
	return raw, nil
}

// ---- fake storage -----------------------------------------------------------

type fakeStorage struct {
	mu        sync.Mutex
	artifacts map[string][]byte
	sweeps    int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{artifacts: map[string][]byte{}}
}

func (s *fakeStorage) StoreArtifact(_ context.Context, content []byte, folderPath, subject string, receivedAt time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	base := fmt.Sprintf("%s/%s_%s.eml", folderPath, receivedAt.UTC().Format("20060102_150405"), utils.SanitizeFilename(subject, 80))
	path := base
	for i := 1; ; i++ {
		if _, taken := s.artifacts[path]; !taken {
			break
		}
		path = fmt.Sprintf("%s_%d", base, i)
	}
	s.artifacts[path] = content
	return path, nil
}

func (s *fakeStorage) MoveArtifact(_ context.Context, fromPath, toFolderPath string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.artifacts[fromPath]
	if !ok {
		return "", fs.ErrNotExist
	}
	delete(s.artifacts, fromPath)
	newPath := toFolderPath + "/" + baseName(fromPath)
	s.artifacts[newPath] = content
	return newPath, nil
}

func (s *fakeStorage) MoveToQuarantine(_ context.Context, fromPath string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.artifacts[fromPath]
	if !ok {
		return "", fs.ErrNotExist
	}
	delete(s.artifacts, fromPath)
	newPath := "_quarantine/" + fromPath
	s.artifacts[newPath] = content
	return newPath, nil
}

func (s *fakeStorage) GetSize(_ context.Context, path string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.artifacts[path]
	if !ok {
		return 0, fs.ErrNotExist
	}
	return int64(len(content)), nil
}

func (s *fakeStorage) SweepTemp(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweeps++
	return nil
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

// ---- harness ----------------------------------------------------------------

type harness struct {
	service  interfaces.ArchiveService
	source   *fakeSource
	storage  *fakeStorage
	states   *memSyncStateRepo
	folders  *memFolderRepo
	progress *memProgressRepo
	messages *memMessageRepo
}

func newHarness(cfg Config) *harness {
	h := &harness{
		source:   newFakeSource(),
		storage:  newFakeStorage(),
		states:   newMemSyncStateRepo(),
		folders:  newMemFolderRepo(),
		progress: newMemProgressRepo(),
		messages: newMemMessageRepo(),
	}
	repos := &repository.Repositories{
		SyncStateRepository:          h.states,
		FolderRepository:             h.folders,
		FolderSyncProgressRepository: h.progress,
		MessageRepository:            h.messages,
	}
	svc := NewArchiveService(cfg, testLogger(), repos, h.source, h.storage)
	svc.(*archiveService).retryCfg = retry.Config{
		MaxAttempts:    3,
		BaseDelay:      time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		RateLimitDelay: time.Millisecond,
	}
	h.service = svc
	return h
}

func messageDescriptor(n int, receivedAt time.Time) interfaces.MessageDescriptor {
	return interfaces.MessageDescriptor{
		ID:                fmt.Sprintf("mutable-%d", n),
		ImmutableID:       fmt.Sprintf("immutable-%d", n),
		Subject:           fmt.Sprintf("Message %d", n),
		Sender:            "alice@example.com",
		Recipients:        []string{"bob@example.com"},
		ReceivedAt:        receivedAt,
		Size:              int64(len(rawMessage(n))),
		InternetMessageID: fmt.Sprintf("<msg-%d@example.com>", n),
	}
}

func rawMessage(n int) []byte {
	return []byte(fmt.Sprintf("From: alice@example.com\r\nSubject: Message %d\r\n\r\nbody %d\r\n", n, n))
}
