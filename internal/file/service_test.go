package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudshare/service/internal/account"
	"github.com/cloudshare/service/internal/quota"
	"github.com/cloudshare/service/internal/share"
)

// -------- test fakes --------

type fakeCatalog struct {
	files   map[string]*File
	nextID  int
	createE error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{files: map[string]*File{}}
}

func (c *fakeCatalog) CreateReserving(ctx context.Context, f *File, reserve func(ctx context.Context, q quota.Querier) (bool, error)) (*File, error) {
	if c.createE != nil {
		return nil, c.createE
	}
	ok, err := reserve(ctx, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrQuotaExhausted
	}
	c.nextID++
	cp := *f
	cp.ID = fmt.Sprintf("file-%d", c.nextID)
	c.files[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (c *fakeCatalog) GetByID(ctx context.Context, id string) (*File, error) {
	f, ok := c.files[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (c *fakeCatalog) GetByIDAndOwner(ctx context.Context, id, ownerID string) (*File, error) {
	f, ok := c.files[id]
	if !ok || f.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (c *fakeCatalog) ListByOwner(ctx context.Context, ownerID string, visibility *string) ([]File, error) {
	var out []File
	for _, f := range c.files {
		if f.OwnerID != ownerID {
			continue
		}
		if visibility != nil && f.Visibility != *visibility {
			continue
		}
		out = append(out, *f)
	}
	return out, nil
}

func (c *fakeCatalog) ListFavoritesByOwner(ctx context.Context, ownerID string) ([]File, error) {
	var out []File
	for _, f := range c.files {
		if f.OwnerID == ownerID && f.Favorite {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (c *fakeCatalog) SetVisibility(ctx context.Context, id, ownerID, visibility string) (*File, error) {
	f, ok := c.files[id]
	if !ok || f.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	f.Visibility = visibility
	cp := *f
	return &cp, nil
}

func (c *fakeCatalog) SetFavorite(ctx context.Context, id, ownerID string, favorite bool) (*File, error) {
	f, ok := c.files[id]
	if !ok || f.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	f.Favorite = favorite
	cp := *f
	return &cp, nil
}

func (c *fakeCatalog) DeleteOwned(ctx context.Context, id, ownerID string) (*File, error) {
	f, ok := c.files[id]
	if !ok || f.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	delete(c.files, id)
	return f, nil
}

// fakeLedger backs the quota surface with an in-memory counter guarded by a
// mutex, so the conditional increment keeps its atomicity under concurrency.
type fakeLedger struct {
	mu      sync.Mutex
	limit   int
	used    int
	status  string
	decErrs []error
}

func (l *fakeLedger) entry() *quota.Entry {
	status := l.status
	if status == "" {
		status = quota.StatusInactive
	}
	return &quota.Entry{LimitFiles: l.limit, UsedFiles: l.used, SubscriptionStatus: status}
}

func (l *fakeLedger) GetOrCreate(ctx context.Context, accountID string) (*quota.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entry(), nil
}

func (l *fakeLedger) TryIncrement(ctx context.Context, q quota.Querier, accountID string, n int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.used+n > l.limit {
		return false, nil
	}
	l.used += n
	return true, nil
}

func (l *fakeLedger) Decrement(ctx context.Context, accountID string, n int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.decErrs) > 0 {
		err := l.decErrs[0]
		l.decErrs = l.decErrs[1:]
		if err != nil {
			return err
		}
	}
	l.used -= n
	if l.used < 0 {
		l.used = 0
	}
	return nil
}

type fakeShares struct {
	grants map[string]bool // fileID|recipientID
}

func newFakeShares() *fakeShares {
	return &fakeShares{grants: map[string]bool{}}
}

func (s *fakeShares) key(fileID, recipientID string) string { return fileID + "|" + recipientID }

func (s *fakeShares) IsSharedWith(ctx context.Context, fileID, accountID string) (bool, error) {
	return s.grants[s.key(fileID, accountID)], nil
}

func (s *fakeShares) Share(ctx context.Context, fileID, ownerID, recipientEmail string) (*share.Grant, error) {
	recipientID := strings.TrimSuffix(recipientEmail, "@example.com")
	if recipientID == ownerID {
		return nil, share.ErrSelfShare
	}
	s.grants[s.key(fileID, recipientID)] = true
	return &share.Grant{ID: "grant-1", FileID: fileID, OwnerID: ownerID, RecipientID: recipientID}, nil
}

func (s *fakeShares) ListSharedWithMe(ctx context.Context, accountID string) ([]share.SharedFile, error) {
	return nil, nil
}

func (s *fakeShares) ListSharedByMe(ctx context.Context, accountID string) ([]share.SharedFile, error) {
	return nil, nil
}

func (s *fakeShares) GetSharedFile(ctx context.Context, fileID, recipientID string) (*share.SharedFile, error) {
	if !s.grants[s.key(fileID, recipientID)] {
		return nil, errors.New("grant not found")
	}
	return &share.SharedFile{FileID: fileID, SharedTo: recipientID}, nil
}

type fakeDirectory struct {
	accounts map[string]*account.Account
}

func (d *fakeDirectory) GetByID(ctx context.Context, id string) (*account.Account, error) {
	a, ok := d.accounts[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	return a, nil
}

// memStore is an in-memory storage.Storage.
type memStore struct {
	mu        sync.Mutex
	objects   map[string]int64
	uploadErr error
	deleted   []string
}

func newMemStore() *memStore {
	return &memStore{objects: map[string]int64{}}
}

func (s *memStore) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadErr != nil {
		return s.uploadErr
	}
	s.objects[key] = size
	return nil
}

func (s *memStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *memStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *memStore) PublicURL(key string) string {
	return "http://blob.test/" + key
}

// -------- helpers --------

const (
	testAccount = "acct-1"
	maxBytes    = int64(10 << 20)
	planLimit   = 100
)

func verifiedDirectory() *fakeDirectory {
	return &fakeDirectory{accounts: map[string]*account.Account{
		testAccount: {ID: testAccount, Email: testAccount + "@example.com", EmailVerified: true},
		"acct-2":    {ID: "acct-2", Email: "acct-2@example.com", EmailVerified: true},
	}}
}

func newTestService(catalog *fakeCatalog, ledger *fakeLedger, shares *fakeShares, dir *fakeDirectory, store *memStore) *Service {
	return NewService(catalog, ledger, shares, dir, store, maxBytes, planLimit)
}

func uploadInput(name string, size int64) UploadInput {
	return UploadInput{
		Name:        name,
		Size:        size,
		ContentType: "text/plain",
		Reader:      strings.NewReader(strings.Repeat("a", int(size))),
	}
}

// -------- tests --------

func TestUploadSuccess(t *testing.T) {
	catalog := newFakeCatalog()
	ledger := &fakeLedger{limit: 5}
	store := newMemStore()
	svc := newTestService(catalog, ledger, newFakeShares(), verifiedDirectory(), store)

	f, err := svc.Upload(context.Background(), testAccount, uploadInput("report.pdf", 128))
	require.NoError(t, err)

	assert.Equal(t, testAccount, f.OwnerID)
	assert.Equal(t, "report.pdf", f.Name)
	assert.Equal(t, VisibilityPrivate, f.Visibility)
	assert.Equal(t, StatusReady, f.Status)
	assert.Equal(t, 1, ledger.used)
	assert.Len(t, store.objects, 1)
}

func TestUploadUnverifiedEmail(t *testing.T) {
	dir := &fakeDirectory{accounts: map[string]*account.Account{
		testAccount: {ID: testAccount, EmailVerified: false},
	}}
	ledger := &fakeLedger{limit: 5}
	store := newMemStore()
	svc := newTestService(newFakeCatalog(), ledger, newFakeShares(), dir, store)

	_, err := svc.Upload(context.Background(), testAccount, uploadInput("a.txt", 10))
	require.ErrorIs(t, err, ErrEmailNotVerified)
	assert.Equal(t, 0, ledger.used)
	assert.Empty(t, store.objects)
}

func TestUploadQuotaExceeded(t *testing.T) {
	ledger := &fakeLedger{limit: 5, used: 5}
	store := newMemStore()
	svc := newTestService(newFakeCatalog(), ledger, newFakeShares(), verifiedDirectory(), store)

	_, err := svc.Upload(context.Background(), testAccount, uploadInput("a.txt", 10))

	var qe *QuotaExceededError
	require.ErrorAs(t, err, &qe)
	assert.False(t, qe.Subscribed)
	assert.Equal(t, planLimit, qe.PlanLimit)
	assert.Equal(t, 5, ledger.used, "used must not change on a rejected upload")
	assert.Empty(t, store.objects, "no blob may be written on a rejected upload")
}

func TestUploadQuotaExceededSubscribed(t *testing.T) {
	ledger := &fakeLedger{limit: planLimit, used: planLimit, status: quota.StatusActive}
	svc := newTestService(newFakeCatalog(), ledger, newFakeShares(), verifiedDirectory(), newMemStore())

	_, err := svc.Upload(context.Background(), testAccount, uploadInput("a.txt", 10))

	var qe *QuotaExceededError
	require.ErrorAs(t, err, &qe)
	assert.True(t, qe.Subscribed)
	assert.Equal(t, planLimit, qe.Limit)
}

func TestUploadTooLarge(t *testing.T) {
	ledger := &fakeLedger{limit: 5}
	store := newMemStore()
	svc := newTestService(newFakeCatalog(), ledger, newFakeShares(), verifiedDirectory(), store)

	_, err := svc.Upload(context.Background(), testAccount, UploadInput{
		Name: "big.bin", Size: maxBytes + 1, Reader: strings.NewReader(""),
	})

	var te *TooLargeError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "big.bin", te.Name)
	assert.Equal(t, 0, ledger.used)
	assert.Empty(t, store.objects)
}

func TestUploadBlobFailureLeavesNoRecord(t *testing.T) {
	catalog := newFakeCatalog()
	ledger := &fakeLedger{limit: 5}
	store := newMemStore()
	store.uploadErr = errors.New("connection reset")
	svc := newTestService(catalog, ledger, newFakeShares(), verifiedDirectory(), store)

	_, err := svc.Upload(context.Background(), testAccount, uploadInput("a.txt", 10))
	require.Error(t, err)
	assert.Equal(t, 0, ledger.used)
	assert.Empty(t, catalog.files)
}

func TestUploadRecordFailureDeletesBlob(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.createE = errors.New("db down")
	ledger := &fakeLedger{limit: 5}
	store := newMemStore()
	svc := newTestService(catalog, ledger, newFakeShares(), verifiedDirectory(), store)

	_, err := svc.Upload(context.Background(), testAccount, uploadInput("a.txt", 10))
	require.Error(t, err)
	assert.Equal(t, 0, ledger.used)
	assert.Empty(t, store.objects, "the orphaned blob must be removed")
	assert.Len(t, store.deleted, 1)
}

func TestUploadConcurrentNeverOvershoots(t *testing.T) {
	catalog := newFakeCatalog()
	ledger := &fakeLedger{limit: 5, used: 3}
	store := newMemStore()
	svc := newTestService(catalog, ledger, newFakeShares(), verifiedDirectory(), store)

	const attempts = 10
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Upload(context.Background(), testAccount,
				uploadInput(fmt.Sprintf("f-%d.txt", i), 10))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 2, succeeded, "only the remaining slots may be filled")
	assert.Equal(t, 5, ledger.used)
	assert.Len(t, catalog.files, 2)
	// Blobs written by losing uploads were compensated away.
	assert.Len(t, store.objects, 2)
}

func TestDeleteDecrementsQuota(t *testing.T) {
	catalog := newFakeCatalog()
	ledger := &fakeLedger{limit: 5}
	store := newMemStore()
	svc := newTestService(catalog, ledger, newFakeShares(), verifiedDirectory(), store)

	f, err := svc.Upload(context.Background(), testAccount, uploadInput("a.txt", 10))
	require.NoError(t, err)
	require.Equal(t, 1, ledger.used)

	require.NoError(t, svc.Delete(context.Background(), testAccount, f.ID))
	assert.Equal(t, 0, ledger.used)
	assert.Empty(t, store.objects)

	// Deleting again reports not found and leaves the ledger alone.
	err = svc.Delete(context.Background(), testAccount, f.ID)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, ledger.used)
}

func TestDeleteNotOwner(t *testing.T) {
	catalog := newFakeCatalog()
	ledger := &fakeLedger{limit: 5}
	svc := newTestService(catalog, ledger, newFakeShares(), verifiedDirectory(), newMemStore())

	f, err := svc.Upload(context.Background(), testAccount, uploadInput("a.txt", 10))
	require.NoError(t, err)

	err = svc.Delete(context.Background(), "acct-2", f.ID)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, catalog.files, f.ID)
	assert.Equal(t, 1, ledger.used)
}

func TestDeleteSucceedsWhenDecrementFails(t *testing.T) {
	catalog := newFakeCatalog()
	ledger := &fakeLedger{limit: 5, decErrs: []error{errors.New("db down")}}
	svc := newTestService(catalog, ledger, newFakeShares(), verifiedDirectory(), newMemStore())

	f, err := svc.Upload(context.Background(), testAccount, uploadInput("a.txt", 10))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), testAccount, f.ID))
	assert.NotContains(t, catalog.files, f.ID, "the record must be gone even when the ledger write fails")
}

func TestSetVisibility(t *testing.T) {
	catalog := newFakeCatalog()
	svc := newTestService(catalog, &fakeLedger{limit: 5}, newFakeShares(), verifiedDirectory(), newMemStore())

	f, err := svc.Upload(context.Background(), testAccount, uploadInput("a.txt", 10))
	require.NoError(t, err)

	updated, err := svc.SetVisibility(context.Background(), testAccount, f.ID, VisibilityPublic)
	require.NoError(t, err)
	assert.Equal(t, VisibilityPublic, updated.Visibility)

	_, err = svc.SetVisibility(context.Background(), testAccount, f.ID, "FRIENDS_ONLY")
	require.ErrorIs(t, err, ErrInvalidVisibility)

	_, err = svc.SetVisibility(context.Background(), "acct-2", f.ID, VisibilityPublic)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestViewUnknownFile(t *testing.T) {
	svc := newTestService(newFakeCatalog(), &fakeLedger{limit: 5}, newFakeShares(), verifiedDirectory(), newMemStore())

	_, _, err := svc.View(context.Background(), testAccount, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestViewDeniedForStranger(t *testing.T) {
	catalog := newFakeCatalog()
	svc := newTestService(catalog, &fakeLedger{limit: 5}, newFakeShares(), verifiedDirectory(), newMemStore())

	f, err := svc.Upload(context.Background(), testAccount, uploadInput("a.txt", 10))
	require.NoError(t, err)

	got, d, err := svc.View(context.Background(), "acct-2", f.ID)
	require.NoError(t, err)
	assert.False(t, d.CanView)
	assert.False(t, d.IncludeURL)
	assert.Equal(t, ReasonNotShared, d.Reason)
	assert.Equal(t, f.ID, got.ID)
}

func TestShareRequiresOwnership(t *testing.T) {
	catalog := newFakeCatalog()
	shares := newFakeShares()
	svc := newTestService(catalog, &fakeLedger{limit: 5}, shares, verifiedDirectory(), newMemStore())

	f, err := svc.Upload(context.Background(), testAccount, uploadInput("a.txt", 10))
	require.NoError(t, err)

	_, err = svc.Share(context.Background(), "acct-2", f.ID, "acct-3@example.com")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, shares.grants)

	sf, err := svc.Share(context.Background(), testAccount, f.ID, "acct-2@example.com")
	require.NoError(t, err)
	assert.Equal(t, f.ID, sf.FileID)

	shared, err := shares.IsSharedWith(context.Background(), f.ID, "acct-2")
	require.NoError(t, err)
	assert.True(t, shared)
}

func TestListByAccountFiltersToPublic(t *testing.T) {
	catalog := newFakeCatalog()
	svc := newTestService(catalog, &fakeLedger{limit: 5}, newFakeShares(), verifiedDirectory(), newMemStore())

	private, err := svc.Upload(context.Background(), testAccount, uploadInput("private.txt", 10))
	require.NoError(t, err)
	public, err := svc.Upload(context.Background(), testAccount, uploadInput("public.txt", 10))
	require.NoError(t, err)
	_, err = svc.SetVisibility(context.Background(), testAccount, public.ID, VisibilityPublic)
	require.NoError(t, err)

	own, err := svc.ListByAccount(context.Background(), testAccount, testAccount)
	require.NoError(t, err)
	assert.Len(t, own, 2)

	theirs, err := svc.ListByAccount(context.Background(), "acct-2", testAccount)
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	assert.Equal(t, public.ID, theirs[0].ID)
	assert.NotEqual(t, private.ID, theirs[0].ID)
}
