package credstore

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memBackend is an in-memory Backend for tests.
type memBackend struct {
	mu      sync.Mutex
	records map[string][]byte
}

func newMemBackend() *memBackend {
	return &memBackend{records: make(map[string][]byte)}
}

func (m *memBackend) Get(_ context.Context, userID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.records[userID], nil
}

func (m *memBackend) Put(_ context.Context, userID string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[userID] = append([]byte(nil), blob...)

	return nil
}

func (m *memBackend) Delete(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.records[userID]
	delete(m.records, userID)

	return ok, nil
}

func (m *memBackend) List(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids, nil
}

// fakeRefresher returns a fixed result and counts calls.
type fakeRefresher struct {
	calls atomic.Int32
	token string
	err   error
	delay time.Duration
}

func (f *fakeRefresher) Refresh(_ context.Context, cred *Credential) (*Credential, error) {
	f.calls.Add(1)

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	if f.err != nil {
		return nil, f.err
	}

	out := cred.clone()
	out.AccessToken = f.token
	out.Expiry = testNow.Add(time.Hour)

	return out, nil
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testCredential(expiry time.Time) *Credential {
	return &Credential{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		TokenURI:     "https://oauth2.example.com/token",
		ClientID:     "client",
		ClientSecret: "secret",
		Scopes:       []string{"https://www.googleapis.com/auth/drive.readonly"},
		Expiry:       expiry,
	}
}

func newTestStore(b Backend, r Refresher, sealer *Sealer) *Store {
	s := NewStore(b, r, sealer, slog.Default())
	s.nowFunc = func() time.Time { return testNow }

	return s
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(newMemBackend(), &fakeRefresher{}, nil)
	ctx := t.Context()

	cred := testCredential(testNow.Add(time.Hour))
	require.NoError(t, s.Save(ctx, "42", cred))

	got, err := s.Load(ctx, "42")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "42", got.UserID)
	assert.Equal(t, cred.AccessToken, got.AccessToken)
	assert.Equal(t, cred.RefreshToken, got.RefreshToken)
	assert.Equal(t, cred.TokenURI, got.TokenURI)
	assert.Equal(t, cred.ClientID, got.ClientID)
	assert.Equal(t, cred.ClientSecret, got.ClientSecret)
	assert.Equal(t, cred.Scopes, got.Scopes)
	assert.True(t, cred.Expiry.Equal(got.Expiry))
}

func TestStore_LoadAbsent(t *testing.T) {
	s := newTestStore(newMemBackend(), nil, nil)

	got, err := s.Load(t.Context(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_SaveOverwrites(t *testing.T) {
	s := newTestStore(newMemBackend(), nil, nil)
	ctx := t.Context()

	require.NoError(t, s.Save(ctx, "1", testCredential(testNow.Add(time.Hour))))

	second := testCredential(testNow.Add(2 * time.Hour))
	second.AccessToken = "access-2"
	require.NoError(t, s.Save(ctx, "1", second))

	got, err := s.Load(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "access-2", got.AccessToken)
}

func TestStore_LoadRefreshesExpired(t *testing.T) {
	backend := newMemBackend()
	refresher := &fakeRefresher{token: "access-new"}
	s := newTestStore(backend, refresher, nil)
	ctx := t.Context()

	require.NoError(t, s.Save(ctx, "7", testCredential(testNow.Add(-time.Minute))))

	got, err := s.Load(ctx, "7")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "access-new", got.AccessToken)
	assert.False(t, got.Expired(testNow))

	// The refreshed credential was persisted: a second load does not refresh.
	again, err := s.Load(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, "access-new", again.AccessToken)
	assert.Equal(t, int32(1), refresher.calls.Load())
}

func TestStore_LoadRefreshFailureDeletes(t *testing.T) {
	backend := newMemBackend()
	s := newTestStore(backend, &fakeRefresher{err: errors.New("invalid_grant")}, nil)
	ctx := t.Context()

	require.NoError(t, s.Save(ctx, "7", testCredential(testNow.Add(-time.Minute))))

	got, err := s.Load(ctx, "7")
	require.NoError(t, err)
	assert.Nil(t, got)

	blob, _ := backend.Get(ctx, "7") //nolint:errcheck // memBackend never errors
	assert.Nil(t, blob, "revoked credential must be deleted")
}

func TestStore_LoadExpiredWithoutRefreshTokenDeletes(t *testing.T) {
	backend := newMemBackend()
	refresher := &fakeRefresher{token: "unused"}
	s := newTestStore(backend, refresher, nil)
	ctx := t.Context()

	cred := testCredential(testNow.Add(-time.Minute))
	cred.RefreshToken = ""
	require.NoError(t, s.Save(ctx, "7", cred))

	got, err := s.Load(ctx, "7")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Zero(t, refresher.calls.Load())

	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestStore_LoadCorruptRecordSelfHeals(t *testing.T) {
	backend := newMemBackend()
	s := newTestStore(backend, nil, nil)
	ctx := t.Context()

	require.NoError(t, backend.Put(ctx, "9", []byte("{not json")))

	got, err := s.Load(ctx, "9")
	require.NoError(t, err)
	assert.Nil(t, got)

	existed, err := backend.Delete(ctx, "9")
	require.NoError(t, err)
	assert.False(t, existed, "corrupt record must have been removed")
}

func TestStore_LoadRefreshCanceledKeepsRecord(t *testing.T) {
	backend := newMemBackend()
	s := newTestStore(backend, &fakeRefresher{err: context.Canceled}, nil)

	require.NoError(t, s.Save(t.Context(), "7", testCredential(testNow.Add(-time.Minute))))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := s.Load(ctx, "7")
	require.ErrorIs(t, err, context.Canceled)

	blob, _ := backend.Get(t.Context(), "7") //nolint:errcheck // memBackend never errors
	assert.NotNil(t, blob)
}

func TestStore_ConcurrentLoadsShareRefresh(t *testing.T) {
	refresher := &fakeRefresher{token: "access-new", delay: 50 * time.Millisecond}
	s := newTestStore(newMemBackend(), refresher, nil)
	ctx := t.Context()

	require.NoError(t, s.Save(ctx, "7", testCredential(testNow.Add(-time.Minute))))

	var wg sync.WaitGroup

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			got, err := s.Load(ctx, "7")
			assert.NoError(t, err)
			assert.Equal(t, "access-new", got.AccessToken)
		}()
	}

	wg.Wait()
	assert.LessOrEqual(t, refresher.calls.Load(), int32(2))
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(newMemBackend(), nil, nil)
	ctx := t.Context()

	existed, err := s.Delete(ctx, "5")
	require.NoError(t, err)
	assert.False(t, existed)

	require.NoError(t, s.Save(ctx, "5", testCredential(testNow.Add(time.Hour))))

	existed, err = s.Delete(ctx, "5")
	require.NoError(t, err)
	assert.True(t, existed)

	got, err := s.Load(ctx, "5")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_Sealed(t *testing.T) {
	backend := newMemBackend()
	sealer, err := NewSealer([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	s := newTestStore(backend, nil, sealer)
	ctx := t.Context()

	require.NoError(t, s.Save(ctx, "3", testCredential(testNow.Add(time.Hour))))

	raw, err := backend.Get(ctx, "3")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "access-1")
	assert.Contains(t, string(raw), `"sealed"`)

	got, err := s.Load(ctx, "3")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "access-1", got.AccessToken)
}

func TestStore_SealedWithWrongKeyIsDiscarded(t *testing.T) {
	backend := newMemBackend()
	ctx := t.Context()

	k1, err := NewSealer([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	k2, err := NewSealer([]byte("fedcba9876543210fedcba9876543210"))
	require.NoError(t, err)

	require.NoError(t, newTestStore(backend, nil, k1).Save(ctx, "3", testCredential(testNow.Add(time.Hour))))

	got, err := newTestStore(backend, nil, k2).Load(ctx, "3")
	require.NoError(t, err)
	assert.Nil(t, got)

	blob, _ := backend.Get(ctx, "3") //nolint:errcheck // memBackend never errors
	assert.Nil(t, blob)
}

func TestStore_SealedWithoutKeyIsKept(t *testing.T) {
	backend := newMemBackend()
	ctx := t.Context()

	sealer, err := NewSealer([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	require.NoError(t, newTestStore(backend, nil, sealer).Save(ctx, "3", testCredential(testNow.Add(time.Hour))))

	got, err := newTestStore(backend, nil, nil).Load(ctx, "3")
	require.NoError(t, err)
	assert.Nil(t, got)

	blob, _ := backend.Get(ctx, "3") //nolint:errcheck // memBackend never errors
	assert.NotNil(t, blob, "record must survive a missing key")
}

func TestCredential_Expired(t *testing.T) {
	c := testCredential(time.Time{})
	assert.False(t, c.Expired(testNow), "zero expiry never expires")

	c.Expiry = testNow.Add(time.Hour)
	assert.False(t, c.Expired(testNow))

	c.Expiry = testNow.Add(5 * time.Second)
	assert.True(t, c.Expired(testNow), "within skew counts as expired")

	c.Expiry = testNow.Add(-time.Second)
	assert.True(t, c.Expired(testNow))
}
