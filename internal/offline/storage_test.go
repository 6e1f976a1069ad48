package offline

import (
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/shoppinglist/internal/conf"
)

type storageFactory func(t *testing.T) Storage

func storageBackends() map[string]storageFactory {
	return map[string]storageFactory{
		"memory": func(t *testing.T) Storage {
			t.Helper()
			return NewMemoryStorage()
		},
		"sqlite": func(t *testing.T) Storage {
			t.Helper()
			s, err := NewSQLiteStorageFromDB(setupTestDB(t))
			require.NoError(t, err)
			return s
		},
	}
}

func testEntry(key, body string) *Entry {
	return &Entry{
		Key:        key,
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/plain"}},
		Body:       []byte(body),
		StoredAt:   time.Now().UTC().Truncate(time.Second),
	}
}

func TestStorage_OpenIsIdempotent(t *testing.T) {
	t.Parallel()
	for name, factory := range storageBackends() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := factory(t)
			ctx := t.Context()

			first, err := s.Open(ctx, "v1")
			require.NoError(t, err)
			require.NoError(t, first.Put(ctx, testEntry("https://a/x", "x")))

			again, err := s.Open(ctx, "v1")
			require.NoError(t, err)
			e, ok, err := again.Match(ctx, "https://a/x")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "x", string(e.Body))

			keys, err := s.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"v1"}, keys)
		})
	}
}

func TestStorage_KeysInCreationOrder(t *testing.T) {
	t.Parallel()
	for name, factory := range storageBackends() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := factory(t)
			ctx := t.Context()
			for _, n := range []string{"v3", "v1", "v2"} {
				_, err := s.Open(ctx, n)
				require.NoError(t, err)
			}
			keys, err := s.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"v3", "v1", "v2"}, keys)
		})
	}
}

func TestStorage_DeleteRemovesEntries(t *testing.T) {
	t.Parallel()
	for name, factory := range storageBackends() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := factory(t)
			ctx := t.Context()

			old, err := s.Open(ctx, "old")
			require.NoError(t, err)
			require.NoError(t, old.Put(ctx, testEntry("https://a/x", "old")))

			deleted, err := s.Delete(ctx, "old")
			require.NoError(t, err)
			assert.True(t, deleted)

			deleted, err = s.Delete(ctx, "old")
			require.NoError(t, err)
			assert.False(t, deleted, "second delete must report a missing store")

			_, ok, err := s.Match(ctx, "https://a/x")
			require.NoError(t, err)
			assert.False(t, ok)

			keys, err := s.Keys(ctx)
			require.NoError(t, err)
			assert.Empty(t, keys)
		})
	}
}

func TestStorage_MatchSearchesOldestFirst(t *testing.T) {
	t.Parallel()
	for name, factory := range storageBackends() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := factory(t)
			ctx := t.Context()

			a, err := s.Open(ctx, "a")
			require.NoError(t, err)
			b, err := s.Open(ctx, "b")
			require.NoError(t, err)
			require.NoError(t, b.Put(ctx, testEntry("https://a/x", "from-b")))
			require.NoError(t, a.Put(ctx, testEntry("https://a/x", "from-a")))
			require.NoError(t, b.Put(ctx, testEntry("https://a/y", "only-b")))

			e, ok, err := s.Match(ctx, "https://a/x")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "from-a", string(e.Body))

			e, ok, err = s.Match(ctx, "https://a/y")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "only-b", string(e.Body))
		})
	}
}

func TestStore_PutOverwritesAndKeepsHeaders(t *testing.T) {
	t.Parallel()
	for name, factory := range storageBackends() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := factory(t)
			ctx := t.Context()

			st, err := s.Open(ctx, "v1")
			require.NoError(t, err)
			assert.Equal(t, "v1", st.Name())

			require.NoError(t, st.Put(ctx, testEntry("https://a/x", "one")))
			second := testEntry("https://a/x", "two")
			second.Header.Set("ETag", `"2"`)
			require.NoError(t, st.Put(ctx, second))

			e, ok, err := st.Match(ctx, "https://a/x")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "two", string(e.Body))
			assert.Equal(t, http.StatusOK, e.StatusCode)
			assert.Equal(t, `"2"`, e.Header.Get("ETag"))
			assert.Equal(t, "text/plain", e.Header.Get("Content-Type"))
		})
	}
}

func TestStore_PutAll(t *testing.T) {
	t.Parallel()
	for name, factory := range storageBackends() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := factory(t)
			ctx := t.Context()

			st, err := s.Open(ctx, "v1")
			require.NoError(t, err)
			entries := []*Entry{
				testEntry("https://a/1", "1"),
				testEntry("https://a/2", "2"),
				testEntry("https://a/3", "3"),
			}
			require.NoError(t, st.PutAll(ctx, entries))

			for _, want := range entries {
				got, ok, err := st.Match(ctx, want.Key)
				require.NoError(t, err)
				require.True(t, ok, want.Key)
				assert.Equal(t, want.Body, got.Body)
			}
		})
	}
}

func TestStore_PutAllIsAllOrNothing(t *testing.T) {
	t.Parallel()
	for name, factory := range storageBackends() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := factory(t)
			ctx := t.Context()

			st, err := s.Open(ctx, "v1")
			require.NoError(t, err)
			require.NoError(t, st.Put(ctx, testEntry("https://a/1", "old")))

			// The bad entry comes last so earlier rows are written before the failure.
			batch := []*Entry{
				testEntry("https://a/1", "new"),
				testEntry("https://a/2", "2"),
				{StatusCode: http.StatusOK, Header: http.Header{}},
			}
			err = st.PutAll(ctx, batch)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidEntry)

			got, ok, err := st.Match(ctx, "https://a/1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "old", string(got.Body), "a failed batch must not overwrite entries")

			_, ok, err = st.Match(ctx, "https://a/2")
			require.NoError(t, err)
			assert.False(t, ok, "a failed batch must not add entries")
		})
	}
}

func TestStore_PutRejectsEntryWithoutKey(t *testing.T) {
	t.Parallel()
	for name, factory := range storageBackends() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			st, err := factory(t).Open(t.Context(), "v1")
			require.NoError(t, err)
			assert.ErrorIs(t, st.Put(t.Context(), nil), ErrInvalidEntry)
			assert.ErrorIs(t, st.Put(t.Context(), &Entry{}), ErrInvalidEntry)
		})
	}
}

func TestSQLiteStorage_SurvivesReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "offline.db")
	ctx := t.Context()

	s, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	st, err := s.Open(ctx, "v1")
	require.NoError(t, err)
	require.NoError(t, st.Put(ctx, testEntry("https://a/x", "persisted")))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStorage(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	e, ok, err := s.Match(ctx, "https://a/x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "persisted", string(e.Body))
}

func TestNewStorage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		backend string
		wantErr bool
	}{
		{name: "default is memory", backend: ""},
		{name: "memory", backend: conf.BackendMemory},
		{name: "sqlite", backend: conf.BackendSQLite},
		{name: "unknown", backend: "redis", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, err := NewStorage(conf.CacheSettings{
				Backend: tt.backend,
				Path:    filepath.Join(t.TempDir(), "offline.db"),
			})
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, s)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, s)
			assert.NoError(t, s.Close())
		})
	}
}
