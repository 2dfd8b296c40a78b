package repositories_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Totarae/firefly/internal/model"
	"github.com/Totarae/firefly/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStorageSuite проверяет поведение, общее для всех реализаций storage.Storage.
// newStore должен возвращать пустое хранилище с инициализированной фабрикой кодов.
func runStorageSuite(t *testing.T, newStore func(t *testing.T) storage.Storage) {
	ctx := context.Background()

	t.Run("code factory init is idempotent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.EnsureCodeFactory(ctx))
		require.NoError(t, s.EnsureCodeFactory(ctx))

		next, err := s.NextCode(ctx)
		require.NoError(t, err)
		assert.Equal(t, "0", next)
	})

	t.Run("generated codes follow the sequence", func(t *testing.T) {
		s := newStore(t)
		for i, want := range []string{"0", "1", "2"} {
			rec := model.NewURL(fmt.Sprintf("http://example.com/%d", i), model.DefaultUser, "")
			require.NoError(t, s.CreateWithNextCode(ctx, rec))
			assert.Equal(t, want, rec.Code)
		}
		next, err := s.NextCode(ctx)
		require.NoError(t, err)
		assert.Equal(t, "3", next)
	})

	t.Run("generator skips explicit codes", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateWithCode(ctx, model.NewURL("http://example.com/explicit", "bob", "1")))

		first := model.NewURL("http://example.com/a", "bob", "")
		require.NoError(t, s.CreateWithNextCode(ctx, first))
		assert.Equal(t, "0", first.Code)

		next, err := s.NextCode(ctx)
		require.NoError(t, err)
		assert.Equal(t, "2", next)

		second := model.NewURL("http://example.com/b", "bob", "")
		require.NoError(t, s.CreateWithNextCode(ctx, second))
		assert.Equal(t, "2", second.Code)
	})

	t.Run("explicit code conflict", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateWithCode(ctx, model.NewURL("http://example.com/1", "bob", "firefly")))
		err := s.CreateWithCode(ctx, model.NewURL("http://example.com/2", "alice", "firefly"))
		assert.ErrorIs(t, err, storage.ErrCodeTaken)
	})

	t.Run("duplicate user url does not advance the counter", func(t *testing.T) {
		s := newStore(t)
		rec := model.NewURL("http://example.com/", "bob", "")
		require.NoError(t, s.CreateWithNextCode(ctx, rec))

		err := s.CreateWithNextCode(ctx, model.NewURL("http://example.com/", "bob", ""))
		assert.ErrorIs(t, err, storage.ErrDuplicate)

		other := model.NewURL("http://example.com/", "alice", "")
		require.NoError(t, s.CreateWithNextCode(ctx, other))
		assert.Equal(t, "1", other.Code)

		err = s.CreateWithCode(ctx, model.NewURL("http://example.com/", "alice", "custom"))
		assert.ErrorIs(t, err, storage.ErrDuplicate)
	})

	t.Run("find", func(t *testing.T) {
		s := newStore(t)
		rec := model.NewURL("http://example.com/find", "bob", "")
		require.NoError(t, s.CreateWithNextCode(ctx, rec))

		got, err := s.FindByCode(ctx, rec.Code)
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, "http://example.com/find", got.URL)
		assert.Equal(t, "bob", got.User)
		assert.Zero(t, got.Clicks)
		assert.WithinDuration(t, rec.CreatedAt, got.CreatedAt, time.Millisecond)

		got, err = s.FindByUserURL(ctx, "bob", "http://example.com/find")
		require.NoError(t, err)
		assert.Equal(t, rec.Code, got.Code)

		_, err = s.FindByUserURL(ctx, "alice", "http://example.com/find")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		_, err = s.FindByCode(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		_, err = s.FindByCode(ctx, "Find")
		assert.ErrorIs(t, err, storage.ErrNotFound, "codes are case sensitive")
	})

	t.Run("concurrent clicks are not lost", func(t *testing.T) {
		s := newStore(t)
		rec := model.NewURL("http://example.com/clicks", "bob", "")
		require.NoError(t, s.CreateWithNextCode(ctx, rec))

		const n = 50
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.IncrementClicks(ctx, rec.Code)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := s.FindByCode(ctx, rec.Code)
		require.NoError(t, err)
		assert.Equal(t, int64(n), got.Clicks)

		_, err = s.IncrementClicks(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("concurrent creation issues distinct codes", func(t *testing.T) {
		s := newStore(t)
		const n = 20
		codes := make(chan string, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				rec := model.NewURL(fmt.Sprintf("http://example.com/%d", i), "bob", "")
				if assert.NoError(t, s.CreateWithNextCode(ctx, rec)) {
					codes <- rec.Code
				}
			}(i)
		}
		wg.Wait()
		close(codes)

		seen := make(map[string]bool)
		for c := range codes {
			assert.False(t, seen[c], "code %q issued twice", c)
			seen[c] = true
		}
		assert.Len(t, seen, n)

		next, err := s.NextCode(ctx)
		require.NoError(t, err)
		assert.Equal(t, "K", next) // 20-я позиция
	})

	t.Run("list", func(t *testing.T) {
		s := newStore(t)
		base := time.Now().UTC().Add(-time.Hour)
		for i, u := range []string{"http://b.example/", "http://a.example/", "http://c.example/"} {
			rec := model.NewURL(u, "bob", "")
			rec.CreatedAt = base.Add(time.Duration(i) * time.Minute)
			require.NoError(t, s.CreateWithNextCode(ctx, rec))
			for j := 0; j < i; j++ {
				_, err := s.IncrementClicks(ctx, rec.Code)
				require.NoError(t, err)
			}
		}
		require.NoError(t, s.CreateWithNextCode(ctx, model.NewURL("http://d.example/", "alice", "")))

		opts := model.ListOptions{User: "bob"}.Sanitize(25, 1000)
		got, err := s.List(ctx, opts)
		require.NoError(t, err)
		assert.Equal(t, []string{"http://c.example/", "http://a.example/", "http://b.example/"}, urlsOf(got))

		got, err = s.List(ctx, model.ListOptions{User: "bob", SortColumn: "url", SortOrder: "asc"}.Sanitize(25, 1000))
		require.NoError(t, err)
		assert.Equal(t, []string{"http://a.example/", "http://b.example/", "http://c.example/"}, urlsOf(got))

		got, err = s.List(ctx, model.ListOptions{User: "bob", SortColumn: "clicks", SortOrder: "asc", Limit: 2}.Sanitize(25, 1000))
		require.NoError(t, err)
		assert.Equal(t, []string{"http://b.example/", "http://a.example/"}, urlsOf(got))

		got, err = s.List(ctx, model.ListOptions{All: true}.Sanitize(25, 1000))
		require.NoError(t, err)
		assert.Len(t, got, 4)

		got, err = s.List(ctx, model.ListOptions{User: "nobody"}.Sanitize(25, 1000))
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("delete retires the code", func(t *testing.T) {
		s := newStore(t)
		rec := model.NewURL("http://example.com/gone", "bob", "")
		require.NoError(t, s.CreateWithNextCode(ctx, rec))

		assert.ErrorIs(t, s.Delete(ctx, rec.Code, "alice"), storage.ErrNotFound)
		_, err := s.FindByCode(ctx, rec.Code)
		require.NoError(t, err, "record of another user stays")

		require.NoError(t, s.Delete(ctx, rec.Code, "bob"))
		assert.ErrorIs(t, s.Delete(ctx, rec.Code, "bob"), storage.ErrNotFound)

		_, err = s.FindByCode(ctx, rec.Code)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		exists, err := s.CodeExists(ctx, rec.Code)
		require.NoError(t, err)
		assert.True(t, exists)

		err = s.CreateWithCode(ctx, model.NewURL("http://example.com/other", "alice", rec.Code))
		assert.ErrorIs(t, err, storage.ErrCodeTaken)

		again := model.NewURL("http://example.com/gone", "bob", "")
		require.NoError(t, s.CreateWithNextCode(ctx, again))
		assert.NotEqual(t, rec.Code, again.Code)
	})

	t.Run("counts", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateWithNextCode(ctx, model.NewURL("http://example.com/1", "bob", "")))
		require.NoError(t, s.CreateWithNextCode(ctx, model.NewURL("http://example.com/2", "bob", "")))
		doomed := model.NewURL("http://example.com/3", "alice", "")
		require.NoError(t, s.CreateWithNextCode(ctx, doomed))
		require.NoError(t, s.Delete(ctx, doomed.Code, "alice"))

		urls, err := s.CountURLs(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, urls)

		users, err := s.CountUsers(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, users)

		assert.NoError(t, s.Ping(ctx))
	})
}

func urlsOf(recs []*model.URL) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.URL)
	}
	return out
}
