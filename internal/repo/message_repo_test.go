package repo_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docchat/internal/model"
	"github.com/xxxsen/docchat/internal/repo"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set, skipping postgres test")
	}
	db, err := repo.Open(dsn)
	require.NoError(t, err)
	require.NoError(t, repo.ApplyMigrations(db, "../../migrations"))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMessageRepoAppendAssignsSequence(t *testing.T) {
	db := openTestDB(t)
	messages := repo.NewMessageRepo(db)
	chatID := fmt.Sprintf("chat-seq-%d", time.Now().UnixNano())

	for want := int64(1); want <= 3; want++ {
		msg, err := messages.Append(context.Background(), chatID, model.RoleUser, fmt.Sprintf("message %d", want))
		require.NoError(t, err)
		require.Equal(t, want, msg.Seq)
	}

	recent, err := messages.ListRecent(context.Background(), chatID, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
}

func TestMessageRepoAppendConcurrentSameChat(t *testing.T) {
	db := openTestDB(t)
	messages := repo.NewMessageRepo(db)
	chatID := fmt.Sprintf("chat-race-%d", time.Now().UnixNano())

	// Concurrent turns on one chat must all land with distinct seqs; the
	// losing writers retry instead of surfacing a unique violation.
	const writers = 6
	var wg sync.WaitGroup
	seqs := make([]int64, writers)
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg, err := messages.Append(context.Background(), chatID, model.RoleUser, fmt.Sprintf("message %d", i))
			if err != nil {
				errs[i] = err
				return
			}
			seqs[i] = msg.Seq
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]struct{}, writers)
	for i := 0; i < writers; i++ {
		require.NoError(t, errs[i])
		require.NotContains(t, seen, seqs[i])
		seen[seqs[i]] = struct{}{}
	}
	for want := int64(1); want <= writers; want++ {
		require.Contains(t, seen, want)
	}
}
