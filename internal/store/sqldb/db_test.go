package sqldb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/ecokart/backend/internal/model/chat"
	"github.com/zhouzirui/ecokart/backend/internal/store"
	"github.com/zhouzirui/ecokart/backend/internal/store/storetest"
)

func openSQLite(t *testing.T) *DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "ecokart.db")
	db, err := Open(context.Background(), DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.ContextStore {
		return openSQLite(t)
	})
}

func TestPostgresContract(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	storetest.Run(t, func(t *testing.T) store.ContextStore {
		db, err := Open(context.Background(), DriverPostgres, dsn)
		require.NoError(t, err)
		for _, table := range []string{"message", "conversation_context", "conversation"} {
			_, err := db.db.Exec(fmt.Sprintf("DELETE FROM %s", table))
			require.NoError(t, err)
		}
		t.Cleanup(func() { db.Close() })
		return db
	})
}

func TestForeignKeyCascadeEnabled(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()

	conv, err := db.CreateConversation(ctx, &store.CreateConversation{Title: "cascade"})
	require.NoError(t, err)
	_, err = db.AppendMessage(ctx, &store.AppendMessage{ConversationID: conv.ID, Role: chat.RoleUser, Content: "hi"})
	require.NoError(t, err)

	// Bypass the explicit child deletes to prove the schema cascades on its own.
	_, err = db.db.ExecContext(ctx, `DELETE FROM conversation WHERE id = ?`, conv.ID)
	require.NoError(t, err)

	var count int
	require.NoError(t, db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM message`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestReopenKeepsData(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "persist.db")
	ctx := context.Background()

	db, err := Open(ctx, DriverSQLite, dsn)
	require.NoError(t, err)
	conv, err := db.CreateConversation(ctx, &store.CreateConversation{Title: "persisted"})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(ctx, DriverSQLite, dsn)
	require.NoError(t, err)
	defer db.Close()

	detail, err := db.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "persisted", detail.Title)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "")
	require.Error(t, err)
}

func TestSQLiteDSN(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "ecokart.db", want: "file:ecokart.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"},
		{in: "file:x.db?cache=shared", want: "file:x.db?cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"},
		{in: "file:y.db?_pragma=foreign_keys(1)", want: "file:y.db?_pragma=foreign_keys(1)"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, sqliteDSN(tc.in), tc.in)
	}
}

func TestLikePatternEscapesWildcards(t *testing.T) {
	assert.Equal(t, `%50\% off\_sale%`, likePattern("50% OFF_sale"))
}
