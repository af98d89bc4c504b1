package sqldb

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/zhouzirui/ecokart/backend/internal/model/chat"
	"github.com/zhouzirui/ecokart/backend/internal/store"
)

const summaryColumns = `c.id, c.title, c.summary, c.tags, c.created_ts, c.updated_ts, COUNT(m.id)`

const summaryGroupBy = ` GROUP BY c.id, c.title, c.summary, c.tags, c.created_ts, c.updated_ts`

func (d *DB) CreateConversation(ctx context.Context, create *store.CreateConversation) (*chat.Conversation, error) {
	tags, err := encodeJSON(create.Tags, "[]")
	if err != nil {
		return nil, err
	}

	ts := d.now()
	conv := &chat.Conversation{
		ID:        uuid.NewString(),
		Title:     create.Title,
		Summary:   create.Summary,
		Tags:      create.Tags,
		CreatedAt: fromTs(ts),
		UpdatedAt: fromTs(ts),
	}

	fields := []string{"id", "title", "summary", "title_lower", "summary_lower", "tags", "created_ts", "updated_ts"}
	args := []any{conv.ID, conv.Title, conv.Summary, fold(conv.Title), fold(conv.Summary), tags, ts, ts}
	stmt := `INSERT INTO conversation (` + strings.Join(fields, ", ") + `) VALUES (` + d.placeholders(len(args)) + `)`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "failed to create conversation")
	}

	return conv, nil
}

func (d *DB) GetConversation(ctx context.Context, id string) (*chat.ConversationDetail, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, title, summary, tags, created_ts, updated_ts FROM conversation WHERE id = `+d.ph(1), id)

	var (
		detail             chat.ConversationDetail
		tags               string
		createdTs, updated int64
	)
	if err := row.Scan(&detail.ID, &detail.Title, &detail.Summary, &tags, &createdTs, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrConversationNotFound
		}
		return nil, errors.Wrap(err, "failed to get conversation")
	}
	detail.CreatedAt = fromTs(createdTs)
	detail.UpdatedAt = fromTs(updated)

	var err error
	if detail.Tags, err = decodeTags(tags); err != nil {
		return nil, err
	}

	if detail.Messages, err = d.listMessages(ctx, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

func (d *DB) ListConversations(ctx context.Context, limit int) ([]chat.ConversationSummary, error) {
	if limit <= 0 {
		limit = store.DefaultListLimit
	}

	query := `SELECT ` + summaryColumns + `
		FROM conversation c LEFT JOIN message m ON m.conversation_id = c.id` +
		summaryGroupBy + `
		ORDER BY c.updated_ts DESC
		LIMIT ` + d.ph(1)
	return d.querySummaries(ctx, query, limit)
}

func (d *DB) SearchConversations(ctx context.Context, query string) ([]chat.ConversationSummary, error) {
	if strings.TrimSpace(query) == "" {
		return []chat.ConversationSummary{}, nil
	}

	pattern := likePattern(strings.TrimSpace(query))
	stmt := `SELECT ` + summaryColumns + `
		FROM conversation c LEFT JOIN message m ON m.conversation_id = c.id
		WHERE ` + d.matchClause("c", 1) +
		summaryGroupBy + `
		ORDER BY c.updated_ts DESC`
	return d.querySummaries(ctx, stmt, pattern, pattern, pattern)
}

func (d *DB) UpdateSummary(ctx context.Context, conversationID, summary string) error {
	return d.updateText(ctx, conversationID, "summary", summary)
}

func (d *DB) UpdateTitle(ctx context.Context, conversationID, title string) error {
	return d.updateText(ctx, conversationID, "title", title)
}

// updateText sets column and its folded search copy. column is never user input.
func (d *DB) updateText(ctx context.Context, conversationID, column, value string) error {
	result, err := d.db.ExecContext(ctx,
		`UPDATE conversation SET `+column+` = `+d.ph(1)+`, `+column+`_lower = `+d.ph(2)+`, updated_ts = `+d.ph(3)+` WHERE id = `+d.ph(4),
		value, fold(value), d.now(), conversationID)
	if err != nil {
		return errors.Wrapf(err, "failed to update %s", column)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return store.ErrConversationNotFound
	}
	return nil
}

func (d *DB) DeleteConversation(ctx context.Context, id string) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		// Explicit child deletes keep this correct even where foreign keys are off.
		if _, err := tx.ExecContext(ctx, `DELETE FROM message WHERE conversation_id = `+d.ph(1), id); err != nil {
			return errors.Wrap(err, "failed to delete messages")
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_context WHERE conversation_id = `+d.ph(1), id); err != nil {
			return errors.Wrap(err, "failed to delete context records")
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM conversation WHERE id = `+d.ph(1), id)
		if err != nil {
			return errors.Wrap(err, "failed to delete conversation")
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return store.ErrConversationNotFound
		}
		return nil
	})
}

// matchClause matches the folded title, summary or any message content of
// alias against three consecutive LIKE placeholders starting at n.
func (d *DB) matchClause(alias string, n int) string {
	return `(` + alias + `.title_lower LIKE ` + d.ph(n) + ` ESCAPE '\'
		OR ` + alias + `.summary_lower LIKE ` + d.ph(n+1) + ` ESCAPE '\'
		OR EXISTS (SELECT 1 FROM message mm WHERE mm.conversation_id = ` + alias + `.id
			AND mm.content_lower LIKE ` + d.ph(n+2) + ` ESCAPE '\'))`
}

func (d *DB) querySummaries(ctx context.Context, query string, args ...any) ([]chat.ConversationSummary, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conversations")
	}
	defer rows.Close()

	list := make([]chat.ConversationSummary, 0)
	for rows.Next() {
		var (
			item               chat.ConversationSummary
			tags               string
			createdTs, updated int64
		)
		if err := rows.Scan(&item.ID, &item.Title, &item.Summary, &tags, &createdTs, &updated, &item.MessageCount); err != nil {
			return nil, errors.Wrap(err, "failed to scan conversation")
		}
		item.CreatedAt = fromTs(createdTs)
		item.UpdatedAt = fromTs(updated)
		if item.Tags, err = decodeTags(tags); err != nil {
			return nil, err
		}
		list = append(list, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate conversations")
	}
	return list, nil
}

func (d *DB) placeholders(n int) string {
	list := make([]string, 0, n)
	for i := 0; i < n; i++ {
		list = append(list, d.ph(i+1))
	}
	return strings.Join(list, ", ")
}
