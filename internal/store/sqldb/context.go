package sqldb

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/zhouzirui/ecokart/backend/internal/model/chat"
	"github.com/zhouzirui/ecokart/backend/internal/store"
)

func (d *DB) AddContextRecord(ctx context.Context, create *store.AddContextRecord) (*chat.ContextRecord, error) {
	data, err := encodeJSON(create.ContextData, "{}")
	if err != nil {
		return nil, err
	}

	ts := d.now()
	record := &chat.ContextRecord{
		ConversationID: create.ConversationID,
		ContextType:    create.ContextType,
		ContextData:    create.ContextData,
		CreatedAt:      fromTs(ts),
	}

	err = d.withTx(ctx, func(tx *sql.Tx) error {
		if err := d.touch(ctx, tx, create.ConversationID, ts); err != nil {
			return err
		}

		stmt := `INSERT INTO conversation_context (conversation_id, context_type, context_data, created_ts)
			VALUES (` + d.placeholders(4) + `) RETURNING id`
		var id int64
		if err := tx.QueryRowContext(ctx, stmt, create.ConversationID, create.ContextType, data, ts).Scan(&id); err != nil {
			return errors.Wrap(err, "failed to add context record")
		}
		record.ID = strconv.FormatInt(id, 10)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (d *DB) GetContextRecords(ctx context.Context, conversationID, contextType string) ([]chat.ContextRecord, error) {
	where, args := []string{"conversation_id = " + d.ph(1)}, []any{conversationID}
	if contextType != "" {
		where, args = append(where, "context_type = "+d.ph(len(args)+1)), append(args, contextType)
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT id, conversation_id, context_type, context_data, created_ts
		FROM conversation_context WHERE `+strings.Join(where, " AND ")+`
		ORDER BY created_ts DESC, id DESC`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list context records")
	}
	defer rows.Close()

	records := make([]chat.ContextRecord, 0)
	for rows.Next() {
		var (
			record chat.ContextRecord
			id     int64
			data   string
			ts     int64
		)
		if err := rows.Scan(&id, &record.ConversationID, &record.ContextType, &data, &ts); err != nil {
			return nil, errors.Wrap(err, "failed to scan context record")
		}
		record.ID = strconv.FormatInt(id, 10)
		record.CreatedAt = fromTs(ts)
		if record.ContextData, err = decodeMap(data); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate context records")
	}
	return records, nil
}

func (d *DB) GetRelevantContext(ctx context.Context, query string, limit int) ([]chat.RelevantContext, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return []chat.RelevantContext{}, nil
	}

	pattern := likePattern(query)
	stmt := `SELECT c.id, c.title, cc.context_type, cc.context_data, cc.created_ts
		FROM conversation_context cc
		JOIN conversation c ON c.id = cc.conversation_id
		WHERE ` + d.matchClause("c", 1) + `
		ORDER BY cc.created_ts DESC, cc.id DESC
		LIMIT ` + d.ph(4)

	rows, err := d.db.QueryContext(ctx, stmt, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query relevant context")
	}
	defer rows.Close()

	results := make([]chat.RelevantContext, 0, limit)
	for rows.Next() {
		var (
			item chat.RelevantContext
			data string
			ts   int64
		)
		if err := rows.Scan(&item.ConversationID, &item.ConversationTitle, &item.ContextType, &data, &ts); err != nil {
			return nil, errors.Wrap(err, "failed to scan relevant context")
		}
		item.CreatedAt = fromTs(ts)
		if item.ContextData, err = decodeMap(data); err != nil {
			return nil, err
		}
		results = append(results, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate relevant context")
	}
	return results, nil
}
