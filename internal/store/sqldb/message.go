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

func (d *DB) AppendMessage(ctx context.Context, create *store.AppendMessage) (*chat.Message, error) {
	if err := create.Validate(); err != nil {
		return nil, err
	}

	metadata, err := encodeJSON(create.Metadata, "{}")
	if err != nil {
		return nil, err
	}

	ts := d.now()
	msg := &chat.Message{
		ConversationID: create.ConversationID,
		Role:           create.Role,
		Content:        create.Content,
		Timestamp:      fromTs(ts),
		MessageType:    create.MessageType,
		Metadata:       create.Metadata,
	}

	err = d.withTx(ctx, func(tx *sql.Tx) error {
		if err := d.touch(ctx, tx, create.ConversationID, ts); err != nil {
			return err
		}

		fields := []string{"conversation_id", "role", "content", "content_lower", "message_type", "metadata", "created_ts"}
		args := []any{create.ConversationID, string(create.Role), create.Content, fold(create.Content), create.MessageType, metadata, ts}
		stmt := `INSERT INTO message (` + strings.Join(fields, ", ") + `) VALUES (` + d.placeholders(len(args)) + `) RETURNING id`

		var id int64
		if err := tx.QueryRowContext(ctx, stmt, args...).Scan(&id); err != nil {
			return errors.Wrap(err, "failed to append message")
		}
		msg.ID = strconv.FormatInt(id, 10)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (d *DB) listMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, message_type, metadata, created_ts
		FROM message WHERE conversation_id = `+d.ph(1)+`
		ORDER BY created_ts ASC, id ASC`, conversationID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list messages")
	}
	defer rows.Close()

	messages := make([]chat.Message, 0)
	for rows.Next() {
		var (
			msg      chat.Message
			id       int64
			role     string
			metadata string
			ts       int64
		)
		if err := rows.Scan(&id, &msg.ConversationID, &role, &msg.Content, &msg.MessageType, &metadata, &ts); err != nil {
			return nil, errors.Wrap(err, "failed to scan message")
		}
		msg.ID = strconv.FormatInt(id, 10)
		msg.Role = chat.Role(role)
		msg.Timestamp = fromTs(ts)
		if msg.Metadata, err = decodeMap(metadata); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate messages")
	}
	return messages, nil
}
