// Package storetest holds behaviour checks shared by every store.ContextStore implementation.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/ecokart/backend/internal/model/chat"
	"github.com/zhouzirui/ecokart/backend/internal/store"
)

// Factory returns a fresh, empty store for each subtest.
type Factory func(t *testing.T) store.ContextStore

// Run exercises the full ContextStore contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("MessageRoundTrip", func(t *testing.T) { testMessageRoundTrip(t, newStore(t)) })
	t.Run("AppendToUnknownConversation", func(t *testing.T) { testAppendUnknown(t, newStore(t)) })
	t.Run("DeleteCascades", func(t *testing.T) { testDeleteCascades(t, newStore(t)) })
	t.Run("ListOrderedByUpdate", func(t *testing.T) { testListOrder(t, newStore(t)) })
	t.Run("SearchConversations", func(t *testing.T) { testSearch(t, newStore(t)) })
	t.Run("SearchFoldsNonASCII", func(t *testing.T) { testSearchNonASCII(t, newStore(t)) })
	t.Run("ContextRecords", func(t *testing.T) { testContextRecords(t, newStore(t)) })
	t.Run("RelevantContext", func(t *testing.T) { testRelevantContext(t, newStore(t)) })
	t.Run("UpdateSummary", func(t *testing.T) { testUpdateSummary(t, newStore(t)) })
	t.Run("UpdateTitle", func(t *testing.T) { testUpdateTitle(t, newStore(t)) })
	t.Run("Statistics", func(t *testing.T) { testStatistics(t, newStore(t)) })
}

func newConversation(t *testing.T, s store.ContextStore, title string) *chat.Conversation {
	t.Helper()
	conv, err := s.CreateConversation(context.Background(), &store.CreateConversation{Title: title})
	require.NoError(t, err)
	require.NotEmpty(t, conv.ID)
	return conv
}

func appendMessage(t *testing.T, s store.ContextStore, conversationID string, role chat.Role, content string) *chat.Message {
	t.Helper()
	msg, err := s.AppendMessage(context.Background(), &store.AppendMessage{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
	})
	require.NoError(t, err)
	return msg
}

func testMessageRoundTrip(t *testing.T, s store.ContextStore) {
	ctx := context.Background()
	conv, err := s.CreateConversation(ctx, &store.CreateConversation{
		Title:   "Laptop shopping",
		Summary: "customer comparing laptops",
		Tags:    []string{"laptop", "sales"},
	})
	require.NoError(t, err)

	first, err := s.AppendMessage(ctx, &store.AppendMessage{
		ConversationID: conv.ID,
		Role:           chat.RoleUser,
		Content:        "tell me about the UltraBook",
		MessageType:    "voice",
		Metadata:       map[string]any{"source": "microphone", "reconciled": false},
	})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	appendMessage(t, s, conv.ID, chat.RoleAssistant, "The price for UltraBook X is £999.")

	detail, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Laptop shopping", detail.Title)
	assert.Equal(t, "customer comparing laptops", detail.Summary)
	assert.Equal(t, []string{"laptop", "sales"}, detail.Tags)
	require.Len(t, detail.Messages, 2)

	got := detail.Messages[0]
	assert.Equal(t, chat.RoleUser, got.Role)
	assert.Equal(t, "tell me about the UltraBook", got.Content)
	assert.Equal(t, "voice", got.MessageType)
	assert.Equal(t, "microphone", got.Metadata["source"])
	assert.Equal(t, false, got.Metadata["reconciled"])

	second := detail.Messages[1]
	assert.Equal(t, chat.RoleAssistant, second.Role)
	assert.Equal(t, chat.DefaultMessageType, second.MessageType)
	assert.False(t, second.Timestamp.Before(got.Timestamp))
}

func testAppendUnknown(t *testing.T, s store.ContextStore) {
	ctx := context.Background()
	_, err := s.AppendMessage(ctx, &store.AppendMessage{
		ConversationID: "missing",
		Role:           chat.RoleUser,
		Content:        "hello",
	})
	require.ErrorIs(t, err, store.ErrConversationNotFound)

	_, err = s.AddContextRecord(ctx, &store.AddContextRecord{
		ConversationID: "missing",
		ContextType:    chat.ContextTypeConversation,
		ContextData:    map[string]any{"order_related": true},
	})
	require.ErrorIs(t, err, store.ErrConversationNotFound)

	_, err = s.GetConversation(ctx, "missing")
	require.ErrorIs(t, err, store.ErrConversationNotFound)
}

func testDeleteCascades(t *testing.T, s store.ContextStore) {
	ctx := context.Background()
	conv := newConversation(t, s, "Delivery question")
	appendMessage(t, s, conv.ID, chat.RoleUser, "where is my delivery")
	_, err := s.AddContextRecord(ctx, &store.AddContextRecord{
		ConversationID: conv.ID,
		ContextType:    chat.ContextTypeConversation,
		ContextData:    map[string]any{"order_related": true},
	})
	require.NoError(t, err)

	require.NoError(t, s.DeleteConversation(ctx, conv.ID))

	_, err = s.GetConversation(ctx, conv.ID)
	require.ErrorIs(t, err, store.ErrConversationNotFound)

	records, err := s.GetContextRecords(ctx, conv.ID, "")
	require.NoError(t, err)
	assert.Empty(t, records)

	relevant, err := s.GetRelevantContext(ctx, "delivery", 3)
	require.NoError(t, err)
	assert.Empty(t, relevant)

	stats, err := s.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalMessages)

	require.ErrorIs(t, s.DeleteConversation(ctx, conv.ID), store.ErrConversationNotFound)
}

func testListOrder(t *testing.T, s store.ContextStore) {
	ctx := context.Background()
	older := newConversation(t, s, "older")
	newer := newConversation(t, s, "newer")

	list, err := s.ListConversations(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)

	appendMessage(t, s, older.ID, chat.RoleUser, "bump")

	list, err = s.ListConversations(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, older.ID, list[0].ID)
	assert.Equal(t, 1, list[0].MessageCount)
	assert.Equal(t, 0, list[1].MessageCount)

	list, err = s.ListConversations(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func testSearch(t *testing.T, s store.ContextStore) {
	ctx := context.Background()
	byTitle := newConversation(t, s, "Blender returns")
	byContent := newConversation(t, s, "Session 2")
	appendMessage(t, s, byContent.ID, chat.RoleUser, "Is the BLENDER dishwasher safe?")
	newConversation(t, s, "Unrelated")

	results, err := s.SearchConversations(ctx, "blender")
	require.NoError(t, err)
	require.Len(t, results, 2)
	ids := []string{results[0].ID, results[1].ID}
	assert.ElementsMatch(t, []string{byTitle.ID, byContent.ID}, ids)
	assert.Equal(t, byContent.ID, results[0].ID, "most recently updated first")

	results, err = s.SearchConversations(ctx, "%")
	require.NoError(t, err)
	assert.Empty(t, results, "wildcards are matched literally")

	results, err = s.SearchConversations(ctx, "nothing-like-this")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func testSearchNonASCII(t *testing.T, s store.ContextStore) {
	ctx := context.Background()
	conv := newConversation(t, s, "Crème Brûlée Maker")
	appendMessage(t, s, conv.ID, chat.RoleUser, "ÉCLAIR TRAY question")
	_, err := s.AddContextRecord(ctx, &store.AddContextRecord{
		ConversationID: conv.ID,
		ContextType:    chat.ContextTypeConversation,
		ContextData:    map[string]any{"product_interest": "tray"},
	})
	require.NoError(t, err)
	newConversation(t, s, "Unrelated")

	for _, query := range []string{"éclair tray", "CRÈME BRÛLÉE", "brûlée"} {
		results, err := s.SearchConversations(ctx, query)
		require.NoError(t, err)
		require.Len(t, results, 1, query)
		assert.Equal(t, conv.ID, results[0].ID)

		relevant, err := s.GetRelevantContext(ctx, query, 3)
		require.NoError(t, err)
		require.Len(t, relevant, 1, query)
		assert.Equal(t, conv.ID, relevant[0].ConversationID)
	}
}

func testContextRecords(t *testing.T, s store.ContextStore) {
	ctx := context.Background()
	conv := newConversation(t, s, "facts")

	_, err := s.AddContextRecord(ctx, &store.AddContextRecord{
		ConversationID: conv.ID,
		ContextType:    chat.ContextTypeConversation,
		ContextData:    map[string]any{"product_interest": "laptop"},
	})
	require.NoError(t, err)
	_, err = s.AddContextRecord(ctx, &store.AddContextRecord{
		ConversationID: conv.ID,
		ContextType:    "preference",
		ContextData:    map[string]any{"colour": "blue"},
	})
	require.NoError(t, err)

	all, err := s.GetContextRecords(ctx, conv.ID, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "preference", all[0].ContextType, "newest first")

	filtered, err := s.GetContextRecords(ctx, conv.ID, chat.ContextTypeConversation)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "laptop", filtered[0].ContextData["product_interest"])
}

func testRelevantContext(t *testing.T, s store.ContextStore) {
	ctx := context.Background()
	laptop := newConversation(t, s, "Laptop chat")
	appendMessage(t, s, laptop.ID, chat.RoleUser, "I want a laptop under $500")
	for i := 0; i < 4; i++ {
		_, err := s.AddContextRecord(ctx, &store.AddContextRecord{
			ConversationID: laptop.ID,
			ContextType:    chat.ContextTypeConversation,
			ContextData:    map[string]any{"budget": 500, "seq": i},
		})
		require.NoError(t, err)
	}

	other := newConversation(t, s, "Shirts")
	_, err := s.AddContextRecord(ctx, &store.AddContextRecord{
		ConversationID: other.ID,
		ContextType:    chat.ContextTypeConversation,
		ContextData:    map[string]any{"product_interest": "shirt"},
	})
	require.NoError(t, err)

	results, err := s.GetRelevantContext(ctx, "LAPTOP", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, laptop.ID, r.ConversationID)
		assert.Equal(t, "Laptop chat", r.ConversationTitle)
		assert.EqualValues(t, 500, r.ContextData["budget"])
	}
	assert.EqualValues(t, 3, results[0].ContextData["seq"], "newest first")

	results, err = s.GetRelevantContext(ctx, "", 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func testUpdateSummary(t *testing.T, s store.ContextStore) {
	ctx := context.Background()
	conv := newConversation(t, s, "summary")

	require.NoError(t, s.UpdateSummary(ctx, conv.ID, "asked about refunds"))
	detail, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "asked about refunds", detail.Summary)
	assert.False(t, detail.UpdatedAt.Before(conv.UpdatedAt))

	results, err := s.SearchConversations(ctx, "refunds")
	require.NoError(t, err)
	assert.Len(t, results, 1)

	require.ErrorIs(t, s.UpdateSummary(ctx, "missing", "x"), store.ErrConversationNotFound)
}

func testUpdateTitle(t *testing.T, s store.ContextStore) {
	ctx := context.Background()
	conv := newConversation(t, s, "Ecokart Session - 1")

	require.NoError(t, s.UpdateTitle(ctx, conv.ID, "Übergröße Jeans"))
	detail, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Übergröße Jeans", detail.Title)
	assert.False(t, detail.UpdatedAt.Before(conv.UpdatedAt))

	results, err := s.SearchConversations(ctx, "übergröße")
	require.NoError(t, err)
	assert.Len(t, results, 1)
	results, err = s.SearchConversations(ctx, "session")
	require.NoError(t, err)
	assert.Empty(t, results, "old title no longer matches")

	require.ErrorIs(t, s.UpdateTitle(ctx, "missing", "x"), store.ErrConversationNotFound)
}

func testStatistics(t *testing.T, s store.ContextStore) {
	ctx := context.Background()

	stats, err := s.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, chat.Statistics{}, *stats)

	a := newConversation(t, s, "a")
	b := newConversation(t, s, "b")
	newConversation(t, s, "empty")
	appendMessage(t, s, a.ID, chat.RoleUser, "1")
	appendMessage(t, s, a.ID, chat.RoleAssistant, "2")
	appendMessage(t, s, b.ID, chat.RoleUser, "3")

	stats, err = s.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalConversations)
	assert.Equal(t, 3, stats.TotalMessages)
	assert.Equal(t, 3, stats.RecentConversations)
	assert.Equal(t, 1.5, stats.AvgMessagesPerConversation)
}
