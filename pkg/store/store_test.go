package store

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Open(t.TempDir(), log)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenIsIdempotent(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	s1, err := Open(dir, log)
	require.NoError(t, err)
	_, err = s1.CreateChat(context.Background(), "db1", "keep")
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	// Re-opening runs migrations again; they must be no-ops.
	s2, err := Open(dir, log)
	require.NoError(t, err)
	defer s2.Close()

	chats, err := s2.ListChats(context.Background(), "db1")
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "keep", chats[0].Title)
}

func TestCreateChatDefaults(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	chat, err := s.CreateChat(ctx, "db1", "")
	require.NoError(t, err)
	assert.NotZero(t, chat.ID)
	assert.Equal(t, "New chat", chat.Title)
	assert.Equal(t, "db1", chat.DatabaseName)
	assert.False(t, chat.Starred)
	assert.NotEmpty(t, chat.CreatedAt)
}

func TestListChatsStarredFirstThenNewest(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	first, err := s.CreateChat(ctx, "db1", "first")
	require.NoError(t, err)
	second, err := s.CreateChat(ctx, "db1", "second")
	require.NoError(t, err)
	third, err := s.CreateChat(ctx, "db1", "third")
	require.NoError(t, err)

	require.NoError(t, s.SetStarred(ctx, first.ID, true))

	chats, err := s.ListChats(ctx, "db1")
	require.NoError(t, err)
	require.Len(t, chats, 3)

	assert.Equal(t, first.ID, chats[0].ID)
	assert.True(t, chats[0].Starred)
	// Unstarred follow, newest first.
	assert.Equal(t, third.ID, chats[1].ID)
	assert.Equal(t, second.ID, chats[2].ID)
}

func TestListChatsScopedToDatabase(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	_, err := s.CreateChat(ctx, "db1", "mine")
	require.NoError(t, err)
	_, err = s.CreateChat(ctx, "db2", "other")
	require.NoError(t, err)

	chats, err := s.ListChats(ctx, "db1")
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "mine", chats[0].Title)
}

func TestAppendAndGetMessages(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	chat, err := s.CreateChat(ctx, "db1", "")
	require.NoError(t, err)

	err = s.AppendMessages(ctx, chat.ID, []ChatMessage{
		{Role: RoleUser, Content: "hello"},
		{Role: RoleToolCall, Content: "list_tables({})"},
		{Role: RoleAssistant, Content: "hi"},
	})
	require.NoError(t, err)

	messages, err := s.GetMessages(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, RoleUser, messages[0].Role)
	assert.Equal(t, "list_tables({})", messages[1].Content)
	assert.Equal(t, RoleAssistant, messages[2].Role)
}

func TestAppendCapsOversizedContent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	chat, err := s.CreateChat(ctx, "db1", "")
	require.NoError(t, err)

	huge := strings.Repeat("a", MaxMessageContentLength+5000)
	err = s.AppendMessages(ctx, chat.ID, []ChatMessage{
		{Role: RoleAssistant, Content: huge},
	})
	require.NoError(t, err)

	messages, err := s.GetMessages(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	expected := huge[:MaxMessageContentLength] + TruncationMarker
	// Write/read round-trip is stable: the stored form is exactly the
	// truncated form.
	assert.Equal(t, expected, messages[0].Content)
}

func TestDeleteChatCascades(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	doomed, err := s.CreateChat(ctx, "db1", "doomed")
	require.NoError(t, err)
	sibling, err := s.CreateChat(ctx, "db1", "sibling")
	require.NoError(t, err)

	require.NoError(t, s.AppendMessages(ctx, doomed.ID, []ChatMessage{{Role: RoleUser, Content: "x"}}))
	require.NoError(t, s.AppendMessages(ctx, sibling.ID, []ChatMessage{{Role: RoleUser, Content: "y"}}))

	require.NoError(t, s.DeleteChat(ctx, doomed.ID))

	messages, err := s.GetMessages(ctx, doomed.ID)
	require.NoError(t, err)
	assert.Empty(t, messages)

	// Sibling untouched.
	messages, err = s.GetMessages(ctx, sibling.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	chats, err := s.ListChats(ctx, "db1")
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, sibling.ID, chats[0].ID)
}

func TestRenameTitle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	chat, err := s.CreateChat(ctx, "db1", "")
	require.NoError(t, err)
	require.NoError(t, s.RenameTitle(ctx, chat.ID, "Slow query triage"))

	chats, err := s.ListChats(ctx, "db1")
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "Slow query triage", chats[0].Title)
}

func TestChatDatabase(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	chat, err := s.CreateChat(ctx, "db1", "")
	require.NoError(t, err)

	name, err := s.ChatDatabase(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, "db1", name)

	_, err = s.ChatDatabase(ctx, 99999)
	assert.Error(t, err)
}

func TestDescriptions(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	desc, err := s.GetDescription(ctx, "db1")
	require.NoError(t, err)
	assert.Equal(t, "", desc)

	require.NoError(t, s.SetDescription(ctx, "db1", "billing system"))
	require.NoError(t, s.SetDescription(ctx, "db1", "billing system v2"))

	desc, err = s.GetDescription(ctx, "db1")
	require.NoError(t, err)
	assert.Equal(t, "billing system v2", desc)
}

func TestCapContentIdempotent(t *testing.T) {
	huge := strings.Repeat("b", MaxMessageContentLength*2)

	capped := CapContent(huge)
	assert.Equal(t, CapContent(capped), capped)
	assert.True(t, strings.HasSuffix(capped, TruncationMarker))
}
