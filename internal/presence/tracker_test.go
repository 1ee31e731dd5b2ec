package presence

import (
	"context"
	"testing"

	"github.com/omega-realm/presence/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_JoinMoveLeave(t *testing.T) {
	tr := NewTracker()
	ctx := context.Background()
	tr.UpsertRoom(models.Room{ID: "r1", GuildID: "g1", CategoryID: "voice"})

	tr.Apply(models.VoiceStateUpdate{GuildID: "g1", UserID: "u1", RoomID: "r1"})
	room, ok := tr.MemberRoom(ctx, "g1", "u1")
	require.True(t, ok)
	assert.Equal(t, "r1", room)

	tr.Apply(models.VoiceStateUpdate{GuildID: "g1", UserID: "u1", PreviousRoom: "r1", RoomID: "r2"})
	room, _ = tr.MemberRoom(ctx, "g1", "u1")
	assert.Equal(t, "r2", room)

	meta, ok := tr.Room(ctx, "g1", "r2")
	require.True(t, ok)
	assert.Empty(t, meta.CategoryID, "rooms first seen in an event are untracked")

	rooms := tr.Rooms(ctx, "g1")
	require.Len(t, rooms, 2)
	assert.Empty(t, rooms[0].Members)
	assert.Equal(t, []models.Member{{UserID: "u1"}}, rooms[1].Members)

	tr.Apply(models.VoiceStateUpdate{GuildID: "g1", UserID: "u1", PreviousRoom: "r2"})
	_, ok = tr.MemberRoom(ctx, "g1", "u1")
	assert.False(t, ok)
}

func TestReplaceGuild(t *testing.T) {
	tr := NewTracker()
	ctx := context.Background()
	tr.Apply(models.VoiceStateUpdate{GuildID: "g1", UserID: "stale", RoomID: "old"})

	tr.ReplaceGuild("g1", []models.Room{
		{ID: "r1", CategoryID: "voice", GroupID: "owls", Members: []models.Member{{UserID: "u1"}, {UserID: "bot", IsBot: true}}},
		{ID: "r2", CategoryID: "afk"},
	})

	_, ok := tr.MemberRoom(ctx, "g1", "stale")
	assert.False(t, ok)
	room, ok := tr.MemberRoom(ctx, "g1", "u1")
	require.True(t, ok)
	assert.Equal(t, "r1", room)

	meta, ok := tr.Room(ctx, "g1", "r1")
	require.True(t, ok)
	assert.Equal(t, "g1", meta.GuildID)
	assert.Equal(t, "owls", meta.GroupID)
	assert.Nil(t, meta.Members)

	rooms := tr.Rooms(ctx, "g1")
	require.Len(t, rooms, 2)
	assert.Len(t, rooms[0].HumanMembers(), 1)
	assert.Equal(t, []string{"g1"}, tr.Guilds(ctx))
}

func TestUpsertRoomKeepsMembers(t *testing.T) {
	tr := NewTracker()
	ctx := context.Background()
	tr.Apply(models.VoiceStateUpdate{GuildID: "g1", UserID: "u1", RoomID: "r1"})
	tr.UpsertRoom(models.Room{ID: "r1", GuildID: "g1", CategoryID: "voice"})

	rooms := tr.Rooms(ctx, "g1")
	require.Len(t, rooms, 1)
	assert.Equal(t, "voice", rooms[0].CategoryID)
	assert.Len(t, rooms[0].Members, 1)
}
