package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupBoard_RecordAndRank(t *testing.T) {
	c, _ := newTestClient(t)
	board := NewGroupBoard(c)
	ctx := context.Background()

	require.NoError(t, board.RecordGroupPresence(ctx, "u1", "g1", "red", 90*time.Second))
	require.NoError(t, board.RecordGroupPresence(ctx, "u2", "g1", "red", 30*time.Second))
	require.NoError(t, board.RecordGroupPresence(ctx, "u3", "g1", "blue", 60*time.Second))
	require.NoError(t, board.RecordGroupPresence(ctx, "u9", "g2", "blue", time.Hour))

	top, err := board.TopGroups(ctx, "g1", 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, GroupEntry{GroupID: "red", PresenceSeconds: 120, Rank: 1}, top[0])
	assert.Equal(t, GroupEntry{GroupID: "blue", PresenceSeconds: 60, Rank: 2}, top[1])

	members, err := board.TopMembers(ctx, "g1", "red", 1)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "u1", members[0].Member)
}
