package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// GroupEntry is one group's position on a guild's presence board.
type GroupEntry struct {
	GroupID         string  `json:"group_id"`
	PresenceSeconds float64 `json:"presence_seconds"`
	Rank            int64   `json:"rank"`
}

// GroupBoard aggregates presence time per group in sorted sets.
type GroupBoard struct {
	c *Client
}

func NewGroupBoard(c *Client) *GroupBoard {
	return &GroupBoard{c: c}
}

func groupBoardKey(guildID string) string {
	return fmt.Sprintf("presence:groups:%s", guildID)
}

func groupMembersKey(guildID, groupID string) string {
	return fmt.Sprintf("presence:group:%s:%s:members", guildID, groupID)
}

// RecordGroupPresence adds duration to the group's total and to the member's
// contribution within the group.
func (b *GroupBoard) RecordGroupPresence(ctx context.Context, userID, guildID, groupID string, d time.Duration) error {
	seconds := d.Seconds()

	pipe := b.c.Pipeline()
	pipe.ZIncrBy(ctx, groupBoardKey(guildID), seconds, groupID)
	pipe.ZIncrBy(ctx, groupMembersKey(guildID, groupID), seconds, userID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record group presence: %w", err)
	}
	return nil
}

// TopGroups returns the top N groups by accumulated presence.
func (b *GroupBoard) TopGroups(ctx context.Context, guildID string, limit int64) ([]GroupEntry, error) {
	zs, err := b.c.ZRevRangeWithScores(ctx, groupBoardKey(guildID), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get top groups: %w", err)
	}
	return toEntries(zs), nil
}

// TopMembers returns the top N contributors within a group.
func (b *GroupBoard) TopMembers(ctx context.Context, guildID, groupID string, limit int64) ([]redis.Z, error) {
	zs, err := b.c.ZRevRangeWithScores(ctx, groupMembersKey(guildID, groupID), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get top group members: %w", err)
	}
	return zs, nil
}

func toEntries(zs []redis.Z) []GroupEntry {
	entries := make([]GroupEntry, 0, len(zs))
	for i, z := range zs {
		id, _ := z.Member.(string)
		entries = append(entries, GroupEntry{
			GroupID:         id,
			PresenceSeconds: z.Score,
			// ZRevRange is 0-based
			Rank: int64(i) + 1,
		})
	}
	return entries
}
