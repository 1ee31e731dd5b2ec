// Package presence keeps the live view of who is in which voice room, fed by
// gateway events and full snapshots.
package presence

import (
	"context"
	"sort"
	"sync"

	"github.com/omega-realm/presence/internal/models"
)

// Provider answers room-membership questions.
type Provider interface {
	// MemberRoom returns the room the user is in, if any.
	MemberRoom(ctx context.Context, guildID, userID string) (string, bool)
	Rooms(ctx context.Context, guildID string) []models.Room
	Guilds(ctx context.Context) []string
}

// RoomResolver returns room metadata without members.
type RoomResolver interface {
	Room(ctx context.Context, guildID, roomID string) (models.Room, bool)
}

type roomState struct {
	meta    models.Room
	members map[string]bool // user id -> is bot
}

type guildState struct {
	rooms      map[string]*roomState
	memberRoom map[string]string
}

// Tracker is an in-process Provider and RoomResolver.
type Tracker struct {
	mu     sync.RWMutex
	guilds map[string]*guildState
}

func NewTracker() *Tracker {
	return &Tracker{guilds: make(map[string]*guildState)}
}

var (
	_ Provider     = (*Tracker)(nil)
	_ RoomResolver = (*Tracker)(nil)
)

func (t *Tracker) guild(guildID string) *guildState {
	g, ok := t.guilds[guildID]
	if !ok {
		g = &guildState{rooms: make(map[string]*roomState), memberRoom: make(map[string]string)}
		t.guilds[guildID] = g
	}
	return g
}

// ReplaceGuild swaps the guild's whole state for a fresh snapshot.
func (t *Tracker) ReplaceGuild(guildID string, rooms []models.Room) {
	t.mu.Lock()
	defer t.mu.Unlock()

	g := &guildState{rooms: make(map[string]*roomState, len(rooms)), memberRoom: make(map[string]string)}
	for _, r := range rooms {
		rs := &roomState{meta: withoutMembers(r, guildID), members: make(map[string]bool, len(r.Members))}
		for _, m := range r.Members {
			if prev, ok := g.memberRoom[m.UserID]; ok && prev != r.ID {
				if old, ok := g.rooms[prev]; ok {
					delete(old.members, m.UserID)
				}
			}
			rs.members[m.UserID] = m.IsBot
			g.memberRoom[m.UserID] = r.ID
		}
		g.rooms[r.ID] = rs
	}
	t.guilds[guildID] = g
}

// UpsertRoom records room metadata, keeping current members.
func (t *Tracker) UpsertRoom(room models.Room) {
	t.mu.Lock()
	defer t.mu.Unlock()

	g := t.guild(room.GuildID)
	rs, ok := g.rooms[room.ID]
	if !ok {
		rs = &roomState{members: make(map[string]bool)}
		g.rooms[room.ID] = rs
	}
	rs.meta = withoutMembers(room, room.GuildID)
}

// Apply moves the user according to a voice state update. Rooms first seen
// here have no category and are therefore untracked until described.
func (t *Tracker) Apply(u models.VoiceStateUpdate) {
	t.mu.Lock()
	defer t.mu.Unlock()

	g := t.guild(u.GuildID)
	if prev, ok := g.memberRoom[u.UserID]; ok {
		if rs, ok := g.rooms[prev]; ok {
			delete(rs.members, u.UserID)
		}
		delete(g.memberRoom, u.UserID)
	}
	if u.RoomID == "" {
		return
	}

	rs, ok := g.rooms[u.RoomID]
	if !ok {
		rs = &roomState{meta: models.Room{ID: u.RoomID, GuildID: u.GuildID}, members: make(map[string]bool)}
		g.rooms[u.RoomID] = rs
	}
	rs.members[u.UserID] = u.IsBot
	g.memberRoom[u.UserID] = u.RoomID
}

func (t *Tracker) MemberRoom(ctx context.Context, guildID, userID string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	g, ok := t.guilds[guildID]
	if !ok {
		return "", false
	}
	room, ok := g.memberRoom[userID]
	return room, ok
}

func (t *Tracker) Room(ctx context.Context, guildID, roomID string) (models.Room, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	g, ok := t.guilds[guildID]
	if !ok {
		return models.Room{}, false
	}
	rs, ok := g.rooms[roomID]
	if !ok {
		return models.Room{}, false
	}
	return rs.meta, true
}

// Rooms returns every known room with its members, ordered by id.
func (t *Tracker) Rooms(ctx context.Context, guildID string) []models.Room {
	t.mu.RLock()
	defer t.mu.RUnlock()

	g, ok := t.guilds[guildID]
	if !ok {
		return nil
	}
	out := make([]models.Room, 0, len(g.rooms))
	for _, rs := range g.rooms {
		r := rs.meta
		r.Members = make([]models.Member, 0, len(rs.members))
		for id, bot := range rs.members {
			r.Members = append(r.Members, models.Member{UserID: id, IsBot: bot})
		}
		sort.Slice(r.Members, func(i, j int) bool { return r.Members[i].UserID < r.Members[j].UserID })
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *Tracker) Guilds(ctx context.Context) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.guilds))
	for id := range t.guilds {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func withoutMembers(r models.Room, guildID string) models.Room {
	r.Members = nil
	r.GuildID = guildID
	return r
}
