package models

// Member is a user currently connected to a room.
type Member struct {
	UserID string `json:"user_id"`
	IsBot  bool   `json:"is_bot"`
}

// Room is a voice room as reported by the presence gateway.
type Room struct {
	ID         string   `json:"id"`
	GuildID    string   `json:"guild_id"`
	CategoryID string   `json:"category_id"`
	GroupID    string   `json:"group_id,omitempty"`
	Members    []Member `json:"members"`
}

// HumanMembers returns the members that are not bot or system accounts.
func (r *Room) HumanMembers() []Member {
	out := make([]Member, 0, len(r.Members))
	for _, m := range r.Members {
		if !m.IsBot {
			out = append(out, m)
		}
	}
	return out
}

// VoiceStateUpdate is a join/leave/move event. An empty RoomID means the user
// left voice entirely.
type VoiceStateUpdate struct {
	GuildID      string `json:"guild_id"`
	UserID       string `json:"user_id"`
	IsBot        bool   `json:"is_bot"`
	PreviousRoom string `json:"previous_room_id,omitempty"`
	RoomID       string `json:"room_id,omitempty"`
}
