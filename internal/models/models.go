package models

import "time"

// Session is the ephemeral record of a user's current presence span in a
// tracked room. JoinedAt is the flush pointer; SessionStartTime never moves.
type Session struct {
	UserID           string    `json:"user_id"`
	GuildID          string    `json:"guild_id"`
	RoomID           string    `json:"room_id"`
	GroupID          string    `json:"group_id,omitempty"`
	JoinedAt         time.Time `json:"joined_at"`
	SessionStartTime time.Time `json:"session_start_time"`
	Transferred      bool      `json:"transferred,omitempty"`
	PreviousRoomID   string    `json:"previous_room_id,omitempty"`
}

// UserAccrual is the durable per-(guild,user) accrual row.
type UserAccrual struct {
	GuildID string
	UserID  string
	Coins   int64

	TotalPresenceMs   int64
	DailyPresenceMs   int64
	WeeklyPresenceMs  int64
	MonthlyPresenceMs int64

	TotalCoinsEarned   int64
	DailyCoinsEarned   int64
	WeeklyCoinsEarned  int64
	MonthlyCoinsEarned int64

	// Nil means the boundary has never been observed for this user.
	LastDailyReset   *time.Time
	LastWeeklyReset  *time.Time
	LastMonthlyReset *time.Time

	UpdatedAt time.Time
}

// AccrualIncrement is applied in a single upsert. Rolling fields carry the
// boundary-adjusted share, Total fields the full amount.
type AccrualIncrement struct {
	GuildID string
	UserID  string

	Coins int64

	TotalPresenceMs   int64
	DailyPresenceMs   int64
	WeeklyPresenceMs  int64
	MonthlyPresenceMs int64

	TotalCoinsEarned   int64
	DailyCoinsEarned   int64
	WeeklyCoinsEarned  int64
	MonthlyCoinsEarned int64

	At time.Time
}

// PeriodMarks are the current period starts stamped by a reset. Only the
// periods flagged in Reset* are zeroed.
type PeriodMarks struct {
	Day   time.Time
	Week  time.Time
	Month time.Time

	ResetDaily   bool
	ResetWeekly  bool
	ResetMonthly bool
}

// TransactionContext is the typed part of a transaction's context.
type TransactionContext struct {
	DurationMs int64  `json:"duration_ms"`
	RoomID     string `json:"room_id,omitempty"`
	GroupID    string `json:"group_id,omitempty"`
}

// Transaction is an append-only ledger entry.
type Transaction struct {
	ID           string
	GuildID      string
	UserID       string
	Kind         string
	Amount       int64
	BalanceAfter int64
	Context      TransactionContext
	Metadata     map[string]any
	CreatedAt    time.Time
}

const TransactionKindPresence = "presence_accrual"

const (
	ActivityKindSession      = "session"
	ActivityKindDailySummary = "daily_summary"
)

// ActivityRecord is a historical span. (GuildID, UserID, Kind, StartedAt) is
// the idempotency key.
type ActivityRecord struct {
	GuildID     string
	UserID      string
	Kind        string
	RoomID      string
	GroupID     string
	StartedAt   time.Time
	EndedAt     time.Time
	DurationMs  int64
	CoinsEarned int64
	Day         time.Time
	CreatedAt   time.Time
}

// Streak tracks consecutive UTC days with at least one closed session.
type Streak struct {
	GuildID       string
	UserID        string
	Current       int
	Longest       int
	LastActiveDay time.Time
}

// GuildSettings is the per-guild engine configuration.
type GuildSettings struct {
	GuildID           string
	TrackedCategories []string
	CoinsPerSecond    float64
	SessionTTL        time.Duration
	MinimumBillable   time.Duration
	TransferGrace     time.Duration
}

// IsTracked reports whether rooms under categoryID accrue presence.
func (g GuildSettings) IsTracked(categoryID string) bool {
	if categoryID == "" {
		return false
	}
	for _, c := range g.TrackedCategories {
		if c == categoryID {
			return true
		}
	}
	return false
}
