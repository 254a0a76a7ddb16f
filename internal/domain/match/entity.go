package match

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type JobMatch struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	JobID      uuid.UUID
	MatchScore decimal.Decimal
	MatchedAt  time.Time
}

// RankedJob is one row of a user's ranked list.
type RankedJob struct {
	JobID      uuid.UUID       `json:"job_id"`
	Title      *string         `json:"title"`
	Company    *string         `json:"company"`
	Location   *string         `json:"location"`
	URL        *string         `json:"url"`
	PostedAt   *time.Time      `json:"posted_at"`
	MatchScore decimal.Decimal `json:"match_score"`
	MatchedAt  time.Time       `json:"matched_at"`
}

// Rank orders by score desc, posted_at desc (unknown dates last), then job id.
func Rank(rows []RankedJob) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if c := a.MatchScore.Cmp(b.MatchScore); c != 0 {
			return c > 0
		}
		switch {
		case a.PostedAt != nil && b.PostedAt != nil:
			if !a.PostedAt.Equal(*b.PostedAt) {
				return a.PostedAt.After(*b.PostedAt)
			}
		case a.PostedAt != nil:
			return true
		case b.PostedAt != nil:
			return false
		}
		return a.JobID.String() < b.JobID.String()
	})
}
