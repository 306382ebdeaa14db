package trainees

import "time"

type CountingMethod string

const (
	// MonthlySubscription - fixed monthly fee, session count informational
	MonthlySubscription CountingMethod = "monthly_subscription"
	// MonthlyCount - billed per session within a month
	MonthlyCount CountingMethod = "monthly_count"
	// CardTicket - prepaid card with a fixed number of sessions
	CardTicket CountingMethod = "card_ticket"
)

func (cm CountingMethod) IsValid() bool {
	switch cm {
	case MonthlySubscription, MonthlyCount, CardTicket:
		return true
	}
	return false
}

type Trainee struct {
	ID             int            `json:"id"`
	TrainerID      int            `json:"trainerId"`
	FullName       string         `json:"fullName"`
	IsPair         bool           `json:"isPair"`
	PairName1      string         `json:"pairName1,omitempty"`
	PairName2      string         `json:"pairName2,omitempty"`
	CountingMethod CountingMethod `json:"countingMethod"`
	// card_ticket bookkeeping
	CardSessionsTotal int  `json:"cardSessionsTotal,omitempty"`
	CardSessionsUsed  int  `json:"cardSessionsUsed,omitempty"`
	IsActive          bool `json:"isActive"`

	CreatedAt time.Time `json:"createdAt"`
}
