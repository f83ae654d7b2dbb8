package models

import "time"

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// PlanPremium is the default plan tag stamped on every issued license.
const PlanPremium = "premium"

type License struct {
	ID               string
	Key              string
	Email            string
	Status           string
	PlanType         string
	StripeCustomerID string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (l *License) Active() bool {
	return l.Status == StatusActive
}
