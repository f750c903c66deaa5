package models

import "time"

// ViewBudget meters how many times a shareable id may be viewed.
type ViewBudget struct {
	Limit    int `json:"limit"`
	Consumed int `json:"consumed"`
}

// AccessPolicy is the ledger entry for a shareable id. Groups carry their
// ordered member ids and never a view budget.
type AccessPolicy struct {
	ShareID      string      `json:"shareId"`
	PasswordHash string      `json:"-"`
	ViewBudget   *ViewBudget `json:"viewBudget,omitempty"`
	Description  string      `json:"description"`
	Members      []string    `json:"members,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
}

// IsGroup reports whether the policy belongs to a multi-artifact post.
func (p *AccessPolicy) IsGroup() bool {
	return p != nil && len(p.Members) > 0
}

// HasPassword reports whether viewers must present a secret.
func (p *AccessPolicy) HasPassword() bool {
	return p != nil && p.PasswordHash != ""
}

// Clone returns a deep copy safe to hand out of a store.
func (p *AccessPolicy) Clone() *AccessPolicy {
	if p == nil {
		return nil
	}
	clone := *p
	if p.ViewBudget != nil {
		budget := *p.ViewBudget
		clone.ViewBudget = &budget
	}
	if p.Members != nil {
		clone.Members = append([]string(nil), p.Members...)
	}
	return &clone
}

// PolicySpec describes the policy to register for a new shareable id.
// PasswordHash may carry an already hashed secret shared by several ids.
type PolicySpec struct {
	Password     string
	PasswordHash string
	ViewLimit    int
	Description  string
	Members      []string
}

// ViewOutcomeKind enumerates the results of recording a view.
type ViewOutcomeKind int

const (
	ViewNotMetered ViewOutcomeKind = iota
	ViewRemaining
	ViewExhausted
)

func (k ViewOutcomeKind) String() string {
	switch k {
	case ViewNotMetered:
		return "not_metered"
	case ViewRemaining:
		return "remaining"
	case ViewExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// ViewOutcome is the result of one metered view.
type ViewOutcome struct {
	Kind      ViewOutcomeKind
	Remaining int
}

// NotMetered is returned for ids without a view budget.
func NotMetered() ViewOutcome {
	return ViewOutcome{Kind: ViewNotMetered}
}

// Remaining is returned while the budget still admits views.
func Remaining(n int) ViewOutcome {
	return ViewOutcome{Kind: ViewRemaining, Remaining: n}
}

// Exhausted is returned exactly once, to the view that destroyed the entry.
func Exhausted() ViewOutcome {
	return ViewOutcome{Kind: ViewExhausted}
}
