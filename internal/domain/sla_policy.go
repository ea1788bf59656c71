package domain

// SLAPolicy defines response and resolution targets for a priority.
type SLAPolicy struct {
	ID                string
	OrgID             string
	Name              string
	Priority          Priority
	ResponseMinutes   int
	ResolutionMinutes int
	IsActive          bool
}
