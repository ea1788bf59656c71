// Package templates holds the read-only workflow template catalog and auto-selection.
package templates

import (
	"github.com/itsm-core/incident-engine/internal/domain"
)

// Selection weights.
const (
	weightCategory = 4
	weightPriority = 3
	weightChannel  = 2
	weightCatchall = 1
)

// Criteria describes the case a template is being selected for.
type Criteria struct {
	CaseType   string
	Priority   domain.Priority
	Channel    string
	CategoryID string
}

// Registry is an immutable, injected template catalog.
type Registry struct {
	templates []domain.WorkflowTemplate
}

// NewRegistry builds a registry over the given templates, preserving their order.
func NewRegistry(templates []domain.WorkflowTemplate) *Registry {
	return &Registry{templates: append([]domain.WorkflowTemplate(nil), templates...)}
}

// Get returns the active template with the given id.
func (r *Registry) Get(id string) (*domain.WorkflowTemplate, bool) {
	for i := range r.templates {
		if r.templates[i].ID == id && r.templates[i].IsActive {
			tpl := r.templates[i]
			return &tpl, true
		}
	}
	return nil, false
}

// List returns the active templates in registry order.
func (r *Registry) List() []domain.WorkflowTemplate {
	out := make([]domain.WorkflowTemplate, 0, len(r.templates))
	for _, tpl := range r.templates {
		if tpl.IsActive {
			out = append(out, tpl)
		}
	}
	return out
}

// Select returns the highest scoring auto-assign template for the criteria.
// Ties keep the template that appears first.
func (r *Registry) Select(criteria Criteria) (*domain.WorkflowTemplate, bool) {
	bestScore := 0
	bestIdx := -1
	for i := range r.templates {
		tpl := &r.templates[i]
		if !tpl.IsActive || !tpl.AutoAssign || tpl.CaseType != criteria.CaseType {
			continue
		}
		if score := Score(tpl, criteria); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return nil, false
	}
	tpl := r.templates[bestIdx]
	return &tpl, true
}

// Score computes the additive match weight of a template.
func Score(tpl *domain.WorkflowTemplate, criteria Criteria) int {
	if tpl.Match.Empty() {
		return weightCatchall
	}
	score := 0
	if criteria.CategoryID != "" && contains(tpl.Match.CategoryIDs, criteria.CategoryID) {
		score += weightCategory
	}
	if criteria.Priority != "" && contains(tpl.Match.Priorities, criteria.Priority) {
		score += weightPriority
	}
	if criteria.Channel != "" && contains(tpl.Match.Channels, criteria.Channel) {
		score += weightChannel
	}
	return score
}

func contains[T comparable](values []T, v T) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
