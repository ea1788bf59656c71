package domain

// TemplateMatch lists the criteria a template is auto-selected on.
type TemplateMatch struct {
	Priorities  []Priority `yaml:"priorities" json:"priorities,omitempty"`
	Channels    []string   `yaml:"channels" json:"channels,omitempty"`
	CategoryIDs []string   `yaml:"categoryIds" json:"categoryIds,omitempty"`
}

// Empty reports whether the template declares no criteria at all.
func (m TemplateMatch) Empty() bool {
	return len(m.Priorities) == 0 && len(m.Channels) == 0 && len(m.CategoryIDs) == 0
}

// TaskTemplate describes the task generated for a template step.
type TaskTemplate struct {
	Title            string   `yaml:"title" json:"title"`
	Description      string   `yaml:"description" json:"description,omitempty"`
	Priority         Priority `yaml:"priority" json:"priority,omitempty"`
	EstimatedMinutes int      `yaml:"estimatedMinutes" json:"estimatedMinutes,omitempty"`
	Tags             []string `yaml:"tags" json:"tags,omitempty"`
}

// TemplateStep is a step blueprint.
type TemplateStep struct {
	ID           string         `yaml:"id" json:"id"`
	Name         string         `yaml:"name" json:"name"`
	Type         StepType       `yaml:"type" json:"type"`
	Assignee     string         `yaml:"assignee" json:"assignee,omitempty"`
	NextSteps    []string       `yaml:"nextSteps" json:"nextSteps,omitempty"`
	TaskTemplate TaskTemplate   `yaml:"taskTemplate" json:"taskTemplate"`
	Config       map[string]any `yaml:"config" json:"config,omitempty"`
}

// SLAMinutes reads config.slaMinutes.
func (s TemplateStep) SLAMinutes() int {
	return ConfigMinutes(s.Config, "slaMinutes")
}

// WorkflowTemplate is an immutable blueprint owned by the template registry.
type WorkflowTemplate struct {
	ID             string         `yaml:"id" json:"id"`
	Name           string         `yaml:"name" json:"name"`
	Type           string         `yaml:"type" json:"type"`
	CaseType       string         `yaml:"caseType" json:"caseType"`
	IsActive       bool           `yaml:"isActive" json:"isActive"`
	AutoAssign     bool           `yaml:"autoAssign" json:"autoAssign"`
	Match          TemplateMatch  `yaml:"match" json:"match"`
	Steps          []TemplateStep `yaml:"steps" json:"steps"`
	DefaultContext map[string]any `yaml:"defaultContext" json:"defaultContext,omitempty"`
}

// InstantiateSteps converts the blueprint into fresh workflow steps.
func (t *WorkflowTemplate) InstantiateSteps() []WorkflowStep {
	steps := make([]WorkflowStep, 0, len(t.Steps))
	for _, s := range t.Steps {
		stepType := s.Type
		if stepType == "" {
			stepType = StepTypeManual
		}
		steps = append(steps, WorkflowStep{
			ID:        s.ID,
			Name:      s.Name,
			Type:      stepType,
			Assignee:  s.Assignee,
			Config:    CloneMap(s.Config),
			NextSteps: append([]string(nil), s.NextSteps...),
			Status:    StepStatusPending,
		})
	}
	return steps
}
