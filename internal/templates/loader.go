package templates

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/itsm-core/incident-engine/internal/domain"
)

const catalogSchemaVersion = "1"

type catalogFile struct {
	SchemaVersion string                    `yaml:"schemaVersion"`
	Templates     []domain.WorkflowTemplate `yaml:"templates"`
}

// LoadCatalog reads the catalog at path, or the embedded default catalog when path is empty.
func LoadCatalog(path string) ([]domain.WorkflowTemplate, error) {
	data := defaultCatalog
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read template catalog: %w", err)
		}
		data = raw
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) ([]domain.WorkflowTemplate, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse template catalog: %w", err)
	}
	if file.SchemaVersion != catalogSchemaVersion {
		return nil, fmt.Errorf("unsupported template catalog schema version: %q", file.SchemaVersion)
	}
	if err := validateCatalog(file.Templates); err != nil {
		return nil, fmt.Errorf("template catalog validation failed: %w", err)
	}
	return file.Templates, nil
}

func validateCatalog(templates []domain.WorkflowTemplate) error {
	ids := make(map[string]bool, len(templates))
	for i, tpl := range templates {
		if tpl.ID == "" {
			return fmt.Errorf("template %d: id is required", i)
		}
		if ids[tpl.ID] {
			return fmt.Errorf("duplicate template id: %s", tpl.ID)
		}
		ids[tpl.ID] = true

		if len(tpl.Steps) == 0 {
			return fmt.Errorf("template %s: at least one step is required", tpl.ID)
		}
		stepIDs := make(map[string]bool, len(tpl.Steps))
		for _, step := range tpl.Steps {
			if step.ID == "" {
				return fmt.Errorf("template %s: step id is required", tpl.ID)
			}
			if stepIDs[step.ID] {
				return fmt.Errorf("template %s: duplicate step id %s", tpl.ID, step.ID)
			}
			stepIDs[step.ID] = true
			if _, ok := domain.ParseStepType(string(step.Type)); !ok {
				return fmt.Errorf("template %s: step %s has unknown type %q", tpl.ID, step.ID, step.Type)
			}
		}
		for _, step := range tpl.Steps {
			for _, next := range step.NextSteps {
				if !stepIDs[next] {
					return fmt.Errorf("template %s: step %s references unknown next step %s", tpl.ID, step.ID, next)
				}
			}
		}
	}
	return nil
}
