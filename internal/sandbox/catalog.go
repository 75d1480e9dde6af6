package sandbox

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hatchboard/engage-runtime/pkg/widget"
)

// Catalog is the sandbox's project definition: the widget configuration
// plus the engagement elements it serves, loaded from YAML.
type Catalog struct {
	Widget   widget.Config    `yaml:"widget"`
	Elements []widget.Element `yaml:"elements"`

	// AIScript is the canned assistant reply streamed for every AI turn.
	AIScript string `yaml:"aiScript"`

	// AgentName is announced on realtime connect.
	AgentName string `yaml:"agentName"`
}

// LoadCatalog reads and validates a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	for i, el := range cat.Elements {
		if el.ID == "" {
			return nil, fmt.Errorf("element %d has no id", i)
		}
		if !el.ElementType.Known() {
			return nil, fmt.Errorf("element %s has unknown type %q", el.ID, el.ElementType)
		}
		if !el.TriggerType.Known() {
			return nil, fmt.Errorf("element %s has unknown trigger %q", el.ID, el.TriggerType)
		}
	}

	if cat.AIScript == "" {
		cat.AIScript = "Thanks for reaching out! A teammate will follow up shortly."
	}
	if cat.AgentName == "" {
		cat.AgentName = "Sandbox Agent"
	}

	return &cat, nil
}
