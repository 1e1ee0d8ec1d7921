package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/clickshot/internal/types"
)

// JobSelection is a selection as written in a job file.
type JobSelection struct {
	Selector string `yaml:"selector"`
	Frame    int    `yaml:"frame"`
}

// JobFile is the YAML form of a capture run for the clickshot CLI. Either
// selection may be omitted to fall back to what the recorder stored for the tab.
type JobFile struct {
	Tab       string        `yaml:"tab"`
	TabURL    string        `yaml:"tab_url"`
	Clicks    int           `yaml:"clicks"`
	Next      *JobSelection `yaml:"next"`
	Previous  *JobSelection `yaml:"previous"`
	Directory string        `yaml:"directory"`
}

// LoadJob reads and validates a job YAML file.
func LoadJob(path string) (*JobFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("job config: %w", err)
	}
	var job JobFile
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("job config: %w", err)
	}
	if job.Tab == "" && job.TabURL == "" {
		return nil, fmt.Errorf("job config: one of tab or tab_url is required")
	}
	if job.Clicks < 1 {
		return nil, fmt.Errorf("job config: clicks must be a positive integer")
	}
	for name, sel := range map[string]*JobSelection{"next": job.Next, "previous": job.Previous} {
		if sel == nil {
			continue
		}
		if err := sel.Selection().Validate(); err != nil {
			return nil, fmt.Errorf("job config: %s: %w", name, err)
		}
	}
	return &job, nil
}

// Selection converts the YAML form to the runtime type.
func (s *JobSelection) Selection() types.ElementSelection {
	return types.ElementSelection{Selector: s.Selector, FrameID: s.Frame}
}
