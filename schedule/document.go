package schedule

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/teranos/strata/errors"
)

// Document is a validated schedule document: the enabled jobs in declaration
// order, each with a parsed recurrence policy.
type Document struct {
	Jobs []*Job
}

// entry mirrors one item of the YAML jobs list before validation
type entry struct {
	Name        string                 `yaml:"name"`
	Args        map[string]interface{} `yaml:"args"`
	Schedule    PolicySpec             `yaml:"schedule"`
	Description string                 `yaml:"description"`
	Enabled     *bool                  `yaml:"enabled"`
	DependsOn   []string               `yaml:"depends_on"`
}

type documentFile struct {
	Jobs []entry `yaml:"jobs"`
}

// LoadDocument reads and validates a YAML schedule document. Disabled
// entries are dropped before policy parsing, so a disabled entry with a
// broken schedule block does not fail the load. All validation failures
// are configuration errors.
func LoadDocument(path string, parser CronParser) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapConfiguration(err, "failed to read schedule document")
	}
	return ParseDocument(data, parser)
}

// ParseDocument validates raw YAML schedule content
func ParseDocument(data []byte, parser CronParser) (*Document, error) {
	var file documentFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.WrapConfiguration(err, "failed to parse schedule document")
	}

	// Names are validated across the whole document, enabled or not, so
	// depends_on may reference a temporarily disabled job.
	declared := make(map[string]bool, len(file.Jobs))
	for _, e := range file.Jobs {
		if e.Name == "" {
			return nil, errors.NewConfigurationf("schedule entry missing a name")
		}
		if declared[e.Name] {
			return nil, errors.NewConfigurationf("duplicate job name %q in schedule document", e.Name)
		}
		declared[e.Name] = true
	}

	doc := &Document{}
	for _, e := range file.Jobs {
		if e.Enabled != nil && !*e.Enabled {
			continue
		}

		policy, err := ParsePolicy(e.Schedule, parser)
		if err != nil {
			return nil, errors.Wrapf(err, "job %q", e.Name)
		}

		for _, dep := range e.DependsOn {
			if !declared[dep] {
				return nil, errors.NewConfigurationf("job %q depends on unknown job %q", e.Name, dep)
			}
		}

		args := e.Args
		if args == nil {
			args = map[string]interface{}{}
		}
		dependsOn := e.DependsOn
		if dependsOn == nil {
			dependsOn = []string{}
		}

		doc.Jobs = append(doc.Jobs, &Job{
			Name:        e.Name,
			Description: e.Description,
			Args:        args,
			Policy:      policy,
			DependsOn:   dependsOn,
			Position:    len(doc.Jobs),
		})
	}

	return doc, nil
}

// JobNames returns the enabled job names in declaration order
func (d *Document) JobNames() []string {
	names := make([]string, len(d.Jobs))
	for i, job := range d.Jobs {
		names[i] = job.Name
	}
	return names
}
