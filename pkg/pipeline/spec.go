package pipeline

import "fmt"

// fileSpec is the top-level shape of a pipeline YAML document.
type fileSpec struct {
	Env        map[string]string         `yaml:"env"`
	Jobs       map[string]*jobSpec       `yaml:"jobs"`
	Executions map[string]*executionSpec `yaml:"executions"`
}

type jobSpec struct {
	Description string `yaml:"description"`
	Dir         string `yaml:"dir"`
	// Env entries layer onto the scope's environment for the duration
	// of the job's steps (jobscope.Scope.WithEnv): an explicit YAML
	// `null` value unsets a key rather than setting it to "null".
	Env          map[string]*string `yaml:"env"`
	Tools        []string           `yaml:"tools"`
	AllowFailure bool               `yaml:"allow_failure"`
	Steps        []string           `yaml:"steps"`
	Artifacts    *artifactSpecYAML  `yaml:"artifacts"`
}

type artifactSpecYAML struct {
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

type executionSpec struct {
	Steps []stepSpec `yaml:"steps"`
}

// stepSpec is a single Step YAML node: exactly one of its fields is
// meaningful, mirroring types.Step's own tagged-union shape.
type stepSpec struct {
	Job        string     `yaml:"job"`
	Execution  string     `yaml:"execution"`
	Sequential []stepSpec `yaml:"sequential"`
	Parallel   []stepSpec `yaml:"parallel"`
}

func (s stepSpec) variantCount() int {
	n := 0
	if s.Job != "" {
		n++
	}
	if s.Execution != "" {
		n++
	}
	if len(s.Sequential) > 0 {
		n++
	}
	if len(s.Parallel) > 0 {
		n++
	}
	return n
}

func (s stepSpec) describe() string {
	return fmt.Sprintf("%+v", s)
}
