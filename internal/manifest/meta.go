package manifest

import (
	"github.com/specialistvlad/fnnxgo/internal/value"
)

// MetaEntry is one producer-attributed metadata record.
type MetaEntry struct {
	ID              string    `json:"id"`
	Producer        string    `json:"producer"`
	ProducerVersion string    `json:"producer_version"`
	ProducerTags    []string  `json:"producer_tags"`
	Payload         value.Map `json:"payload"`
}

func (m MetaEntry) clone() MetaEntry {
	m.ProducerTags = append([]string(nil), m.ProducerTags...)
	m.Payload = m.Payload.Clone()
	return m
}

// EnvDescriptor is a named execution environment requirement. Its body is
// opaque to the core.
type EnvDescriptor struct {
	Name string
	Body value.Value
}

// PythonCondaPip is the descriptor body of the "python3::conda_pip"
// environment. The core never interprets it; it exists so the schema bundle
// can describe it.
type PythonCondaPip struct {
	PythonVersion     string             `json:"python_version"`
	BuildDependencies []string           `json:"build_dependencies"`
	Dependencies      []PythonDependency `json:"dependencies"`
}

// PythonDependency is one pip requirement of PythonCondaPip.
type PythonDependency struct {
	Package      string   `json:"package"`
	ExtraPipArgs string   `json:"extra_pip_args,omitempty"`
	Condition    *EnvCond `json:"condition,omitempty"`
}

// EnvCond restricts a dependency to some platforms or accelerators.
type EnvCond struct {
	Platform    []string `json:"platform,omitempty"`
	Accelerator []string `json:"accelerator,omitempty"`
}

// EnvPythonCondaPip is the environment name of PythonCondaPip.
const EnvPythonCondaPip = "python3::conda_pip"
