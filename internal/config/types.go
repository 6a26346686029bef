// Package config loads and validates the pipeline YAML document (spec §6):
// pipeline.name, pipeline.steps[] (generic method chains, not per-plugin
// typed structs), and pipeline.orchestration{...}.
//
// Grounded structurally on the teacher's internal/config package (the
// gopkg.in/yaml.v3 + go-playground/validator/v10 singleton-validator idiom,
// the step_id custom validation tag, ParseError/ValidationError wiring into
// pkg/errors) adapted from Streamy's fixed step-type union to the spec's
// generic component/engine/method chain shape.
package config

// Pipeline is the root document.
type Pipeline struct {
	Name          string          `yaml:"name" validate:"required,min=1"`
	Steps         []StepDocument  `yaml:"steps" validate:"required,min=1,dive"`
	Orchestration Orchestration   `yaml:"orchestration,omitempty"`
}

// pipelineDocument is the on-disk top-level shape: { pipeline: {...} }.
type pipelineDocument struct {
	Pipeline Pipeline `yaml:"pipeline" validate:"required"`
}

// Orchestration is the flow-level settings block (spec §6).
type Orchestration struct {
	TaskRunner  string `yaml:"task_runner,omitempty" validate:"omitempty,oneof=concurrent sequential"`
	MaxWorkers  int    `yaml:"max_workers,omitempty" validate:"omitempty,min=1,max=256"`
	SoftFail    bool   `yaml:"soft_fail,omitempty"`
	RetryCount  int    `yaml:"retry_count,omitempty" validate:"omitempty,min=0"`
	RetryDelay  int    `yaml:"retry_delay,omitempty" validate:"omitempty,min=0"`
	Timeout     int    `yaml:"timeout,omitempty" validate:"omitempty,min=0"`
	// StrictOutputs is the supplemented flow-level flag resolving the
	// suffix-stripping Open Question (SPEC_FULL.md §9 Open Question #1).
	StrictOutputs bool `yaml:"strict_outputs,omitempty"`
}

// StepDocument mirrors the YAML shape of one `pipeline.steps[]` entry before
// reference-marking; method/outputs stay as `any` here (list-or-string,
// list-or-map) since that dispatch belongs to internal/stepspec, not this
// package, per the teacher's habit of keeping parsing separate from typed
// decoding dispatch (types.go) and cross-field validation (validator.go).
type StepDocument struct {
	Name       string         `yaml:"name,omitempty"`
	Component  string         `yaml:"component" validate:"required,step_id"`
	Engine     string         `yaml:"engine,omitempty"`
	Method     any            `yaml:"method" validate:"required"`
	Parameters map[string]any `yaml:"parameters,omitempty"`
	Outputs    any            `yaml:"outputs,omitempty"`
	DependsOn  []string       `yaml:"depends_on,omitempty"`
	CacheTTL   int            `yaml:"cache_ttl,omitempty" validate:"omitempty,min=0"`
}
