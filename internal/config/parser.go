package config

import (
	"fmt"
	"regexp"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	pipelineerrors "github.com/flowkit/pipelinectl/pkg/errors"
)

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// Load reads path through fs, parses the `pipeline:` document, and validates
// it, grounded on the teacher's internal/config/parser.go#ParseConfig (same
// read-unmarshal-validate shape, generalized to afero.Fs so callers can test
// against an in-memory filesystem).
func Load(fs afero.Fs, path string) (*Pipeline, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, pipelineerrors.NewParseError(path, 0, err)
	}

	var doc pipelineDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, pipelineerrors.NewParseError(path, extractLine(err), err)
	}

	if err := Validate(&doc.Pipeline); err != nil {
		return nil, err
	}

	return &doc.Pipeline, nil
}

func extractLine(err error) int {
	if err == nil {
		return 0
	}
	m := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(m) != 2 {
		return 0
	}
	var line int
	if _, scanErr := fmt.Sscanf(m[1], "%d", &line); scanErr != nil {
		return 0
	}
	return line
}
