package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flowkit/pipelinectl/internal/value"
)

type stubTable struct {
	rows, cols int
	cols_      []string
	sample     [][]string
}

func (s stubTable) Shape() (int, int)         { return s.rows, s.cols }
func (s stubTable) Columns() []string         { return s.cols_ }
func (s stubTable) RowSample(k int) [][]string { return s.sample }

func TestFingerprintIsStableForIdenticalInput(t *testing.T) {
	v := value.FromAny(map[string]any{"a": 1, "b": "two"})
	assert.Equal(t, Fingerprint(v), Fingerprint(v))
}

func TestFingerprintDiffersForDifferentMaps(t *testing.T) {
	a := value.FromAny(map[string]any{"a": 1})
	b := value.FromAny(map[string]any{"a": 2, "b": 3})
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprintTablePrefixesWithDf(t *testing.T) {
	tbl := stubTable{rows: 2, cols: 2, cols_: []string{"x", "y"}, sample: [][]string{{"1", "2"}}}
	fp := Fingerprint(value.FromAny(tbl))
	assert.Contains(t, fp, "df:")
}

func TestFingerprintSequencePrefixesWithSeq(t *testing.T) {
	v := value.List([]value.Value{value.Int(1), value.Int(2)})
	assert.Contains(t, Fingerprint(v), "seq:")
}

func TestFingerprintMapPrefixesWithDict(t *testing.T) {
	v := value.Map(map[string]value.Value{"k": value.String("v")})
	assert.Contains(t, Fingerprint(v), "dict:")
}

func TestFingerprintScalarPrefixesWithObj(t *testing.T) {
	assert.Contains(t, Fingerprint(value.Int(7)), "obj:")
}

func TestHashReferenceIsInjectiveForDistinctPairs(t *testing.T) {
	a := HashReference("steps.extract.outputs.parameters.rows")
	b := HashReference("steps.transform.outputs.parameters.rows")
	assert.NotEqual(t, a, b)
}

func TestHashReferenceIsStable(t *testing.T) {
	ref := "steps.extract.outputs.parameters.rows"
	assert.Equal(t, HashReference(ref), HashReference(ref))
}
