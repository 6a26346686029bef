package scheduler

import (
	"sort"
	"strings"

	"github.com/flowkit/pipelinectl/internal/handle"
	"github.com/flowkit/pipelinectl/internal/methodregistry"
	"github.com/flowkit/pipelinectl/internal/stepspec"
	"github.com/flowkit/pipelinectl/internal/value"
)

// computeSignature implements spec §4.4's exact four-part formula:
// methods_joined ∥ method_meta ∥ sorted_params ∥ upstream_fingerprints_sorted_by_input_name.
func computeSignature(step stepspec.Step, handles []*handle.Handle, reg *methodregistry.Registry, upstreamFingerprints map[string]string) string {
	methodsJoined := strings.Join(step.Methods, "|")

	metaParts := make([]string, 0, len(handles))
	for _, h := range handles {
		metaParts = append(metaParts, h.PredictSignature(reg))
	}
	methodMeta := strings.Join(metaParts, ";")

	sortedParams := canonicalParams(step.Parameters)

	names := make([]string, 0, len(upstreamFingerprints))
	for name := range upstreamFingerprints {
		names = append(names, name)
	}
	sort.Strings(names)
	fpParts := make([]string, 0, len(names))
	for _, name := range names {
		fpParts = append(fpParts, name+":"+upstreamFingerprints[name])
	}
	upstream := strings.Join(fpParts, ",")

	return methodsJoined + "\x1f" + methodMeta + "\x1f" + sortedParams + "\x1f" + upstream
}

// canonicalParams renders parameters in sorted-key canonical text (spec §4.4
// "sorted_params"), reusing value.Value.CanonicalText so references contribute
// their {__ref__, hash} identity rather than a resolved value.
func canonicalParams(params map[string]value.Value) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(params[k].CanonicalText())
	}
	b.WriteByte('}')
	return b.String()
}
