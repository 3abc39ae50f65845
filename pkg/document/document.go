package document

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuemby/shadowd/pkg/types"
	"github.com/tidwall/gjson"
)

const (
	// MaxDepth bounds how deeply a reported or desired state tree may
	// nest before Apply rejects the patch.
	MaxDepth = 6

	// DefaultMaxDocumentBytes is the soft document size limit applied
	// unless pkg/config overrides it.
	DefaultMaxDocumentBytes = 8 * 1024

	// HardMaxDocumentBytes can never be raised past by configuration.
	HardMaxDocumentBytes = 30 * 1024
)

var recognizedTopLevelKeys = map[string]bool{
	"state":       true,
	"reported":    true,
	"desired":     true,
	"clientToken": true,
	"version":     true,
}

// ErrTooDeep is returned by Apply when a patch nests state past MaxDepth.
var ErrTooDeep = fmt.Errorf("document: state nests past depth %d", MaxDepth)

// ErrTooLarge is returned by Apply when the resulting document would
// exceed the configured size limit.
type ErrTooLarge struct {
	Size  int
	Limit int
}

func (e *ErrTooLarge) Error() string {
	return fmt.Sprintf("document: size %d exceeds limit %d", e.Size, e.Limit)
}

// ParsePatch validates that raw carries only recognized top-level keys
// (via a cheap gjson scan, avoiding a full unmarshal on the common
// rejection path) and then decodes it into a StatePatch.
func ParsePatch(raw []byte) (*types.StatePatch, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("document: invalid JSON payload")
	}
	bad := ""
	gjson.ParseBytes(raw).ForEach(func(key, _ gjson.Result) bool {
		if !recognizedTopLevelKeys[key.String()] {
			bad = key.String()
			return false
		}
		return true
	})
	if bad != "" {
		return nil, fmt.Errorf("document: unrecognized top-level key %q", bad)
	}

	var envelope struct {
		State types.StatePatch `json:"state"`
	}
	// Callers may post either {"state": {...}} or the bare patch; try the
	// enclosing form first, then fall back to a bare StatePatch.
	if err := json.Unmarshal(raw, &envelope); err == nil && (envelope.State.Reported != nil || envelope.State.Desired != nil) {
		return &envelope.State, nil
	}

	var patch types.StatePatch
	if err := json.Unmarshal(raw, &patch); err != nil {
		return nil, fmt.Errorf("document: decode patch: %w", err)
	}
	return &patch, nil
}

// depth returns the deepest nesting level of a State tree. A scalar (or
// empty object) is depth 1 and each enclosing object, the root included,
// adds one, so a tree of top-level scalars is depth 2.
func depth(v interface{}) int {
	m, ok := v.(map[string]interface{})
	if !ok || len(m) == 0 {
		return 1
	}
	max := 0
	for _, child := range m {
		if d := depth(child); d > max {
			max = d
		}
	}
	return max + 1
}

// mergeState deep-merges patch onto base. A nil leaf value deletes the
// corresponding key; an object whose every key was deleted is pruned from
// its parent (bottom-up). Arrays are replaced wholesale, never merged
// element-wise. now is mirrored into meta at every touched leaf.
func mergeState(base, patch map[string]interface{}, meta map[string]interface{}, now time.Time) map[string]interface{} {
	if base == nil {
		base = map[string]interface{}{}
	}
	for k, v := range patch {
		if v == nil {
			delete(base, k)
			delete(meta, k)
			continue
		}
		if childPatch, ok := v.(map[string]interface{}); ok {
			var childBase map[string]interface{}
			if existing, ok := base[k].(map[string]interface{}); ok {
				childBase = existing
			}
			childMeta, _ := meta[k].(map[string]interface{})
			if childMeta == nil {
				childMeta = map[string]interface{}{}
			}
			merged := mergeState(childBase, childPatch, childMeta, now)
			if len(merged) == 0 {
				delete(base, k)
				delete(meta, k)
				continue
			}
			base[k] = merged
			meta[k] = childMeta
			continue
		}
		// scalar or array: replace wholesale.
		base[k] = v
		meta[k] = map[string]interface{}{"timestamp": now.UTC().Unix()}
	}
	return base
}

// Apply applies patch to doc, producing a new document with an advanced
// version and refreshed metadata. doc may be nil to create a document from
// scratch. maxBytes bounds the serialized size of the result; pass 0 to use
// DefaultMaxDocumentBytes (never more than HardMaxDocumentBytes).
func Apply(doc *types.Document, patch *types.StatePatch, now time.Time, maxBytes int) (*types.Document, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxDocumentBytes
	}
	if maxBytes > HardMaxDocumentBytes {
		maxBytes = HardMaxDocumentBytes
	}

	if patch.Reported != nil && depth(map[string]interface{}(patch.Reported)) > MaxDepth {
		return nil, ErrTooDeep
	}
	if patch.Desired != nil && depth(map[string]interface{}(patch.Desired)) > MaxDepth {
		return nil, ErrTooDeep
	}

	next := &types.Document{Version: 0}
	if doc != nil {
		*next = *doc
	}
	if next.Reported == nil {
		next.Reported = types.State{}
	}
	if next.Desired == nil {
		next.Desired = types.State{}
	}
	if next.Metadata.Reported == nil {
		next.Metadata.Reported = types.Metadata{}
	}
	if next.Metadata.Desired == nil {
		next.Metadata.Desired = types.Metadata{}
	}

	if patch.Reported != nil {
		next.Reported = mergeState(next.Reported, patch.Reported, next.Metadata.Reported, now)
	}
	if patch.Desired != nil {
		next.Desired = mergeState(next.Desired, patch.Desired, next.Metadata.Desired, now)
	}

	next.Version++
	next.Timestamp = now.UTC()

	encoded, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("document: encode result: %w", err)
	}
	if len(encoded) > maxBytes {
		return nil, &ErrTooLarge{Size: len(encoded), Limit: maxBytes}
	}

	return next, nil
}

// numericEqual reports whether two decoded JSON scalars are the same
// value under numeric semantic equality: json.Unmarshal into
// interface{} yields float64 for both "1" and "1.0", and Go integer
// values built in code (int 1) compare equal to their float64 form.
func numericEqual(a, b interface{}) bool {
	asFloat := func(v interface{}) (float64, bool) {
		switch n := v.(type) {
		case float64:
			return n, true
		case float32:
			return float64(n), true
		case int:
			return float64(n), true
		case int32:
			return float64(n), true
		case int64:
			return float64(n), true
		}
		return 0, false
	}
	af, aIsNum := asFloat(a)
	bf, bIsNum := asFloat(b)
	if aIsNum && bIsNum {
		return af == bf
	}
	return a == b
}

// diff returns the subset of desired not already matched by reported,
// along with the corresponding metadata slice, or nil if desired is fully
// satisfied.
func diff(reported, desired map[string]interface{}, desiredMeta map[string]interface{}) (map[string]interface{}, map[string]interface{}) {
	out := map[string]interface{}{}
	outMeta := map[string]interface{}{}
	for k, dv := range desired {
		rv, present := reported[k]
		childDesired, dIsObj := dv.(map[string]interface{})
		childReported, rIsObj := rv.(map[string]interface{})
		if dIsObj && (rIsObj || !present) {
			childMeta, _ := desiredMeta[k].(map[string]interface{})
			sub, subMeta := diff(childReported, childDesired, childMeta)
			if len(sub) > 0 {
				out[k] = sub
				outMeta[k] = subMeta
			}
			continue
		}
		if !present || !numericEqual(rv, dv) {
			out[k] = dv
			outMeta[k] = desiredMeta[k]
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, outMeta
}

// ComputeDelta returns the part of doc's desired state not yet matched by
// its reported state, or nil if reported already satisfies desired.
func ComputeDelta(doc *types.Document) *types.Delta {
	if doc == nil || len(doc.Desired) == 0 {
		return nil
	}
	state, meta := diff(doc.Reported, doc.Desired, doc.Metadata.Desired)
	if state == nil {
		return nil
	}
	return &types.Delta{
		State:     state,
		Metadata:  meta,
		Version:   doc.Version,
		Timestamp: doc.Timestamp,
	}
}
