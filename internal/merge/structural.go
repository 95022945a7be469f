package merge

import (
	"encoding/json"
	"sort"

	"lens/internal/model"
)

// LeafMeta is the metadata the structural merge consults at a conflict:
// source trust, rule confidence for the leaf, and a completeness measure.
type LeafMeta struct {
	Trust      float64
	Confidence float64
	Priority   int // lower is higher priority
	Complete   int
}

// Chooser decides whether the incoming side wins a conflict the structure
// itself cannot resolve (scalar vs scalar, object arrays, type mismatch).
// Returning false keeps the existing side.
type Chooser func(dst, src any, dstMeta, srcMeta LeafMeta) bool

// TrustChooser is the §-standard comparator: trust, then confidence, then
// completeness. Ties keep the existing side, which preserves the caller's
// pre-sorted ordering as the final tie-break.
func TrustChooser(dst, src any, dstMeta, srcMeta LeafMeta) bool {
	if srcMeta.Trust != dstMeta.Trust {
		return srcMeta.Trust > dstMeta.Trust
	}
	if srcMeta.Confidence != dstMeta.Confidence {
		return srcMeta.Confidence > dstMeta.Confidence
	}
	return srcMeta.Complete > dstMeta.Complete
}

// IncomingChooser implements the upsert rule: a non-missing incoming value
// always overwrites. Missingness is already handled before choosers run.
func IncomingChooser(dst, src any, dstMeta, srcMeta LeafMeta) bool {
	return true
}

// MergeTrees recursively merges src into dst and returns the result.
// Neither input is mutated.
//
//   - object vs object merges key-by-key recursively
//   - scalar-array vs scalar-array concatenates, dedupes, sorts
//   - object-array vs object-array selects one array wholesale
//   - type mismatch selects one side wholesale
//   - a missing side never wins against a present one
func MergeTrees(dst, src any, dstMeta, srcMeta LeafMeta, choose Chooser) any {
	if model.IsMissing(src) {
		return clone(dst)
	}
	if model.IsMissing(dst) {
		return clone(src)
	}

	dstObj, dstIsObj := dst.(map[string]any)
	srcObj, srcIsObj := src.(map[string]any)
	if dstIsObj && srcIsObj {
		out := make(map[string]any, len(dstObj))
		for k, v := range dstObj {
			out[k] = clone(v)
		}
		keys := make([]string, 0, len(srcObj))
		for k := range srcObj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out[k] = MergeTrees(out[k], srcObj[k], dstMeta, srcMeta, choose)
		}
		return out
	}

	dstArr, dstIsArr := dst.([]any)
	srcArr, srcIsArr := src.([]any)
	if dstIsArr && srcIsArr {
		if isScalarArray(dstArr) && isScalarArray(srcArr) {
			return unionScalars(dstArr, srcArr)
		}
		// Object arrays are opaque units: no element-wise merge.
		if choose(dst, src, dstMeta, srcMeta) {
			return clone(src)
		}
		return clone(dst)
	}

	// Scalar conflict or type mismatch: one side wins wholesale.
	if choose(dst, src, dstMeta, srcMeta) {
		return clone(src)
	}
	return clone(dst)
}

func isScalarArray(arr []any) bool {
	for _, v := range arr {
		switch v.(type) {
		case map[string]any, []any:
			return false
		}
	}
	return true
}

// unionScalars concatenates, dedupes, and sorts by canonical JSON so mixed
// scalar types still order deterministically.
func unionScalars(a, b []any) []any {
	seen := make(map[string]any)
	for _, v := range append(append([]any{}, a...), b...) {
		if model.IsMissing(v) {
			continue
		}
		seen[canonicalKey(v)] = v
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, seen[k])
	}
	return out
}

func canonicalKey(v any) string {
	return CanonicalJSON(v)
}

// CanonicalJSON is the deterministic serialization used for value identity:
// encoding/json emits object keys in sorted order, so equal values always
// serialize identically.
func CanonicalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// Completeness measures a value for the completeness tie-break: the length
// of its canonical serialization.
func Completeness(v any) int {
	if model.IsMissing(v) {
		return 0
	}
	return len(canonicalKey(v))
}

// clone deep-copies JSON-shaped values so merged trees never alias input.
func clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = clone(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = clone(item)
		}
		return out
	default:
		return v
	}
}
