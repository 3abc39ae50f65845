/*
Package document implements the shadow document model: parsing and
validating a raw state patch, applying it to a document with null-as-delete
merge semantics, computing the delta between reported and desired state,
and three-way merging a local and cloud document against their last known
common ancestor.

None of this is backed by a third-party merge library: no dependency in
the reference pack implements null-as-delete deep merge with a parallel
timestamp-metadata mirror and a depth limit, so the core walk is hand
rolled. github.com/tidwall/gjson is used only for a cheap top-level-key
sanity check before paying for a full json.Unmarshal.
*/
package document
