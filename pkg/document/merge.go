package document

import (
	"github.com/cuemby/shadowd/pkg/types"
)

// changedFromBase reports whether v differs from the value base held for
// the same key (including "key didn't exist in base").
func changedFromBase(base map[string]interface{}, key string, v interface{}) bool {
	baseVal, present := base[key]
	if !present {
		return true
	}
	return !numericEqual(baseVal, v)
}

// mergeTree three-way merges a single state tree (reported or desired).
// A key changed on exactly one side wins outright. A key changed
// identically on both sides is unambiguous. A key changed differently on
// both sides is a true conflict, broken by owner.
func mergeTree(base, local, cloud map[string]interface{}, localMeta, cloudMeta map[string]interface{}, owner types.DataOwner) (map[string]interface{}, map[string]interface{}) {
	out := map[string]interface{}{}
	outMeta := map[string]interface{}{}

	keys := map[string]bool{}
	for k := range local {
		keys[k] = true
	}
	for k := range cloud {
		keys[k] = true
	}
	for k := range base {
		keys[k] = true
	}

	for k := range keys {
		lv, inLocal := local[k]
		cv, inCloud := cloud[k]
		_, inBase := base[k]
		// A side that no longer holds a key base had has deleted it, which
		// counts as a change on that side.
		localChanged := (inLocal && changedFromBase(base, k, lv)) || (!inLocal && inBase)
		cloudChanged := (inCloud && changedFromBase(base, k, cv)) || (!inCloud && inBase)

		switch {
		case !inLocal && !inCloud:
			// deleted on both (or never present): stays gone.
			continue
		case inLocal && !inCloud:
			if !cloudChanged {
				out[k] = lv
				outMeta[k] = localMeta[k]
			}
			// else: cloud deleted it. A concurrent local change wins over
			// the cloud delete; an untouched local value stays gone.
			if cloudChanged && localChanged {
				out[k] = lv
				outMeta[k] = localMeta[k]
			}
		case !inLocal && inCloud:
			if !localChanged {
				out[k] = cv
				outMeta[k] = cloudMeta[k]
			}
			if localChanged && cloudChanged {
				out[k] = cv
				outMeta[k] = cloudMeta[k]
			}
		default: // present on both sides
			lChildMap, lIsMap := lv.(map[string]interface{})
			cChildMap, cIsMap := cv.(map[string]interface{})
			if lIsMap && cIsMap {
				bChildMap, _ := base[k].(map[string]interface{})
				lcm, _ := localMeta[k].(map[string]interface{})
				ccm, _ := cloudMeta[k].(map[string]interface{})
				merged, mergedMeta := mergeTree(bChildMap, lChildMap, cChildMap, lcm, ccm, owner)
				if len(merged) > 0 {
					out[k] = merged
					outMeta[k] = mergedMeta
				}
				continue
			}
			if numericEqual(lv, cv) || (!localChanged && !cloudChanged) {
				out[k] = lv
				outMeta[k] = localMeta[k]
				continue
			}
			if localChanged && !cloudChanged {
				out[k] = lv
				outMeta[k] = localMeta[k]
				continue
			}
			if cloudChanged && !localChanged {
				out[k] = cv
				outMeta[k] = cloudMeta[k]
				continue
			}
			// true conflict: both sides changed this leaf differently.
			winner, winnerMeta := resolveConflict(lv, cv, localMeta[k], cloudMeta[k], owner)
			out[k] = winner
			outMeta[k] = winnerMeta
		}
	}
	return out, outMeta
}

// resolveConflict breaks a true conflict (both sides changed the same
// leaf to different values) by owner alone, unconditionally.
func resolveConflict(local, cloud, localMeta, cloudMeta interface{}, owner types.DataOwner) (interface{}, interface{}) {
	if owner == types.DataOwnerCloud {
		return cloud, cloudMeta
	}
	return local, localMeta
}

// MergeThreeWay merges local and cloud against their last known common
// ancestor base (last_synced_document), breaking true conflicts with
// owner. base may be nil (no prior sync: every differing leaf conflicts).
func MergeThreeWay(base, local, cloud *types.Document, owner types.DataOwner) *types.Document {
	if base == nil {
		base = &types.Document{}
	}
	reported, reportedMeta := mergeTree(base.Reported, local.Reported, cloud.Reported, local.Metadata.Reported, cloud.Metadata.Reported, owner)
	desired, desiredMeta := mergeTree(base.Desired, local.Desired, cloud.Desired, local.Metadata.Desired, cloud.Metadata.Desired, owner)

	version := local.Version
	if cloud.Version > version {
		version = cloud.Version
	}
	version++

	ts := local.Timestamp
	if cloud.Timestamp.After(ts) {
		ts = cloud.Timestamp
	}

	return &types.Document{
		Identity: local.Identity,
		Reported: reported,
		Desired:  desired,
		Metadata: types.DocumentMetadata{
			Reported: reportedMeta,
			Desired:  desiredMeta,
		},
		Version:   version,
		Timestamp: ts,
	}
}
