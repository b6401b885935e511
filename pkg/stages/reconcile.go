package stages

import "strings"

// SpeakerID extracts the identity from a crux speaker entry of the form
// "id:name[ | weight]": the substring before the first colon, trimmed.
// Returns "" when no identity can be extracted.
func SpeakerID(entry string) string {
	id := entry
	if idx := strings.IndexByte(entry, ':'); idx >= 0 {
		id = entry[:idx]
	}
	return strings.TrimSpace(id)
}

// ReconcileSpeakers makes the three crux speaker lists pairwise disjoint by
// id. The model output is not authoritative on set membership; this pure,
// idempotent pass is. Rules, in order:
//
//  1. Entries without an extractable id are dropped.
//  2. An id in both agree and disagree is ambiguous: removed from both and
//     added to noClearPosition, carrying the agree-side payload.
//     Contradictory assignments are evidence of uncertainty, not of a side.
//  3. An id in noClearPosition that still appears in agree or disagree after
//     step 2 is removed from noClearPosition: a clear stance overrides it.
//  4. Within each list, duplicate ids keep only their first occurrence.
func ReconcileSpeakers(agree, disagree, noClearPosition []string) (outAgree, outDisagree, outNoClear []string) {
	agreeIDs, agreeOrder := firstByID(agree)
	disagreeIDs, disagreeOrder := firstByID(disagree)
	noClearIDs, noClearOrder := firstByID(noClearPosition)

	ambiguous := make(map[string]bool)
	for _, id := range agreeOrder {
		if _, ok := disagreeIDs[id]; ok {
			ambiguous[id] = true
		}
	}

	outAgree = make([]string, 0, len(agreeOrder))
	for _, id := range agreeOrder {
		if !ambiguous[id] {
			outAgree = append(outAgree, agreeIDs[id])
		}
	}
	outDisagree = make([]string, 0, len(disagreeOrder))
	for _, id := range disagreeOrder {
		if !ambiguous[id] {
			outDisagree = append(outDisagree, disagreeIDs[id])
		}
	}

	kept := make(map[string]bool, len(outAgree)+len(outDisagree))
	for _, entry := range outAgree {
		kept[SpeakerID(entry)] = true
	}
	for _, entry := range outDisagree {
		kept[SpeakerID(entry)] = true
	}

	outNoClear = make([]string, 0, len(noClearOrder)+len(ambiguous))
	for _, id := range noClearOrder {
		if !kept[id] && !ambiguous[id] {
			outNoClear = append(outNoClear, noClearIDs[id])
		}
	}
	// Ambiguous ids land in noClearPosition with the agree-side payload,
	// in agree-list order. An id already present above keeps its original
	// entry (first occurrence wins).
	for _, id := range agreeOrder {
		if ambiguous[id] {
			if _, already := noClearIDs[id]; already {
				outNoClear = appendMissing(outNoClear, id, noClearIDs[id])
				continue
			}
			outNoClear = appendMissing(outNoClear, id, agreeIDs[id])
		}
	}
	return outAgree, outDisagree, outNoClear
}

// firstByID maps each extractable id to its first representative entry and
// returns the first-occurrence id order.
func firstByID(entries []string) (map[string]string, []string) {
	byID := make(map[string]string, len(entries))
	order := make([]string, 0, len(entries))
	for _, entry := range entries {
		id := SpeakerID(entry)
		if id == "" {
			continue
		}
		if _, seen := byID[id]; seen {
			continue
		}
		byID[id] = entry
		order = append(order, id)
	}
	return byID, order
}

// appendMissing appends the representative unless the id is already present.
func appendMissing(list []string, id, entry string) []string {
	for _, existing := range list {
		if SpeakerID(existing) == id {
			return list
		}
	}
	return append(list, entry)
}
