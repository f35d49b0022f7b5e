package renewal

import "sort"

// DominantInfluence is the stone-kind influence overlay: for each region,
// the owner whose chunks carry the most weight among currently lively chunks.
// Pure function over a chunk-to-owner map and a stabilized snapshot; it never
// touches the projection's own metrics.
func DominantInfluence(owners map[ChunkKey]string, snap *StableSnapshot) map[RegionKey]string {
	out := map[RegionKey]string{}
	if snap == nil {
		return out
	}
	counts := map[RegionKey]map[string]int{}
	for k, m := range snap.Metrics {
		if m.Liveliness != 1.0 {
			continue
		}
		owner, ok := owners[k]
		if !ok || owner == "" {
			continue
		}
		rk := k.Region()
		if counts[rk] == nil {
			counts[rk] = map[string]int{}
		}
		counts[rk][owner]++
	}
	for rk, byOwner := range counts {
		names := make([]string, 0, len(byOwner))
		for n := range byOwner {
			names = append(names, n)
		}
		// Highest count wins; ties go to the lexicographically first owner.
		sort.Slice(names, func(i, j int) bool {
			if byOwner[names[i]] != byOwner[names[j]] {
				return byOwner[names[i]] > byOwner[names[j]]
			}
			return names[i] < names[j]
		})
		out[rk] = names[0]
	}
	return out
}
