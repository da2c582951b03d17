package snapshot

import "sort"

// LatestPerKey reduces snaps to the most recent record per LatestKey.
// It sorts by ObservedAt descending (UpdatedAt breaks ties) and keeps the first
// record seen for each key, so the output is ordered newest first.
func LatestPerKey(snaps []Snapshot) []Snapshot {
	sorted := make([]Snapshot, len(snaps))
	copy(sorted, snaps)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].ObservedAt.Equal(sorted[j].ObservedAt) {
			return sorted[i].ObservedAt.After(sorted[j].ObservedAt)
		}
		return sorted[i].UpdatedAt.After(sorted[j].UpdatedAt)
	})

	seen := make(map[LatestKey]struct{}, len(sorted))
	out := make([]Snapshot, 0, len(sorted))
	for _, s := range sorted {
		k := s.LatestKey()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return out
}
