package versioning

import (
	"github.com/platinummonkey/modgraph/pkg/modules"
	"github.com/platinummonkey/modgraph/pkg/semver"
)

// SuggestNext parses current and returns the next version for the bump kind.
// Tags are never part of the result; callers attach them separately.
func SuggestNext(current string, bump semver.Bump) (string, error) {
	v, err := semver.ParseVersion(current)
	if err != nil {
		return "", err
	}
	return v.Next(bump).String(), nil
}

// NextSatisfying returns the lowest version above installed, within the same
// major, that satisfies c. Candidates are the next patch, every successive
// minor up to the largest minor the range names, and the range's own
// boundary versions, so a floor several patches ahead is reached exactly.
func NextSatisfying(installed semver.Version, c semver.Constraint) (semver.Version, bool) {
	if installed.IsZero() || c.IsZero() {
		return semver.Version{}, false
	}

	candidates := []semver.Version{installed.Next(semver.BumpPatch)}
	limit := installed.Minor() + 1
	for _, b := range c.Boundaries() {
		if b.Major() != installed.Major() {
			continue
		}
		candidates = append(candidates, b)
		if b.Minor()+1 > limit {
			limit = b.Minor() + 1
		}
	}
	for next := installed.Next(semver.BumpMinor); next.Major() == installed.Major() && next.Minor() <= limit; next = next.Next(semver.BumpMinor) {
		candidates = append(candidates, next)
	}

	var best semver.Version
	for _, v := range candidates {
		if v.Major() != installed.Major() || !semver.Less(installed, v) || !semver.Satisfies(v, c) {
			continue
		}
		if best.IsZero() || semver.Less(v, best) {
			best = v
		}
	}
	return best, !best.IsZero()
}

// SelectPublished picks the published record that best satisfies c: the
// highest stable version, else the highest rc, then beta, then alpha. Records
// with malformed versions are skipped.
func SelectPublished(records []modules.VersionRecord, c semver.Constraint) (modules.VersionRecord, bool) {
	var (
		best     modules.VersionRecord
		bestVer  semver.Version
		bestRank = -1
	)
	for _, r := range records {
		v, err := semver.ParseVersion(r.Version)
		if err != nil || !semver.Satisfies(v, c) {
			continue
		}
		rank := tagOf(r).Rank()
		if rank > bestRank || (rank == bestRank && semver.Compare(v, bestVer) > 0) {
			best, bestVer, bestRank = r, v, rank
		}
	}
	return best, bestRank >= 0
}

// Latest returns the record holding the highest version regardless of tag
func Latest(records []modules.VersionRecord) (modules.VersionRecord, bool) {
	var (
		best    modules.VersionRecord
		bestVer semver.Version
		found   bool
	)
	for _, r := range records {
		v, err := semver.ParseVersion(r.Version)
		if err != nil {
			continue
		}
		if !found || semver.Compare(v, bestVer) > 0 {
			best, bestVer, found = r, v, true
		}
	}
	return best, found
}

// MarkLatest returns a copy of records with IsLatest set on the highest version only
func MarkLatest(records []modules.VersionRecord) []modules.VersionRecord {
	out := make([]modules.VersionRecord, len(records))
	copy(out, records)
	latest, ok := Latest(out)
	for i := range out {
		out[i].IsLatest = ok && out[i].Version == latest.Version
	}
	return out
}

func tagOf(r modules.VersionRecord) modules.Tag {
	if r.Tag == "" {
		return modules.TagStable
	}
	return r.Tag
}
