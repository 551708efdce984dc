package scan

import "sort"

// OriginSet is the set of origins a crate was seen in.
type OriginSet uint8

// Add inserts an origin into the set.
func (s *OriginSet) Add(o Origin) { *s |= 1 << o }

// Has reports whether the set contains o.
func (s OriginSet) Has(o Origin) bool { return s&(1<<o) != 0 }

// TestOnly reports whether the set is non-empty and contains nothing but
// the test origin. Such crates belong in [dev-dependencies].
func (s OriginSet) TestOnly() bool { return s == 1<<OriginTest }

// Usage aggregates every reference to one crate across the project.
type Usage struct {
	Name      string // normalized crate name
	RawName   string // first-seen raw spelling, used when writing the manifest
	Origins   OriginSet
	FileCount int      // number of distinct files referencing the crate
	Files     []string // relative paths, sorted
}

// Aggregate merges per-file extraction results into project-level usage
// keyed by normalized name. Duplicate references within one file count
// that file once. When skipTests is set, test-origin references are
// discarded before aggregation: they neither add dev-dependencies nor
// keep a crate alive.
func Aggregate(files []FileResult, skipTests bool) map[string]*Usage {
	usages := map[string]*Usage{}

	for _, file := range files {
		counted := map[string]bool{}
		for _, ref := range file.Refs {
			if skipTests && ref.Origin == OriginTest {
				continue
			}
			u := usages[ref.Name]
			if u == nil {
				u = &Usage{Name: ref.Name, RawName: ref.RawName}
				usages[ref.Name] = u
			}
			u.Origins.Add(ref.Origin)
			if !counted[ref.Name] {
				counted[ref.Name] = true
				u.FileCount++
				u.Files = append(u.Files, file.Path)
			}
		}
	}

	for _, u := range usages {
		sort.Strings(u.Files)
	}
	return usages
}
