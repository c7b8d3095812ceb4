package restore

import (
	"sort"
	"strconv"
	"strings"

	"driverecover/internal/models"
	"driverecover/internal/remote"
)

// idSeparator splits a drive item id into its drive part and a numeric
// sequence that grows with every new item.
const idSeparator = "!"

type groupKey struct {
	folder bool
	name   string
}

// ResolveDuplicates groups items by kind and name and keeps one canonical item
// per group. The canonical items are returned sorted by name; every group with
// more than one member is returned as an audit entry. The result does not
// depend on the order of items.
func ResolveDuplicates(items []*remote.Item) ([]*remote.Item, []*models.DuplicateGroup) {
	groups := make(map[groupKey][]*remote.Item)
	for _, it := range items {
		k := groupKey{folder: it.IsFolder, name: it.Name}
		groups[k] = append(groups[k], it)
	}

	unique := make([]*remote.Item, 0, len(groups))
	var dups []*models.DuplicateGroup

	for _, members := range groups {
		best := members[0]
		for _, it := range members[1:] {
			best = newer(best, it)
		}
		unique = append(unique, best)

		if len(members) > 1 {
			dups = append(dups, newDuplicateGroup(best, members))
		}
	}

	sort.Slice(unique, func(i, j int) bool {
		if unique[i].Name != unique[j].Name {
			return unique[i].Name < unique[j].Name
		}
		return !unique[i].IsFolder && unique[j].IsFolder
	})
	sort.Slice(dups, func(i, j int) bool {
		if dups[i].Path != dups[j].Path {
			return dups[i].Path < dups[j].Path
		}
		return dups[i].Type < dups[j].Type
	})

	return unique, dups
}

// newer picks the item with the latest modification time. Ties go to the
// larger id sequence, then to the larger id, so the choice is a total order.
func newer(a, b *remote.Item) *remote.Item {
	if !a.LastModified.Equal(b.LastModified) {
		if a.LastModified.After(b.LastModified) {
			return a
		}
		return b
	}

	sa, sb := idSequence(a.ID), idSequence(b.ID)
	if sa != sb {
		if sa > sb {
			return a
		}
		return b
	}

	if a.ID >= b.ID {
		return a
	}
	return b
}

// idSequence returns the number after the separator, or -1.
func idSequence(id string) int64 {
	_, seq, ok := strings.Cut(id, idSeparator)
	if !ok {
		return -1
	}
	n, err := strconv.ParseInt(seq, 10, 64)
	if err != nil {
		return -1
	}
	return n
}

func newDuplicateGroup(canonical *remote.Item, members []*remote.Item) *models.DuplicateGroup {
	g := &models.DuplicateGroup{
		Type:        canonical.Kind(),
		ItemName:    canonical.Name,
		Path:        canonical.Path(),
		RecoveredID: canonical.ID,
		Duplicates:  make(map[string]models.DuplicateVersion, len(members)),
	}
	for _, it := range members {
		g.Duplicates[it.ID] = models.DuplicateVersion{
			LastModified: it.LastModified,
			Size:         it.Size,
			ChildCount:   it.ChildCount,
		}
	}
	return g
}
