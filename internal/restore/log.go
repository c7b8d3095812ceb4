package restore

import (
	"sort"
	"sync"

	"driverecover/internal/models"
)

// Log collects counters, audit entries and per-item errors for one walk. It
// is created once per run and shared by every branch of the walk.
type Log struct {
	mu sync.Mutex

	stats          models.Stats
	duplicates     map[string]*models.DuplicateGroup
	groups         map[groupKey]struct{}
	recursive      bool
	readErrors     []models.ReadError
	recoveryErrors []models.RecoveryError
	notDeleted     []models.SkippedItem
	filtered       []models.FilteredItem
}

func NewLog() *Log {
	return &Log{
		duplicates: make(map[string]*models.DuplicateGroup),
		groups:     make(map[groupKey]struct{}),
	}
}

// firstRecursive reports whether this is the first folder of the walk that is
// restored item by item.
func (l *Log) firstRecursive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	first := !l.recursive
	l.recursive = true
	return first
}

// AddProcessed counts listed items and returns the new totals.
func (l *Log) AddProcessed(files, folders int) models.Counts {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.Processed.Files += files
	l.stats.Processed.Folders += folders
	return l.stats.Processed
}

// AddRecovered counts one restored item and returns the new total of its kind.
func (l *Log) AddRecovered(folder bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if folder {
		l.stats.Recovered.Folders++
		return l.stats.Recovered.Folders
	}
	l.stats.Recovered.Files++
	return l.stats.Recovered.Files
}

// AddDuplicate registers a duplicate group under its path. Groups are counted
// per type, so a file group and a folder group sharing a path both count.
func (l *Log) AddDuplicate(g *models.DuplicateGroup) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := groupKey{folder: g.Type == "folder", name: g.Path}
	if _, ok := l.groups[key]; !ok {
		l.groups[key] = struct{}{}
		if key.folder {
			l.stats.Duplicates.Folders++
		} else {
			l.stats.Duplicates.Files++
		}
	}
	l.duplicates[g.Path] = g
}

func (l *Log) AddFiltered(item models.FilteredItem) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.Filtered++
	l.filtered = append(l.filtered, item)
}

func (l *Log) AddNotDeleted(item models.SkippedItem) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.NotDeleted++
	l.notDeleted = append(l.notDeleted, item)
}

func (l *Log) AddReadError(e models.ReadError) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readErrors = append(l.readErrors, e)
}

func (l *Log) AddRecoveryError(e models.RecoveryError) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recoveryErrors = append(l.recoveryErrors, e)
}

// Stats returns a copy of the counters.
func (l *Log) Stats() models.Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Fill copies the collected data into res. Lists are sorted by path so that
// the output does not depend on the order in which branches finished.
func (l *Log) Fill(res *models.RestoreResult) {
	l.mu.Lock()
	defer l.mu.Unlock()

	res.Stats = l.stats
	res.DuplicateRegistry = make(map[string]*models.DuplicateGroup, len(l.duplicates))
	for k, v := range l.duplicates {
		res.DuplicateRegistry[k] = v
	}

	res.ReadErrors = append([]models.ReadError{}, l.readErrors...)
	sort.SliceStable(res.ReadErrors, func(i, j int) bool {
		a, b := res.ReadErrors[i], res.ReadErrors[j]
		return a.Path+"/"+a.Name+a.PathOrID < b.Path+"/"+b.Name+b.PathOrID
	})

	res.RecoveryErrors = append([]models.RecoveryError{}, l.recoveryErrors...)
	sort.SliceStable(res.RecoveryErrors, func(i, j int) bool {
		a, b := res.RecoveryErrors[i], res.RecoveryErrors[j]
		return a.Path+"/"+a.Name < b.Path+"/"+b.Name
	})

	res.NotDeletedErrors = append([]models.SkippedItem{}, l.notDeleted...)
	sort.SliceStable(res.NotDeletedErrors, func(i, j int) bool {
		a, b := res.NotDeletedErrors[i], res.NotDeletedErrors[j]
		return a.Path+"/"+a.Name < b.Path+"/"+b.Name
	})

	res.FilteredItems = append([]models.FilteredItem{}, l.filtered...)
	sort.SliceStable(res.FilteredItems, func(i, j int) bool {
		a, b := res.FilteredItems[i], res.FilteredItems[j]
		return a.Path+"/"+a.Name < b.Path+"/"+b.Name
	})

	res.HasDuplicates = len(l.duplicates) > 0
}
