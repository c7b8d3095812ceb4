package models

import (
	"time"

	"driverecover/internal/remote"
)

// Summary statuses of a finished run.
const (
	StatusComplete            = "complete"
	StatusCompletedWithErrors = "completed_with_errors"
	StatusFailed              = "failed"
	StatusNothingToRecover    = "nothing_to_recover"
)

// Counts splits a counter by item category.
type Counts struct {
	Files   int `json:"files"`
	Folders int `json:"folders"`
}

func (c Counts) Total() int {
	return c.Files + c.Folders
}

type Stats struct {
	Processed  Counts `json:"processed"`
	Recovered  Counts `json:"recovered"`
	Duplicates Counts `json:"duplicates"`
	Filtered   int    `json:"filtered"`
	NotDeleted int    `json:"not_deleted"`
}

// DuplicateVersion describes one deleted version in a duplicate group.
type DuplicateVersion struct {
	LastModified time.Time `json:"last_modified"`
	Size         int64     `json:"size"`
	ChildCount   int       `json:"child_count,omitempty"`
}

// DuplicateGroup is an audit entry for several deleted items sharing a parent
// path and name. Only RecoveredID is restored.
type DuplicateGroup struct {
	Type        string                      `json:"type"`
	ItemName    string                      `json:"item_name"`
	Path        string                      `json:"path"`
	RecoveredID string                      `json:"recovered_id"`
	Duplicates  map[string]DuplicateVersion `json:"duplicates"`
}

// TreeNode is one recovered folder in the directory tree. Files maps names to
// item ids.
type TreeNode struct {
	ID          string               `json:"id"`
	BulkRestore bool                 `json:"bulk_restore,omitempty"`
	Files       map[string]string    `json:"files,omitempty"`
	Folders     map[string]*TreeNode `json:"folders,omitempty"`
}

// DirectoryTree maps the root item's name to its node.
type DirectoryTree map[string]*TreeNode

type ReadError struct {
	PathOrID string        `json:"path_or_id,omitempty"`
	ID       string        `json:"id,omitempty"`
	Name     string        `json:"name,omitempty"`
	Path     string        `json:"path,omitempty"`
	Context  string        `json:"context"`
	Error    *remote.Error `json:"error"`
}

type RecoveryError struct {
	ItemID   string        `json:"item_id"`
	Name     string        `json:"name"`
	Path     string        `json:"path"`
	Attempts int           `json:"attempts"`
	Error    *remote.Error `json:"error"`
}

type SkippedItem struct {
	ItemID string `json:"item_id"`
	Name   string `json:"name"`
	Path   string `json:"path"`
}

type FilteredItem struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Path  string `json:"path"`
	Match string `json:"match"`
}

type RestoreResult struct {
	RunID             string                     `json:"run_id"`
	Root              string                     `json:"root"`
	Status            string                     `json:"status"`
	HasDuplicates     bool                       `json:"has_duplicates"`
	StartedAt         string                     `json:"started_at"`
	Duration          string                     `json:"duration"`
	DirectoryTree     DirectoryTree              `json:"directory_tree"`
	Stats             Stats                      `json:"stats"`
	DuplicateRegistry map[string]*DuplicateGroup `json:"duplicate_registry"`
	ReadErrors        []ReadError                `json:"read_errors"`
	RecoveryErrors    []RecoveryError            `json:"recovery_errors"`
	NotDeletedErrors  []SkippedItem              `json:"not_deleted_errors"`
	FilteredItems     []FilteredItem             `json:"filtered_items"`
}

// SummaryStatus derives the overall outcome the way it is shown to the user.
func (r *RestoreResult) SummaryStatus() string {
	recovered := r.Stats.Recovered.Total()
	switch {
	case len(r.ReadErrors) > 0 || len(r.RecoveryErrors) > 0:
		if recovered == 0 {
			return StatusFailed
		}
		return StatusCompletedWithErrors
	case recovered == 0:
		return StatusNothingToRecover
	}
	return StatusComplete
}
