// Package remote defines the contract the restore engine consumes from a
// recycle-bin capable storage service.
package remote

import (
	"context"
	"time"
)

// Client is implemented by every storage backend that exposes deleted items.
// All service and transport failures are returned as *Error so the engine can
// classify them; any other error aborts the restore run.
type Client interface {
	// GetItem fetches a single item by opaque id or by an address produced by
	// the backend's path resolver.
	GetItem(ctx context.Context, idOrAddress string, q Query) (*Item, error)
	// GetChildren lists one page of the children of a folder.
	GetChildren(ctx context.Context, id string, q Query) (*Listing, error)
	// RestoreItem moves a deleted item out of the recycle bin. An empty
	// targetParentID restores it to its original location.
	RestoreItem(ctx context.Context, id, targetParentID string) error
	// ItemExists reports whether the item is present outside the recycle bin.
	ItemExists(ctx context.Context, id string) (bool, error)
}

// Item is an immutable snapshot of a file or folder as reported by the service.
type Item struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ParentID     string    `json:"parent_id,omitempty"`
	ParentPath   string    `json:"parent_path"`
	IsFolder     bool      `json:"is_folder"`
	LastModified time.Time `json:"last_modified"`
	Size         int64     `json:"size"`
	ChildCount   int       `json:"child_count,omitempty"`
	// Children is only filled when the query asked for them.
	Children []*Item `json:"children,omitempty"`
}

// Path returns the full path of the item.
func (it *Item) Path() string {
	return it.ParentPath + "/" + it.Name
}

// Kind returns "folder" or "file".
func (it *Item) Kind() string {
	if it.IsFolder {
		return "folder"
	}
	return "file"
}

// Listing is one page of children.
type Listing struct {
	Items         []*Item
	TotalCount    int
	NextPageToken string
}
