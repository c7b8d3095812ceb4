// Package mock implements an in-memory recycle bin for tests.
package mock

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"driverecover/internal/remote"
)

// Call records one request made to the Client.
type Call struct {
	Op     string
	ID     string
	Target string
	Query  remote.Query
}

type entry struct {
	item     remote.Item
	deleted  bool
	parent   string
	children []string
}

// Client is a remote.Client backed by an in-memory tree. Restoring an item
// also restores its deleted ancestors, restoring a folder restores its whole
// subtree.
type Client struct {
	mu      sync.Mutex
	entries map[string]*entry
	calls   []Call

	// PageSize splits child listings into pages when > 0.
	PageSize int

	// Queued errors are returned, in order, by the next calls for an id.
	RestoreErrors  map[string][]error
	ChildrenErrors map[string][]error
	ItemErrors     map[string][]error
	ExistsErrors   map[string][]error
}

var _ remote.Client = &Client{}

func New() *Client {
	return &Client{
		entries:        make(map[string]*entry),
		RestoreErrors:  make(map[string][]error),
		ChildrenErrors: make(map[string][]error),
		ItemErrors:     make(map[string][]error),
		ExistsErrors:   make(map[string][]error),
	}
}

// AddFolder adds a folder below parentID; an empty parentID adds a top level
// folder.
func (c *Client) AddFolder(parentID, id, name string, deleted bool) *remote.Item {
	return c.add(parentID, remote.Item{ID: id, Name: name, IsFolder: true}, deleted)
}

// AddFile adds a file below parentID.
func (c *Client) AddFile(parentID, id, name string, modified time.Time, size int64, deleted bool) *remote.Item {
	return c.add(parentID, remote.Item{ID: id, Name: name, LastModified: modified, Size: size}, deleted)
}

func (c *Client) add(parentID string, item remote.Item, deleted bool) *remote.Item {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.entries[parentID]; ok {
		item.ParentID = parentID
		item.ParentPath = p.item.Path()
		p.children = append(p.children, item.ID)
		p.item.ChildCount = len(p.children)
	}
	c.entries[item.ID] = &entry{item: item, deleted: deleted, parent: parentID}
	it := item
	return &it
}

// Fail queues err for the next call of op ("restore", "children", "item",
// "exists") on id.
func (c *Client) Fail(op, id string, errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var m map[string][]error
	switch op {
	case "restore":
		m = c.RestoreErrors
	case "children":
		m = c.ChildrenErrors
	case "item":
		m = c.ItemErrors
	case "exists":
		m = c.ExistsErrors
	default:
		panic("unknown op " + op)
	}
	m[id] = append(m[id], errs...)
}

// Deleted reports whether id is still in the recycle bin.
func (c *Client) Deleted(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	return ok && e.deleted
}

// Calls returns all recorded calls.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call{}, c.calls...)
}

// CallsFor returns the calls of op on id. An empty op matches every op.
func (c *Client) CallsFor(op, id string) []Call {
	var out []Call
	for _, call := range c.Calls() {
		if (op == "" || call.Op == op) && call.ID == id {
			out = append(out, call)
		}
	}
	return out
}

func (c *Client) record(call Call) {
	c.calls = append(c.calls, call)
}

func popErr(m map[string][]error, id string) error {
	errs := m[id]
	if len(errs) == 0 {
		return nil
	}
	m[id] = errs[1:]
	return errs[0]
}

func notFound(id string) error {
	return remote.NewError(remote.CodeItemNotFound, "item not found: "+id)
}

func (c *Client) lookup(idOrAddress string) (*entry, bool) {
	if !strings.HasPrefix(idOrAddress, "/") {
		e, ok := c.entries[idOrAddress]
		return e, ok
	}
	for _, e := range c.entries {
		if e.item.Path() == idOrAddress {
			return e, true
		}
	}
	return nil, false
}

func (c *Client) GetItem(ctx context.Context, idOrAddress string, q remote.Query) (*remote.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(Call{Op: "item", ID: idOrAddress, Query: q})

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := popErr(c.ItemErrors, idOrAddress); err != nil {
		return nil, err
	}

	e, ok := c.lookup(idOrAddress)
	if !ok || (e.deleted && !q.IncludeDeleted) {
		return nil, notFound(idOrAddress)
	}
	it := e.item
	if q.IncludeChildren {
		for _, cid := range e.children {
			ce := c.entries[cid]
			if ce.deleted && !q.IncludeDeleted {
				continue
			}
			child := ce.item
			it.Children = append(it.Children, &child)
		}
	}
	return &it, nil
}

func (c *Client) GetChildren(ctx context.Context, id string, q remote.Query) (*remote.Listing, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(Call{Op: "children", ID: id, Query: q})

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := popErr(c.ChildrenErrors, id); err != nil {
		return nil, err
	}

	e, ok := c.entries[id]
	if !ok {
		return nil, notFound(id)
	}

	var items []*remote.Item
	for _, cid := range e.children {
		ce := c.entries[cid]
		if ce.deleted && !q.IncludeDeleted {
			continue
		}
		it := ce.item
		items = append(items, &it)
	}

	listing := &remote.Listing{TotalCount: len(items)}
	start := 0
	if q.PageToken != "" {
		start, _ = strconv.Atoi(q.PageToken)
	}
	end := len(items)
	if c.PageSize > 0 && start+c.PageSize < end {
		end = start + c.PageSize
		listing.NextPageToken = strconv.Itoa(end)
	}
	if start < end {
		listing.Items = items[start:end]
	}
	return listing, nil
}

func (c *Client) RestoreItem(ctx context.Context, id, targetParentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(Call{Op: "restore", ID: id, Target: targetParentID})

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := popErr(c.RestoreErrors, id); err != nil {
		return err
	}

	e, ok := c.entries[id]
	if !ok {
		return notFound(id)
	}
	if !e.deleted {
		return remote.NewError(remote.CodeNotAllowed, "item is not in the recycle bin")
	}

	c.undelete(e)
	for p, ok := c.entries[e.parent]; ok && p.deleted; p, ok = c.entries[p.parent] {
		p.deleted = false
	}
	return nil
}

func (c *Client) undelete(e *entry) {
	e.deleted = false
	for _, cid := range e.children {
		c.undelete(c.entries[cid])
	}
}

func (c *Client) ItemExists(ctx context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(Call{Op: "exists", ID: id})

	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := popErr(c.ExistsErrors, id); err != nil {
		return false, err
	}

	e, ok := c.entries[id]
	return ok && !e.deleted, nil
}

// Resolver addresses items by their full path.
type Resolver struct{}

func (Resolver) Resolve(segments ...string) string {
	return "/" + strings.Join(segments, "/")
}
