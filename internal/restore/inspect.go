package restore

import (
	"context"

	"driverecover/internal/errors"
	"driverecover/internal/models"
	"driverecover/internal/remote"
)

// Lookup fetches the item ref points at, deleted or not.
func (r *Restorer) Lookup(ctx context.Context, ref Ref) (*remote.Item, error) {
	addr := ref.ID
	if addr == "" {
		if r.resolver == nil {
			return nil, errors.New("no path resolver configured")
		}
		addr = r.resolver.Resolve(ref.Path...)
	}

	q := remote.Query{IncludeDeleted: true, Select: remote.DefaultSelect}
	return withTimeoutValue(ctx, r.opts.RequestTimeout, func(ctx context.Context) (*remote.Item, error) {
		return r.client.GetItem(ctx, addr, q)
	})
}

// ListDeleted returns the folder ref points at and those of its children that
// only show up when deleted items are included.
func (r *Restorer) ListDeleted(ctx context.Context, ref Ref) (*remote.Item, []*remote.Item, error) {
	folder, err := r.Lookup(ctx, ref)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open %v", ref)
	}

	all, err := r.listChildren(ctx, folder.ID, true)
	if err != nil {
		return nil, nil, errors.Wrap(err, "list children including deleted items")
	}
	current, err := r.listChildren(ctx, folder.ID, false)
	if err != nil {
		return nil, nil, errors.Wrap(err, "list children")
	}

	present := make(map[string]struct{}, len(current))
	for _, it := range current {
		present[it.ID] = struct{}{}
	}

	var deleted []*remote.Item
	for _, it := range all {
		if _, ok := present[it.ID]; !ok {
			deleted = append(deleted, it)
		}
	}
	return folder, deleted, nil
}

// FindDuplicates reports the duplicate groups among the children of the
// folder ref points at without restoring anything.
func (r *Restorer) FindDuplicates(ctx context.Context, ref Ref) (*remote.Item, []*models.DuplicateGroup, error) {
	folder, err := r.Lookup(ctx, ref)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open %v", ref)
	}

	children, err := r.listChildren(ctx, folder.ID, true)
	if err != nil {
		return nil, nil, errors.Wrap(err, "list children including deleted items")
	}

	var files, folders []*remote.Item
	for _, c := range children {
		if c.IsFolder {
			folders = append(folders, c)
		} else {
			files = append(files, c)
		}
	}

	_, fileDups := ResolveDuplicates(files)
	_, folderDups := ResolveDuplicates(folders)
	return folder, append(fileDups, folderDups...), nil
}
