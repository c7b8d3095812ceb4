package restore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"driverecover/internal/errors"
	"driverecover/internal/metrics"
	"driverecover/internal/models"
	"driverecover/internal/remote"
)

// PathResolver turns a human-readable path into an address the backend
// accepts in GetItem.
type PathResolver interface {
	Resolve(segments ...string) string
}

// Restorer runs restore walks against one remote client.
type Restorer struct {
	client   remote.Client
	resolver PathResolver
	opts     Options
	policy   *Policy
	log      *zap.Logger
	progress Progress
	sem      *semaphore.Weighted
}

// New returns a Restorer. opts is merged over DefaultOptions.
func New(client remote.Client, resolver PathResolver, opts Options) *Restorer {
	opts = DefaultOptions().Merge(opts)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Progress == nil {
		opts.Progress = NoProgress{}
	}

	r := &Restorer{
		client:   client,
		resolver: resolver,
		opts:     opts,
		policy:   NewPolicy(client, opts),
		log:      opts.Logger,
		progress: opts.Progress,
	}
	if opts.MaxConcurrency > 0 {
		r.sem = semaphore.NewWeighted(int64(opts.MaxConcurrency))
	}
	return r
}

// Policy returns the retry policy used for single item restores.
func (r *Restorer) Policy() *Policy {
	return r.policy
}

// Run restores the item referenced by ref and everything below it. The result
// is returned for every run that was not aborted; a returned error is fatal.
func (r *Restorer) Run(ctx context.Context, ref Ref) (*models.RestoreResult, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := NewLog()

	r.log.Info("starting recovery", zap.String("run_id", runID), zap.Stringer("root", ref))

	tree := models.DirectoryTree{}

	root, err := r.resolve(ctx, ref, log)
	if err != nil {
		return nil, errors.Fatalf("recovery of %v aborted: %v", ref, err)
	}

	if root != nil {
		node, _, err := r.visit(ctx, root, log, true)
		if err != nil {
			if errors.IsFatal(err) {
				return nil, err
			}
			return nil, errors.Fatalf("recovery of %v aborted: %v", ref, err)
		}
		if node != nil {
			tree[root.Name] = node
		}
	}

	res := &models.RestoreResult{
		RunID:         runID,
		Root:          ref.String(),
		StartedAt:     start.UTC().Format(time.RFC3339),
		DirectoryTree: tree,
	}
	log.Fill(res)
	res.Status = res.SummaryStatus()

	elapsed := time.Since(start)
	res.Duration = elapsed.String()
	metrics.ObserveWalk(res.Status, elapsed)

	r.log.Info("recovery finished",
		zap.String("run_id", runID),
		zap.String("status", res.Status),
		zap.Int("recovered_files", res.Stats.Recovered.Files),
		zap.Int("recovered_folders", res.Stats.Recovered.Folders),
		zap.Int("read_errors", len(res.ReadErrors)),
		zap.Int("recovery_errors", len(res.RecoveryErrors)),
		zap.Duration("duration", elapsed))

	return res, nil
}

// resolve fetches the root item. A service error is recorded and yields a nil
// item.
func (r *Restorer) resolve(ctx context.Context, ref Ref, log *Log) (*remote.Item, error) {
	addr := ref.ID
	if addr == "" {
		if r.resolver == nil {
			return nil, errors.New("no path resolver configured")
		}
		addr = r.resolver.Resolve(ref.Path...)
	}

	q := remote.Query{IncludeDeleted: true, Select: remote.DefaultSelect}
	item, err := withTimeoutValue(ctx, r.opts.RequestTimeout, func(ctx context.Context) (*remote.Item, error) {
		return r.client.GetItem(ctx, addr, q)
	})
	if err != nil {
		rerr, ok := remote.AsError(err)
		if !ok {
			return nil, err
		}
		r.log.Warn("could not open path or id", zap.String("ref", ref.String()), zap.Error(err))
		log.AddReadError(models.ReadError{PathOrID: ref.String(), Context: "folder", Error: rerr})
		return nil, nil
	}
	return item, nil
}

// visit restores item and its subtree. It returns the tree node for item, or
// nil when nothing is to be reported, and the number of items restored below
// and including item.
func (r *Restorer) visit(ctx context.Context, item *remote.Item, log *Log, root bool) (*models.TreeNode, int, error) {
	if !item.IsFolder {
		return r.visitRootFile(ctx, item, log)
	}

	path := item.Path() + "/"
	r.progress.CurrentFolder(path)
	r.log.Info("opened folder", zap.String("name", item.Name), zap.String("path", path))

	if match := r.opts.excluded(item.Name); match != "" {
		r.log.Info("skipping filtered folder", zap.String("path", path), zap.String("match", match))
		log.AddFiltered(models.FilteredItem{ID: item.ID, Name: item.Name, Path: item.ParentPath, Match: match})
		return nil, 0, nil
	}

	if root {
		r.progress.ProcessedFolders(log.AddProcessed(0, 1).Folders)
	}

	release, err := r.acquire(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer release()

	if !r.opts.DisableBulk {
		ok, err := r.bulkRestore(ctx, item, log, root)
		if err != nil {
			return nil, 0, err
		}
		if ok {
			return &models.TreeNode{ID: item.ID, BulkRestore: true}, 1, nil
		}
	}
	if log.firstRecursive() {
		r.progress.Status("Bulk restore failed or turned off, enabling recursive mode (much slower).")
	}

	children, err := r.listChildren(ctx, item.ID, true)
	if err != nil {
		rerr, ok := remote.AsError(err)
		if !ok {
			return nil, 0, err
		}
		r.log.Warn("could not list children", zap.String("path", path), zap.Error(err))
		log.AddReadError(models.ReadError{ID: item.ID, Name: item.Name, Path: item.ParentPath, Context: "children", Error: rerr})
		return nil, 0, nil
	}

	if len(children) == 0 {
		return r.restoreEmptyFolder(ctx, item, log)
	}

	return r.restoreChildren(ctx, item, children, log, release)
}

func (r *Restorer) bulkRestore(ctx context.Context, item *remote.Item, log *Log, root bool) (bool, error) {
	r.log.Info("attempting bulk restore", zap.String("item_id", item.ID), zap.String("name", item.Name))

	target := ""
	if root {
		target = r.opts.TargetParentID
	}

	err := r.policy.RestoreOnce(ctx, item.ID, target, r.opts.BulkTimeout)
	if err == nil {
		r.log.Info("bulk restore succeeded, item and all children restored", zap.String("item_id", item.ID))
		metrics.RecordRestored("folder")
		r.progress.RecoveredFolders(log.AddRecovered(true))
		return true, nil
	}
	if _, ok := remote.AsError(err); !ok {
		return false, err
	}

	r.log.Warn("bulk restore failed, falling back to recursive restore",
		zap.String("name", item.Name), zap.Error(err))
	if root && target != "" {
		r.log.Warn("recursive restore ignores the target parent", zap.String("target_parent_id", target))
	}
	return false, nil
}

func (r *Restorer) restoreEmptyFolder(ctx context.Context, item *remote.Item, log *Log) (*models.TreeNode, int, error) {
	exists, err := withTimeoutValue(ctx, r.opts.RequestTimeout, func(ctx context.Context) (bool, error) {
		return r.client.ItemExists(ctx, item.ID)
	})
	if err != nil {
		rerr, ok := remote.AsError(err)
		if !ok {
			return nil, 0, err
		}
		log.AddReadError(models.ReadError{ID: item.ID, Name: item.Name, Path: item.ParentPath, Context: "exists", Error: rerr})
		return nil, 0, nil
	}

	if exists {
		log.AddNotDeleted(models.SkippedItem{ItemID: item.ID, Name: item.Name, Path: item.ParentPath})
		return nil, 0, nil
	}

	res, err := r.policy.Restore(ctx, item.ID, "")
	if err != nil {
		return nil, 0, err
	}
	if r.record(item, res, log) {
		return &models.TreeNode{ID: item.ID}, 1, nil
	}
	return nil, 0, nil
}

func (r *Restorer) restoreChildren(ctx context.Context, folder *remote.Item, children []*remote.Item, log *Log, release func()) (*models.TreeNode, int, error) {
	var files, folders []*remote.Item
	visible := 0
	for _, c := range children {
		if c.IsFolder {
			folders = append(folders, c)
			if r.opts.excluded(c.Name) == "" {
				visible++
			}
			continue
		}
		files = append(files, c)
	}

	processed := log.AddProcessed(len(files), visible)
	r.progress.ProcessedFiles(processed.Files)
	r.progress.ProcessedFolders(processed.Folders)

	files, fileDups := ResolveDuplicates(files)
	folders, folderDups := ResolveDuplicates(folders)
	for _, g := range append(fileDups, folderDups...) {
		r.log.Info("found duplicates", zap.String("path", g.Path), zap.String("recovered_id", g.RecoveredID), zap.Int("versions", len(g.Duplicates)))
		log.AddDuplicate(g)
	}

	// the folder comes back with its first restored child
	wasDeleted := false
	exists, err := withTimeoutValue(ctx, r.opts.RequestTimeout, func(ctx context.Context) (bool, error) {
		return r.client.ItemExists(ctx, folder.ID)
	})
	if err != nil {
		if _, ok := remote.AsError(err); !ok {
			return nil, 0, err
		}
		r.log.Debug("could not check folder state", zap.String("item_id", folder.ID), zap.Error(err))
	} else {
		wasDeleted = !exists
	}

	node := &models.TreeNode{ID: folder.ID}
	recovered := 0

	restoredFiles := make(map[string]string)
	for _, f := range files {
		r.log.Info("restoring file", zap.String("name", f.Name), zap.String("item_id", f.ID))
		res, err := r.policy.Restore(ctx, f.ID, "")
		if err != nil {
			return nil, 0, err
		}
		if r.record(f, res, log) {
			restoredFiles[f.Name] = f.ID
			recovered++
		}
	}
	if len(restoredFiles) > 0 {
		node.Files = restoredFiles
	}

	release()

	if len(folders) > 0 {
		var mu sync.Mutex
		subtrees := make(map[string]*models.TreeNode)

		g, gctx := errgroup.WithContext(ctx)
		for _, sub := range folders {
			sub := sub
			g.Go(func() (err error) {
				defer func() {
					if p := recover(); p != nil {
						err = errors.Fatalf("unexpected failure in %v: %v", sub.Path(), p)
					}
				}()

				child, n, err := r.visit(gctx, sub, log, false)
				if err != nil {
					return err
				}

				mu.Lock()
				recovered += n
				if child != nil {
					subtrees[sub.Name] = child
				}
				mu.Unlock()

				r.progress.RecoveredFolders(log.Stats().Recovered.Folders)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, 0, err
		}
		if len(subtrees) > 0 {
			node.Folders = subtrees
		}
	}

	if wasDeleted && recovered > 0 {
		metrics.RecordRestored("folder")
		r.progress.RecoveredFolders(log.AddRecovered(true))
		recovered++
	}

	return node, recovered, nil
}

// visitRootFile restores a root item that turned out to be a file.
func (r *Restorer) visitRootFile(ctx context.Context, item *remote.Item, log *Log) (*models.TreeNode, int, error) {
	r.progress.ProcessedFiles(log.AddProcessed(1, 0).Files)

	res, err := r.policy.Restore(ctx, item.ID, r.opts.TargetParentID)
	if err != nil {
		return nil, 0, err
	}
	if r.record(item, res, log) {
		return &models.TreeNode{ID: item.ID}, 1, nil
	}
	return nil, 0, nil
}

// record books the outcome of a single restore and reports whether the item
// was restored.
func (r *Restorer) record(item *remote.Item, res Result, log *Log) bool {
	switch res.Outcome {
	case Restored:
		metrics.RecordRestored(item.Kind())
		n := log.AddRecovered(item.IsFolder)
		if item.IsFolder {
			r.progress.RecoveredFolders(n)
		} else {
			r.progress.RecoveredFiles(n)
		}
		return true
	case NotDeleted:
		r.log.Debug("item is not deleted", zap.String("item_id", item.ID), zap.String("name", item.Name))
		log.AddNotDeleted(models.SkippedItem{ItemID: item.ID, Name: item.Name, Path: item.ParentPath})
	default:
		r.log.Error("failed to restore item",
			zap.String("item_id", item.ID),
			zap.String("name", item.Name),
			zap.Int("attempts", res.Attempts),
			zap.Error(res.Err))
		log.AddRecoveryError(models.RecoveryError{
			ItemID:   item.ID,
			Name:     item.Name,
			Path:     item.ParentPath,
			Attempts: res.Attempts,
			Error:    res.Err,
		})
	}
	return false
}

// listChildren fetches all pages of a folder listing.
func (r *Restorer) listChildren(ctx context.Context, id string, includeDeleted bool) ([]*remote.Item, error) {
	q := remote.Query{IncludeDeleted: includeDeleted, Select: remote.DefaultSelect, Limit: r.opts.FetchLimit}

	var items []*remote.Item
	for {
		page, err := withTimeoutValue(ctx, r.opts.ListTimeout, func(ctx context.Context) (*remote.Listing, error) {
			return r.client.GetChildren(ctx, id, q)
		})
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
		if page.NextPageToken == "" {
			return items, nil
		}
		q.PageToken = page.NextPageToken
	}
}

// acquire takes a concurrency slot. The returned func is idempotent.
func (r *Restorer) acquire(ctx context.Context) (func(), error) {
	if r.sem == nil {
		return func() {}, nil
	}
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(func() { r.sem.Release(1) }) }, nil
}
