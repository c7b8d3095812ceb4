package restore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driverecover/internal/errors"
	"driverecover/internal/models"
	"driverecover/internal/remote"
	"driverecover/internal/remote/mock"
)

func run(t *testing.T, client *mock.Client, ref Ref, opts Options) *models.RestoreResult {
	t.Helper()
	if opts.RetryDelay == 0 {
		opts.RetryDelay = time.Millisecond
	}
	res, err := New(client, mock.Resolver{}, opts).Run(context.Background(), ref)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func TestRunDuplicatesAndEmptyFolder(t *testing.T) {
	client := mock.New()
	client.AddFolder("", "root!1", "Documents", false)
	client.AddFile("root!1", "A!2", "FileA", time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), 100, true)
	client.AddFile("root!1", "A!3", "FileA", time.Date(2021, 2, 1, 0, 0, 0, 0, time.UTC), 200, true)
	client.AddFolder("root!1", "B!4", "FolderB", true)

	res := run(t, client, Ref{ID: "root!1"}, Options{DisableBulk: true})

	require.Len(t, res.DuplicateRegistry, 1)
	group := res.DuplicateRegistry["/Documents/FileA"]
	require.NotNil(t, group)
	assert.Equal(t, "A!3", group.RecoveredID)
	assert.Len(t, group.Duplicates, 2)
	assert.Contains(t, group.Duplicates, "A!2")
	assert.True(t, res.HasDuplicates)

	assert.Equal(t, 1, res.Stats.Recovered.Files)
	assert.Equal(t, 1, res.Stats.Duplicates.Files)
	assert.Equal(t, 1, res.Stats.Recovered.Folders)
	assert.Equal(t, models.Counts{Files: 2, Folders: 2}, res.Stats.Processed)

	assert.False(t, client.Deleted("B!4"))
	assert.False(t, client.Deleted("A!3"))
	assert.True(t, client.Deleted("A!2"))
	assert.Empty(t, client.CallsFor("restore", "A!2"))

	want := models.DirectoryTree{
		"Documents": {
			ID:      "root!1",
			Files:   map[string]string{"FileA": "A!3"},
			Folders: map[string]*models.TreeNode{"FolderB": {ID: "B!4"}},
		},
	}
	if diff := cmp.Diff(want, res.DirectoryTree); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, models.StatusComplete, res.Status)
}

func TestRunDuplicateFilesAndFoldersSharingAName(t *testing.T) {
	client := mock.New()
	client.AddFolder("", "root!1", "root", true)
	client.AddFile("root!1", "f!1", "X", day(1), 1, true)
	client.AddFile("root!1", "f!2", "X", day(2), 1, true)
	client.AddFolder("root!1", "d!3", "X", true)
	client.AddFolder("root!1", "d!4", "X", true)

	res := run(t, client, Ref{ID: "root!1"}, Options{DisableBulk: true})

	assert.Equal(t, models.Counts{Files: 1, Folders: 1}, res.Stats.Duplicates)
	assert.False(t, client.Deleted("f!2"))
	assert.False(t, client.Deleted("d!4"))
	assert.True(t, client.Deleted("f!1"))
	assert.True(t, client.Deleted("d!3"))
}

type statusRecorder struct {
	NoProgress
	mu       sync.Mutex
	messages []string
}

func (s *statusRecorder) Status(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

func TestRunReportsRecursiveModeOnce(t *testing.T) {
	client := mock.New()
	client.AddFolder("", "R!1", "Projects", true)
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("S!%d", i+2)
		client.AddFolder("R!1", id, fmt.Sprintf("sub%d", i), true)
		client.AddFile(id, fmt.Sprintf("f!%d", i+10), "a.txt", day(1), 1, true)
	}
	for _, id := range []string{"R!1", "S!2", "S!3", "S!4", "S!5", "S!6"} {
		client.Fail("restore", id, remote.NewError(remote.CodeNotSupported, "bulk"))
	}

	progress := &statusRecorder{}
	run(t, client, Ref{ID: "R!1"}, Options{Progress: progress})

	assert.Equal(t, []string{"Bulk restore failed or turned off, enabling recursive mode (much slower)."}, progress.messages)
}

func TestRunBulkRestore(t *testing.T) {
	client := mock.New()
	client.AddFolder("", "R!1", "Projects", true)
	client.AddFolder("R!1", "S!2", "src", true)
	client.AddFile("S!2", "f!3", "main.go", day(1), 10, true)

	res := run(t, client, Ref{ID: "R!1"}, Options{})

	assert.Equal(t, 1, res.Stats.Recovered.Folders)
	assert.Equal(t, 0, res.Stats.Recovered.Files)
	assert.False(t, client.Deleted("f!3"))

	for _, call := range client.Calls() {
		assert.NotEqual(t, "children", call.Op, "no listing after a successful bulk restore")
		assert.NotEqual(t, "S!2", call.ID)
		assert.NotEqual(t, "f!3", call.ID)
	}

	want := models.DirectoryTree{"Projects": {ID: "R!1", BulkRestore: true}}
	if diff := cmp.Diff(want, res.DirectoryTree); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
}

func TestRunBulkRestoreTarget(t *testing.T) {
	client := mock.New()
	client.AddFolder("", "R!1", "Projects", true)

	run(t, client, Ref{ID: "R!1"}, Options{TargetParentID: "P!9"})

	calls := client.CallsFor("restore", "R!1")
	require.Len(t, calls, 1)
	assert.Equal(t, "P!9", calls[0].Target)
}

func TestRunFallsBackWhenBulkFails(t *testing.T) {
	client := mock.New()
	client.AddFolder("", "R!1", "Projects", true)
	client.AddFile("R!1", "f!2", "a.txt", day(1), 1, true)
	client.AddFile("R!1", "f!3", "b.txt", day(1), 1, true)
	client.Fail("restore", "R!1", remote.NewError(remote.CodeGeneralException, "too many items"))

	res := run(t, client, Ref{ID: "R!1"}, Options{})

	assert.Equal(t, 2, res.Stats.Recovered.Files)
	assert.Equal(t, 1, res.Stats.Recovered.Folders, "parent comes back with its first child")
	assert.False(t, client.Deleted("R!1"))
	assert.Len(t, client.CallsFor("restore", "R!1"), 1, "bulk restore is not retried")
	assert.Equal(t, models.StatusComplete, res.Status)
}

func TestRunSkipsFilteredFolders(t *testing.T) {
	client := mock.New()
	client.AddFolder("", "R!1", "app", false)
	client.AddFolder("R!1", "N!2", "node_modules", true)
	client.AddFile("N!2", "x!3", "index.js", day(1), 1, true)
	client.AddFile("R!1", "a!4", "package.json", day(1), 1, true)

	res := run(t, client, Ref{ID: "R!1"}, Options{})

	assert.Equal(t, 1, res.Stats.Filtered)
	assert.Equal(t, models.Counts{Files: 1, Folders: 1}, res.Stats.Processed)
	assert.Equal(t, 1, res.Stats.Recovered.Files)

	require.Len(t, res.FilteredItems, 1)
	assert.Equal(t, "node_modules", res.FilteredItems[0].Match)
	assert.Equal(t, "N!2", res.FilteredItems[0].ID)

	assert.Empty(t, client.CallsFor("", "N!2"))
	assert.Empty(t, client.CallsFor("", "x!3"))
	assert.True(t, client.Deleted("x!3"))
}

func TestRunCustomExclusionList(t *testing.T) {
	client := mock.New()
	client.AddFolder("", "R!1", "app", false)
	client.AddFolder("R!1", "N!2", "node_modules", true)
	client.AddFolder("R!1", "V!3", "vendor", true)

	res := run(t, client, Ref{ID: "R!1"}, Options{Exclude: []string{"vendor"}, DisableBulk: true})

	assert.Equal(t, 1, res.Stats.Filtered)
	assert.False(t, client.Deleted("N!2"))
	assert.True(t, client.Deleted("V!3"))
}

func TestRunOnRestoredTree(t *testing.T) {
	client := mock.New()
	client.AddFolder("", "R!1", "docs", false)
	client.AddFile("R!1", "a!2", "a.txt", day(1), 1, false)
	client.AddFolder("R!1", "S!3", "sub", false)
	client.AddFile("S!3", "b!4", "b.txt", day(1), 1, false)
	client.AddFolder("R!1", "E!5", "empty", false)

	res := run(t, client, Ref{ID: "R!1"}, Options{})

	assert.Equal(t, models.Counts{}, res.Stats.Recovered)
	assert.Equal(t, 3, res.Stats.NotDeleted)
	assert.Len(t, res.NotDeletedErrors, 3)
	assert.Empty(t, res.RecoveryErrors)
	assert.Empty(t, res.ReadErrors)
	assert.Equal(t, models.StatusNothingToRecover, res.Status)
}

func TestRunIsolatesReadErrors(t *testing.T) {
	client := mock.New()
	client.AddFolder("", "R!1", "root", false)
	client.AddFolder("R!1", "S1!2", "one", true)
	client.AddFile("S1!2", "f1!3", "a.txt", day(1), 1, true)
	client.AddFolder("R!1", "S2!4", "two", true)
	client.AddFile("S2!4", "f2!5", "b.txt", day(1), 1, true)
	client.Fail("children", "S1!2", remote.NewError(remote.CodeAccessDenied, "denied"))

	res := run(t, client, Ref{ID: "R!1"}, Options{DisableBulk: true})

	require.Len(t, res.ReadErrors, 1)
	assert.Equal(t, "S1!2", res.ReadErrors[0].ID)
	assert.Equal(t, "children", res.ReadErrors[0].Context)
	assert.Equal(t, remote.CodeAccessDenied, res.ReadErrors[0].Error.Code)

	assert.True(t, client.Deleted("f1!3"))
	assert.False(t, client.Deleted("f2!5"))
	assert.Equal(t, 1, res.Stats.Recovered.Files)
	assert.Equal(t, 1, res.Stats.Recovered.Folders)
	assert.Equal(t, models.StatusCompletedWithErrors, res.Status)
}

func TestRunRootReadError(t *testing.T) {
	client := mock.New()

	res := run(t, client, Ref{ID: "missing"}, Options{})

	require.Len(t, res.ReadErrors, 1)
	assert.Equal(t, "missing", res.ReadErrors[0].PathOrID)
	assert.Equal(t, "folder", res.ReadErrors[0].Context)
	assert.Equal(t, remote.CodeItemNotFound, res.ReadErrors[0].Error.Code)
	assert.Empty(t, res.DirectoryTree)
	assert.Equal(t, models.StatusFailed, res.Status)
}

func TestRunRecordsRecoveryErrors(t *testing.T) {
	client := mock.New()
	client.AddFolder("", "R!1", "root", false)
	client.AddFile("R!1", "f!2", "a.txt", day(1), 1, true)
	client.AddFile("R!1", "f!3", "b.txt", day(1), 1, true)
	for i := 0; i < 5; i++ {
		client.Fail("restore", "f!2", remote.NewError(remote.CodeGeneralException, fmt.Sprintf("busy %d", i)))
	}

	res := run(t, client, Ref{ID: "R!1"}, Options{DisableBulk: true})

	require.Len(t, res.RecoveryErrors, 1)
	rerr := res.RecoveryErrors[0]
	assert.Equal(t, "f!2", rerr.ItemID)
	assert.Equal(t, 5, rerr.Attempts)
	assert.Equal(t, "busy 4", rerr.Error.Message)
	assert.Len(t, client.CallsFor("restore", "f!2"), 5)

	assert.Equal(t, 1, res.Stats.Recovered.Files)
	assert.Equal(t, models.StatusCompletedWithErrors, res.Status)
}

func TestRunUnexpectedErrorIsFatal(t *testing.T) {
	client := mock.New()
	client.AddFolder("", "R!1", "root", false)
	client.AddFolder("R!1", "S!2", "sub", true)
	client.Fail("children", "S!2", errors.New("connection reset by peer"))

	res, err := New(client, nil, Options{DisableBulk: true}).Run(context.Background(), Ref{ID: "R!1"})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.IsFatal(err))
}

func TestRunCancelled(t *testing.T) {
	client := mock.New()
	client.AddFolder("", "R!1", "root", true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := New(client, nil, Options{}).Run(ctx, Ref{ID: "R!1"})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.IsFatal(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunPagedListing(t *testing.T) {
	client := mock.New()
	client.PageSize = 2
	client.AddFolder("", "R!1", "root", false)
	for i := 0; i < 5; i++ {
		client.AddFile("R!1", fmt.Sprintf("f!%d", i+10), fmt.Sprintf("file%d.txt", i), day(1), 1, true)
	}

	res := run(t, client, Ref{ID: "R!1"}, Options{DisableBulk: true, FetchLimit: 2})

	assert.Equal(t, 5, res.Stats.Recovered.Files)
	assert.Len(t, client.CallsFor("children", "R!1"), 3)
	for _, call := range client.CallsFor("children", "R!1") {
		assert.True(t, call.Query.IncludeDeleted)
		assert.Equal(t, 2, call.Query.Limit)
	}
}

func TestRunBoundedConcurrency(t *testing.T) {
	client := mock.New()
	client.AddFolder("", "R!1", "root", true)

	var build func(parent string, depth int)
	seq := 1
	files := 0
	build = func(parent string, depth int) {
		for i := 0; i < 2; i++ {
			seq++
			id := fmt.Sprintf("n!%d", seq)
			if depth == 0 {
				client.AddFile(parent, id, fmt.Sprintf("f%d", i), day(1), 1, true)
				files++
				continue
			}
			client.AddFolder(parent, id, fmt.Sprintf("d%d", i), true)
			build(id, depth-1)
		}
	}
	build("R!1", 3)

	done := make(chan *models.RestoreResult)
	go func() {
		res, err := New(client, nil, Options{DisableBulk: true, MaxConcurrency: 1}).Run(context.Background(), Ref{ID: "R!1"})
		assert.NoError(t, err)
		done <- res
	}()

	select {
	case res := <-done:
		require.NotNil(t, res)
		assert.Equal(t, files, res.Stats.Recovered.Files)
		// root plus every folder on the way down
		assert.Equal(t, 1+2+4+8, res.Stats.Recovered.Folders)
	case <-time.After(10 * time.Second):
		t.Fatal("walk did not finish")
	}
}

func TestRunByPath(t *testing.T) {
	client := mock.New()
	client.AddFolder("", "R!1", "Documents", false)
	client.AddFolder("R!1", "S!2", "Taxes", true)

	res := run(t, client, Ref{Path: []string{"Documents", "Taxes"}}, Options{})

	assert.Equal(t, "/Documents/Taxes", res.Root)
	assert.Equal(t, 1, res.Stats.Recovered.Folders)
	assert.Contains(t, res.DirectoryTree, "Taxes")
	assert.Len(t, client.CallsFor("item", "/Documents/Taxes"), 1)
}

func TestRunRootFile(t *testing.T) {
	client := mock.New()
	client.AddFile("", "f!1", "notes.txt", day(1), 1, true)

	res := run(t, client, Ref{ID: "f!1"}, Options{TargetParentID: "P!2"})

	assert.Equal(t, 1, res.Stats.Recovered.Files)
	assert.Equal(t, models.Counts{Files: 1}, res.Stats.Processed)
	assert.Equal(t, "P!2", client.CallsFor("restore", "f!1")[0].Target)
	assert.Equal(t, "f!1", res.DirectoryTree["notes.txt"].ID)
}

func TestListDeleted(t *testing.T) {
	client := mock.New()
	client.AddFolder("", "R!1", "root", false)
	client.AddFile("R!1", "a!2", "a.txt", day(1), 1, false)
	client.AddFile("R!1", "b!3", "b.txt", day(1), 1, true)
	client.AddFolder("R!1", "c!4", "c", true)

	folder, deleted, err := New(client, nil, Options{}).ListDeleted(context.Background(), Ref{ID: "R!1"})
	require.NoError(t, err)

	assert.Equal(t, "R!1", folder.ID)
	var ids []string
	for _, it := range deleted {
		ids = append(ids, it.ID)
	}
	assert.ElementsMatch(t, []string{"b!3", "c!4"}, ids)
	assert.Empty(t, client.CallsFor("restore", "b!3"))
}

func TestFindDuplicates(t *testing.T) {
	client := mock.New()
	client.AddFolder("", "R!1", "root", false)
	client.AddFile("R!1", "a!2", "a.txt", day(1), 1, true)
	client.AddFile("R!1", "a!3", "a.txt", day(2), 1, false)
	client.AddFile("R!1", "b!4", "b.txt", day(1), 1, true)

	_, groups, err := New(client, nil, Options{}).FindDuplicates(context.Background(), Ref{ID: "R!1"})
	require.NoError(t, err)

	require.Len(t, groups, 1)
	assert.Equal(t, "a!3", groups[0].RecoveredID)
	assert.True(t, client.Deleted("a!2"))
}
