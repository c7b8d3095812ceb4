package s3client

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driverecover/config"
	"driverecover/internal/remote"
	"driverecover/internal/restore"
)

func newTestBucket() (*fakeBucket, *Client) {
	b := newFakeBucket()
	b.put("docs/a.txt", 10)
	b.put("docs/b.txt", 20)
	b.put("docs/b.txt", 25)
	b.remove("docs/b.txt")
	b.put("docs/sub/c.txt", 30)
	b.remove("docs/sub/c.txt")
	b.put("top.txt", 1)
	return b, NewWithAPI(b, "bucket")
}

func TestGetItem(t *testing.T) {
	_, c := newTestBucket()
	ctx := context.Background()

	item, err := c.GetItem(ctx, "docs/a.txt", remote.Query{})
	require.NoError(t, err)
	assert.Equal(t, "a.txt", item.Name)
	assert.Equal(t, "docs/", item.ParentID)
	assert.Equal(t, "/docs/a.txt", item.Path())
	assert.Equal(t, int64(10), item.Size)

	_, err = c.GetItem(ctx, "docs/b.txt", remote.Query{})
	assert.True(t, remote.IsNotFound(err))

	item, err = c.GetItem(ctx, "docs/b.txt", remote.Query{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Equal(t, int64(25), item.Size, "size of the newest real version")

	item, err = c.GetItem(ctx, "docs", remote.Query{})
	require.NoError(t, err)
	assert.True(t, item.IsFolder)
	assert.Equal(t, "docs/", item.ID)

	_, err = c.GetItem(ctx, "docs/sub/", remote.Query{})
	assert.True(t, remote.IsNotFound(err), "folder with only deleted content")

	item, err = c.GetItem(ctx, "docs/sub/", remote.Query{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Equal(t, "/docs/sub", item.Path())

	item, err = c.GetItem(ctx, RootID, remote.Query{})
	require.NoError(t, err)
	assert.Equal(t, "bucket", item.Name)

	_, err = c.GetItem(ctx, "missing", remote.Query{IncludeDeleted: true})
	assert.True(t, remote.IsNotFound(err))
}

func TestGetChildren(t *testing.T) {
	_, c := newTestBucket()
	ctx := context.Background()

	listing, err := c.GetChildren(ctx, "docs/", remote.Query{IncludeDeleted: true})
	require.NoError(t, err)

	var names []string
	for _, it := range listing.Items {
		names = append(names, fmt.Sprintf("%s:%v", it.Name, it.IsFolder))
	}
	assert.Equal(t, []string{"a.txt:false", "b.txt:false", "sub:true"}, names)

	listing, err = c.GetChildren(ctx, "docs/", remote.Query{})
	require.NoError(t, err)
	require.Len(t, listing.Items, 1)
	assert.Equal(t, "a.txt", listing.Items[0].Name)

	listing, err = c.GetChildren(ctx, RootID, remote.Query{IncludeDeleted: true})
	require.NoError(t, err)
	require.Len(t, listing.Items, 2)
	assert.Equal(t, "top.txt", listing.Items[0].Name)
	assert.Equal(t, RootID, listing.Items[0].ParentID)
	assert.Equal(t, "docs/", listing.Items[1].ID)
}

func TestRestoreKey(t *testing.T) {
	b, c := newTestBucket()
	ctx := context.Background()

	require.NoError(t, c.RestoreItem(ctx, "docs/b.txt", ""))
	assert.True(t, b.live("docs/b.txt"))

	ok, err := c.ItemExists(ctx, "docs/b.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	err = c.RestoreItem(ctx, "docs/b.txt", "")
	assert.True(t, remote.IsNotAllowed(err), "second restore: %v", err)

	err = c.RestoreItem(ctx, "missing.txt", "")
	assert.True(t, remote.IsNotFound(err))

	err = c.RestoreItem(ctx, "docs/sub/c.txt", "docs/")
	rerr, isRemote := remote.AsError(err)
	require.True(t, isRemote)
	assert.Equal(t, remote.CodeNotSupported, rerr.Code)
}

func TestRestoreStackedMarkers(t *testing.T) {
	b := newFakeBucket()
	b.put("a.txt", 1)
	b.remove("a.txt")
	b.remove("a.txt")
	c := NewWithAPI(b, "bucket")

	require.NoError(t, c.RestoreItem(context.Background(), "a.txt", ""))
	assert.True(t, b.live("a.txt"))
}

func TestRestorePrefixInBatches(t *testing.T) {
	b := newFakeBucket()
	for i := 0; i < 1500; i++ {
		key := fmt.Sprintf("logs/%04d.log", i)
		b.put(key, 1)
		b.remove(key)
	}
	b.put("logs/live.log", 1)
	c := NewWithAPI(b, "bucket")
	ctx := context.Background()

	ok, err := c.ItemExists(ctx, "logs/")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.RestoreItem(ctx, "logs/", ""))
	assert.Equal(t, []int{1000, 500}, b.deleteBatches)
	assert.True(t, b.live("logs/0000.log"))
	assert.True(t, b.live("logs/1499.log"))

	err = c.RestoreItem(ctx, "logs/", "")
	assert.True(t, remote.IsNotAllowed(err))
}

func TestItemExists(t *testing.T) {
	_, c := newTestBucket()
	ctx := context.Background()

	tests := []struct {
		id   string
		want bool
	}{
		{"docs/a.txt", true},
		{"docs/b.txt", false},
		{"docs/", true},
		{"docs/sub/", false},
		{"nothing/", false},
		{RootID, true},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, err := c.ItemExists(ctx, tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRestoreWalk(t *testing.T) {
	b := newFakeBucket()
	b.put("proj/src/main.go", 100)
	b.put("proj/README.md", 10)
	b.put("proj/node_modules/x/index.js", 5)
	for _, k := range []string{"proj/src/main.go", "proj/README.md", "proj/node_modules/x/index.js"} {
		b.remove(k)
	}
	c := NewWithAPI(b, "bucket")

	t.Run("bulk", func(t *testing.T) {
		res, err := restore.New(c, c.Resolver(), restore.Options{}).Run(context.Background(), restore.Ref{Path: []string{"s3://bucket/proj"}})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Stats.Recovered.Folders)
		assert.True(t, res.DirectoryTree["proj"].BulkRestore)
		assert.True(t, b.live("proj/node_modules/x/index.js"), "bulk restore covers the whole prefix")
	})

	for _, k := range []string{"proj/src/main.go", "proj/README.md", "proj/node_modules/x/index.js"} {
		b.remove(k)
	}

	t.Run("recursive", func(t *testing.T) {
		res, err := restore.New(c, c.Resolver(), restore.Options{DisableBulk: true}).Run(context.Background(), restore.Ref{ID: "proj/"})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Stats.Recovered.Files)
		assert.Equal(t, 1, res.Stats.Filtered)
		assert.False(t, b.live("proj/node_modules/x/index.js"))
		assert.Empty(t, res.RecoveryErrors)
	})
}

func TestClassify(t *testing.T) {
	ctx := context.Background()

	err := classify(ctx, &smithy.GenericAPIError{Code: "SlowDown", Message: "reduce your request rate"})
	assert.True(t, remote.IsTransient(err))

	err = classify(ctx, &smithy.GenericAPIError{Code: "NoSuchKey"})
	assert.True(t, remote.IsNotFound(err))

	err = classify(ctx, &smithy.GenericAPIError{Code: "InvalidObjectState", Message: "archived"})
	rerr, ok := remote.AsError(err)
	require.True(t, ok)
	assert.Equal(t, "InvalidObjectState", rerr.Code)
	assert.False(t, remote.IsTransient(err))

	err = classify(ctx, fmt.Errorf("dial tcp: connection refused"))
	assert.True(t, remote.IsTransient(err))

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, classify(cctx, fmt.Errorf("boom")), context.Canceled)

	assert.NoError(t, classify(ctx, nil))
}

func TestPathResolver(t *testing.T) {
	var p PathResolver
	assert.Equal(t, RootID, p.Resolve())
	assert.Equal(t, RootID, p.Resolve("s3://bucket/"))
	assert.Equal(t, "docs/a.txt", p.Resolve("docs", "a.txt"))
	assert.Equal(t, "docs/a.txt", p.Resolve("/docs/", "./a.txt"))
	assert.Equal(t, "docs/sub", p.Resolve("s3://bucket/docs/sub"))
}

func TestPageToken(t *testing.T) {
	k, v := decodeToken(encodeToken("a/b&c", "v=1"))
	assert.Equal(t, "a/b&c", k)
	assert.Equal(t, "v=1", v)
}

// These tests require a real versioned bucket and are skipped by default.
// To run them, set S3_INTEGRATION_TEST=true.
func TestIntegrationListRoot(t *testing.T) {
	if os.Getenv("S3_INTEGRATION_TEST") != "true" {
		t.Skip("Skipping integration test; set S3_INTEGRATION_TEST=true to run")
	}

	cfg := &config.S3Config{
		BucketName: os.Getenv("TEST_BUCKET_NAME"),
		Region:     os.Getenv("TEST_REGION"),
		ApiURL:     os.Getenv("TEST_API_URL"),
		AccessKey:  os.Getenv("TEST_ACCESS_KEY"),
		SecretKey:  os.Getenv("TEST_SECRET_KEY"),
	}

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	listing, err := client.GetChildren(context.Background(), RootID, remote.Query{IncludeDeleted: true, Limit: 100})
	if err != nil {
		t.Fatalf("GetChildren() error = %v", err)
	}
	for _, it := range listing.Items {
		if it.ParentID != RootID {
			t.Errorf("ParentID = %s, want %s", it.ParentID, RootID)
		}
	}
}
