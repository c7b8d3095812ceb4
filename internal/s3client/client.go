// Package s3client exposes a versioned S3 bucket as a recycle bin. A key
// whose latest version is a delete marker is a deleted file; prefixes are
// folders.
package s3client

import (
	"context"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	appConfig "driverecover/config"
	"driverecover/internal/errors"
	"driverecover/internal/logging"
	"driverecover/internal/metrics"
	"driverecover/internal/remote"
)

const (
	backendName = "s3"
	// RootID addresses the bucket itself.
	RootID = "/"
	// deleteBatchSize is the DeleteObjects limit.
	deleteBatchSize = 1000
)

// API is the part of the S3 client used here.
type API interface {
	ListObjectVersions(ctx context.Context, in *s3.ListObjectVersionsInput, optFns ...func(*s3.Options)) (*s3.ListObjectVersionsOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

type Client struct {
	s3Client API
	bucket   string
	log      *zap.Logger
}

var _ remote.Client = &Client{}

func New(cfg *appConfig.S3Config) (*Client, error) {
	awsConfig, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.StaticCredentialsProvider{
			Value: aws.Credentials{
				AccessKeyID:     cfg.AccessKey,
				SecretAccessKey: cfg.SecretKey,
			},
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	var s3Client *s3.Client
	if cfg.ApiURL != "" {
		s3Client = s3.NewFromConfig(awsConfig, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.ApiURL)
			o.UsePathStyle = true
		})
	} else {
		s3Client = s3.NewFromConfig(awsConfig)
	}

	return NewWithAPI(s3Client, cfg.BucketName), nil
}

// NewWithAPI returns a Client using api for bucket.
func NewWithAPI(api API, bucket string) *Client {
	return &Client{
		s3Client: api,
		bucket:   bucket,
		log:      logging.L().With(zap.String("backend", backendName), zap.String("bucket", bucket)),
	}
}

// Resolver returns the path resolver for the client's bucket.
func (c *Client) Resolver() PathResolver {
	return PathResolver{}
}

// version is one entry of a key's history, newest first.
type version struct {
	id           string
	marker       bool
	latest       bool
	lastModified time.Time
	size         int64
}

type keyHistory struct {
	key      string
	versions []version
}

// current reports whether the history starts at the latest version. A key
// split over two list pages has a second part without it.
func (h *keyHistory) current() bool {
	return len(h.versions) > 0 && h.versions[0].latest
}

func (h *keyHistory) deleted() bool {
	return h.current() && h.versions[0].marker
}

// leadingMarkers returns the delete markers stacked on top of the newest
// object version.
func (h *keyHistory) leadingMarkers() []version {
	if !h.current() {
		return nil
	}
	var out []version
	for _, v := range h.versions {
		if !v.marker {
			break
		}
		out = append(out, v)
	}
	return out
}

// lastSize returns the size of the newest real version.
func (h *keyHistory) lastSize() int64 {
	for _, v := range h.versions {
		if !v.marker {
			return v.size
		}
	}
	return 0
}

type versionPage struct {
	keys      []*keyHistory
	prefixes  []string
	nextToken string
}

// listVersions reads one page of versions below prefix and groups them by
// key. With an empty delimiter the whole subtree is returned.
func (c *Client) listVersions(ctx context.Context, prefix, delimiter string, limit int, token string) (*versionPage, error) {
	in := &s3.ListObjectVersionsInput{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	}
	if delimiter != "" {
		in.Delimiter = aws.String(delimiter)
	}
	if limit > 0 {
		in.MaxKeys = aws.Int32(int32(limit))
	}
	if token != "" {
		keyMarker, versionMarker := decodeToken(token)
		in.KeyMarker = aws.String(keyMarker)
		if versionMarker != "" {
			in.VersionIdMarker = aws.String(versionMarker)
		}
	}

	out, err := c.s3Client.ListObjectVersions(ctx, in)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]*keyHistory)
	var keys []*keyHistory
	add := func(key string, v version) {
		h, ok := byKey[key]
		if !ok {
			h = &keyHistory{key: key}
			byKey[key] = h
			keys = append(keys, h)
		}
		h.versions = append(h.versions, v)
	}

	for _, v := range out.Versions {
		add(aws.ToString(v.Key), version{
			id:           aws.ToString(v.VersionId),
			latest:       aws.ToBool(v.IsLatest),
			lastModified: aws.ToTime(v.LastModified),
			size:         aws.ToInt64(v.Size),
		})
	}
	for _, m := range out.DeleteMarkers {
		add(aws.ToString(m.Key), version{
			id:           aws.ToString(m.VersionId),
			marker:       true,
			latest:       aws.ToBool(m.IsLatest),
			lastModified: aws.ToTime(m.LastModified),
		})
	}

	for _, h := range keys {
		sort.SliceStable(h.versions, func(i, j int) bool {
			a, b := h.versions[i], h.versions[j]
			if a.latest != b.latest {
				return a.latest
			}
			return a.lastModified.After(b.lastModified)
		})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].key < keys[j].key })

	page := &versionPage{keys: keys}
	for _, p := range out.CommonPrefixes {
		page.prefixes = append(page.prefixes, aws.ToString(p.Prefix))
	}
	if aws.ToBool(out.IsTruncated) {
		page.nextToken = encodeToken(aws.ToString(out.NextKeyMarker), aws.ToString(out.NextVersionIdMarker))
	}
	return page, nil
}

// history returns the versions of exactly key, or nil when it never existed.
func (c *Client) history(ctx context.Context, key string) (*keyHistory, error) {
	token := ""
	for {
		page, err := c.listVersions(ctx, key, "", 0, token)
		if err != nil {
			return nil, err
		}
		for _, h := range page.keys {
			if h.key == key {
				return h, nil
			}
		}
		if page.nextToken == "" {
			return nil, nil
		}
		token = page.nextToken
	}
}

// prefixState reports whether anything was ever stored below prefix and
// whether a current object is there.
func (c *Client) prefixState(ctx context.Context, prefix string) (known, live bool, err error) {
	out, err := c.s3Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(c.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, false, err
	}
	if aws.ToInt32(out.KeyCount) > 0 || len(out.Contents) > 0 {
		return true, true, nil
	}

	page, err := c.listVersions(ctx, prefix, "", 1, "")
	if err != nil {
		return false, false, err
	}
	return len(page.keys) > 0, false, nil
}

func (c *Client) GetItem(ctx context.Context, idOrAddress string, q remote.Query) (*remote.Item, error) {
	var item *remote.Item
	err := c.call(ctx, "get_item", func(ctx context.Context) error {
		var err error
		item, err = c.getItem(ctx, idOrAddress, q)
		return err
	})
	return item, err
}

func (c *Client) getItem(ctx context.Context, id string, q remote.Query) (*remote.Item, error) {
	if id == RootID || id == "" {
		return &remote.Item{ID: RootID, Name: c.bucket, IsFolder: true}, nil
	}

	if !strings.HasSuffix(id, "/") {
		h, err := c.history(ctx, id)
		if err != nil {
			return nil, err
		}
		if h != nil {
			if h.deleted() && !q.IncludeDeleted {
				return nil, notFound(id)
			}
			return fileItem(h), nil
		}
		id += "/"
	}

	known, live, err := c.prefixState(ctx, id)
	if err != nil {
		return nil, err
	}
	if !known || (!live && !q.IncludeDeleted) {
		return nil, notFound(id)
	}
	return folderItem(id), nil
}

func (c *Client) GetChildren(ctx context.Context, id string, q remote.Query) (*remote.Listing, error) {
	var listing *remote.Listing
	err := c.call(ctx, "get_children", func(ctx context.Context) error {
		prefix := folderPrefix(id)
		page, err := c.listVersions(ctx, prefix, "/", q.Limit, q.PageToken)
		if err != nil {
			return err
		}

		listing = &remote.Listing{NextPageToken: page.nextToken}
		for _, h := range page.keys {
			// folder placeholder objects
			if h.key == prefix || !h.current() {
				continue
			}
			if h.deleted() && !q.IncludeDeleted {
				continue
			}
			listing.Items = append(listing.Items, fileItem(h))
		}
		for _, p := range page.prefixes {
			if !q.IncludeDeleted {
				_, live, err := c.prefixState(ctx, p)
				if err != nil {
					return err
				}
				if !live {
					continue
				}
			}
			listing.Items = append(listing.Items, folderItem(p))
		}
		listing.TotalCount = len(listing.Items)
		return nil
	})
	return listing, err
}

// RestoreItem removes the delete markers hiding a key, or every key below a
// prefix. Moving items is not possible in a bucket.
func (c *Client) RestoreItem(ctx context.Context, id, targetParentID string) error {
	return c.call(ctx, "restore", func(ctx context.Context) error {
		if targetParentID != "" {
			return remote.NewError(remote.CodeNotSupported, "restoring to another folder is not supported by the s3 backend")
		}
		if id == RootID || strings.HasSuffix(id, "/") {
			return c.restorePrefix(ctx, folderPrefix(id))
		}
		return c.restoreKey(ctx, id)
	})
}

func (c *Client) restoreKey(ctx context.Context, key string) error {
	h, err := c.history(ctx, key)
	if err != nil {
		return err
	}
	if h == nil {
		return notFound(key)
	}

	markers := h.leadingMarkers()
	if len(markers) == 0 {
		return remote.NewError(remote.CodeNotAllowed, "object is not deleted: "+key)
	}
	for _, m := range markers {
		_, err := c.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket:    aws.String(c.bucket),
			Key:       aws.String(key),
			VersionId: aws.String(m.id),
		})
		if err != nil {
			return err
		}
	}
	c.log.Debug("removed delete markers", zap.String("key", key), zap.Int("count", len(markers)))
	return nil
}

func (c *Client) restorePrefix(ctx context.Context, prefix string) error {
	var toDelete []types.ObjectIdentifier

	token := ""
	for {
		page, err := c.listVersions(ctx, prefix, "", 0, token)
		if err != nil {
			return err
		}
		for _, h := range page.keys {
			for _, m := range h.leadingMarkers() {
				toDelete = append(toDelete, types.ObjectIdentifier{
					Key:       aws.String(h.key),
					VersionId: aws.String(m.id),
				})
			}
		}
		if page.nextToken == "" {
			break
		}
		token = page.nextToken
	}

	if len(toDelete) == 0 {
		return remote.NewError(remote.CodeNotAllowed, "nothing is deleted below "+prefix)
	}

	for i := 0; i < len(toDelete); i += deleteBatchSize {
		end := i + deleteBatchSize
		if end > len(toDelete) {
			end = len(toDelete)
		}

		out, err := c.s3Client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(c.bucket),
			Delete: &types.Delete{
				Objects: toDelete[i:end],
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return err
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return &remote.Error{
				Code:    remote.CodeGeneralException,
				Message: aws.ToString(e.Key) + ": " + aws.ToString(e.Message),
			}
		}
	}

	c.log.Debug("removed delete markers", zap.String("prefix", prefix), zap.Int("count", len(toDelete)))
	return nil
}

func (c *Client) ItemExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := c.call(ctx, "exists", func(ctx context.Context) error {
		if id == RootID {
			exists = true
			return nil
		}
		if strings.HasSuffix(id, "/") {
			_, live, err := c.prefixState(ctx, id)
			exists = live
			return err
		}
		h, err := c.history(ctx, id)
		exists = h != nil && !h.deleted()
		return err
	})
	return exists, err
}

// call runs fn, classifies its error and records metrics.
func (c *Client) call(ctx context.Context, op string, fn func(context.Context) error) error {
	start := time.Now()
	err := classify(ctx, fn(ctx))
	elapsed := time.Since(start)

	metrics.RecordRemoteCall(backendName, op, err, elapsed)
	if err != nil {
		c.log.Debug("request failed", zap.String("op", op), zap.Duration("duration", elapsed), zap.Error(err))
	}
	return err
}

func folderPrefix(id string) string {
	if id == RootID {
		return ""
	}
	return id
}

func notFound(key string) error {
	return remote.NewError(remote.CodeItemNotFound, "no such key: "+key)
}

func fileItem(h *keyHistory) *remote.Item {
	parent, name := splitKey(h.key)
	it := &remote.Item{
		ID:         h.key,
		Name:       name,
		ParentID:   parentID(parent),
		ParentPath: parentPath(parent),
		Size:       h.lastSize(),
	}
	if len(h.versions) > 0 {
		it.LastModified = h.versions[0].lastModified
	}
	return it
}

func folderItem(prefix string) *remote.Item {
	parent, name := splitKey(strings.TrimSuffix(prefix, "/"))
	return &remote.Item{
		ID:         prefix,
		Name:       name,
		ParentID:   parentID(parent),
		ParentPath: parentPath(parent),
		IsFolder:   true,
	}
}

// splitKey splits "a/b/c" into "a/b/" and "c".
func splitKey(key string) (string, string) {
	i := strings.LastIndex(key, "/")
	if i < 0 {
		return "", key
	}
	return key[:i+1], key[i+1:]
}

func parentID(parent string) string {
	if parent == "" {
		return RootID
	}
	return parent
}

func parentPath(parent string) string {
	if parent == "" {
		return ""
	}
	return path.Clean("/" + parent)
}
