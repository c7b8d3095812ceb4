package s3client

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeVersion struct {
	id       string
	marker   bool
	modified time.Time
	size     int64
}

// fakeBucket is a versioned bucket kept in memory. Histories are newest
// first.
type fakeBucket struct {
	mu      sync.Mutex
	seq     int
	now     time.Time
	objects map[string][]fakeVersion

	deleteBatches []int
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{
		now:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		objects: make(map[string][]fakeVersion),
	}
}

func (b *fakeBucket) push(key string, v fakeVersion) {
	b.seq++
	b.now = b.now.Add(time.Minute)
	v.id = "v" + strconv.Itoa(b.seq)
	v.modified = b.now
	b.objects[key] = append([]fakeVersion{v}, b.objects[key]...)
}

func (b *fakeBucket) put(key string, size int64) {
	b.push(key, fakeVersion{size: size})
}

func (b *fakeBucket) remove(key string) {
	b.push(key, fakeVersion{marker: true})
}

func (b *fakeBucket) live(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	h := b.objects[key]
	return len(h) > 0 && !h[0].marker
}

func (b *fakeBucket) sortedKeys(prefix string) []string {
	var keys []string
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (b *fakeBucket) ListObjectVersions(_ context.Context, in *s3.ListObjectVersionsInput, _ ...func(*s3.Options)) (*s3.ListObjectVersionsOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	prefix := aws.ToString(in.Prefix)
	delim := aws.ToString(in.Delimiter)
	out := &s3.ListObjectVersionsOutput{IsTruncated: aws.Bool(false)}
	seen := map[string]bool{}

	for _, k := range b.sortedKeys(prefix) {
		rest := strings.TrimPrefix(k, prefix)
		if delim != "" {
			if i := strings.Index(rest, delim); i >= 0 {
				cp := prefix + rest[:i+1]
				if !seen[cp] {
					seen[cp] = true
					out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{Prefix: aws.String(cp)})
				}
				continue
			}
		}
		for i, v := range b.objects[k] {
			if v.marker {
				out.DeleteMarkers = append(out.DeleteMarkers, types.DeleteMarkerEntry{
					Key:          aws.String(k),
					VersionId:    aws.String(v.id),
					IsLatest:     aws.Bool(i == 0),
					LastModified: aws.Time(v.modified),
				})
				continue
			}
			out.Versions = append(out.Versions, types.ObjectVersion{
				Key:          aws.String(k),
				VersionId:    aws.String(v.id),
				IsLatest:     aws.Bool(i == 0),
				LastModified: aws.Time(v.modified),
				Size:         aws.Int64(v.size),
			})
		}
	}
	return out, nil
}

func (b *fakeBucket) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := &s3.ListObjectsV2Output{}
	for _, k := range b.sortedKeys(aws.ToString(in.Prefix)) {
		h := b.objects[k]
		if h[0].marker {
			continue
		}
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k), Size: aws.Int64(h[0].size)})
		if in.MaxKeys != nil && int32(len(out.Contents)) >= *in.MaxKeys {
			break
		}
	}
	out.KeyCount = aws.Int32(int32(len(out.Contents)))
	return out, nil
}

func (b *fakeBucket) deleteVersion(key, id string) {
	h := b.objects[key]
	for i, v := range h {
		if v.id == id {
			b.objects[key] = append(h[:i:i], h[i+1:]...)
			return
		}
	}
}

func (b *fakeBucket) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleteVersion(aws.ToString(in.Key), aws.ToString(in.VersionId))
	return &s3.DeleteObjectOutput{}, nil
}

func (b *fakeBucket) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleteBatches = append(b.deleteBatches, len(in.Delete.Objects))
	for _, o := range in.Delete.Objects {
		b.deleteVersion(aws.ToString(o.Key), aws.ToString(o.VersionId))
	}
	return &s3.DeleteObjectsOutput{}, nil
}
