package restore

import (
	"strings"
	"time"

	"go.uber.org/zap"
)

// Options configures a single restore walk. Zero values are replaced by
// DefaultOptions in New.
type Options struct {
	// Exclude lists folder names that are never entered.
	Exclude []string
	// DisableBulk skips the bulk restore probe and always walks item by item.
	DisableBulk bool

	MaxAttempts int
	RetryDelay  time.Duration

	RequestTimeout time.Duration
	ListTimeout    time.Duration
	BulkTimeout    time.Duration

	// FetchLimit is the page size requested for child listings.
	FetchLimit int
	// MaxConcurrency caps the number of folders that are worked on at the
	// same time. Zero means no limit.
	MaxConcurrency int
	// TargetParentID moves the root item under another folder. Only used
	// when the root is restored by a single call.
	TargetParentID string

	Logger   *zap.Logger
	Progress Progress
}

// DefaultOptions returns the settings the tool has always used.
func DefaultOptions() Options {
	return Options{
		Exclude:        []string{"node_modules"},
		MaxAttempts:    5,
		RetryDelay:     100 * time.Millisecond,
		RequestTimeout: 60 * time.Second,
		ListTimeout:    120 * time.Second,
		BulkTimeout:    10 * time.Second,
		FetchLimit:     1000,
	}
}

// Merge returns o with every field that is set in over taking precedence.
// A nil Exclude keeps the current list, an empty non-nil one clears it.
func (o Options) Merge(over Options) Options {
	if over.Exclude != nil {
		o.Exclude = over.Exclude
	}
	if over.DisableBulk {
		o.DisableBulk = true
	}
	if over.MaxAttempts > 0 {
		o.MaxAttempts = over.MaxAttempts
	}
	if over.RetryDelay > 0 {
		o.RetryDelay = over.RetryDelay
	}
	if over.RequestTimeout > 0 {
		o.RequestTimeout = over.RequestTimeout
	}
	if over.ListTimeout > 0 {
		o.ListTimeout = over.ListTimeout
	}
	if over.BulkTimeout > 0 {
		o.BulkTimeout = over.BulkTimeout
	}
	if over.FetchLimit > 0 {
		o.FetchLimit = over.FetchLimit
	}
	if over.MaxConcurrency > 0 {
		o.MaxConcurrency = over.MaxConcurrency
	}
	if over.TargetParentID != "" {
		o.TargetParentID = over.TargetParentID
	}
	if over.Logger != nil {
		o.Logger = over.Logger
	}
	if over.Progress != nil {
		o.Progress = over.Progress
	}
	return o
}

// excluded returns the exclusion entry matching name, or "".
func (o Options) excluded(name string) string {
	for _, ex := range o.Exclude {
		if ex != "" && ex == name {
			return ex
		}
	}
	return ""
}

// Ref points at the root of a walk, either by opaque id or by path.
type Ref struct {
	ID   string
	Path []string
}

func (r Ref) String() string {
	if r.ID != "" {
		return r.ID
	}
	return "/" + strings.Join(r.Path, "/")
}
