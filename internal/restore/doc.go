// Package restore walks a deleted subtree of a remote drive and moves its
// items out of the recycle bin.
//
// A walk first tries to restore each folder with a single bulk call. When
// that fails it lists the folder's children, keeps one canonical version of
// every duplicated name, restores the files one at a time and descends into
// the subfolders concurrently. Per-item failures are collected in a Log that
// is shared by every branch of the walk; only cancellation or an unexpected
// error aborts the run.
package restore
