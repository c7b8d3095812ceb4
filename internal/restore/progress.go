package restore

// Progress receives status updates while a walk runs. Calls are made
// synchronously from every concurrently running branch, so implementations
// must be safe for concurrent use.
type Progress interface {
	CurrentFolder(path string)
	ProcessedFolders(n int)
	ProcessedFiles(n int)
	RecoveredFolders(n int)
	RecoveredFiles(n int)
	Status(msg string)
}

// NoProgress discards all updates.
type NoProgress struct{}

func (NoProgress) CurrentFolder(string) {}
func (NoProgress) ProcessedFolders(int) {}
func (NoProgress) ProcessedFiles(int)   {}
func (NoProgress) RecoveredFolders(int) {}
func (NoProgress) RecoveredFiles(int)   {}
func (NoProgress) Status(string)        {}
