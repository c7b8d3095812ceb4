package models

import "time"

type ItemInfo struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	Path         string    `json:"path"`
	ParentID     string    `json:"parent_id,omitempty"`
	Address      string    `json:"address,omitempty"`
	Deleted      bool      `json:"deleted"`
	SizeBytes    int64     `json:"size_bytes"`
	SizeHuman    string    `json:"size_human"`
	ChildCount   int       `json:"child_count,omitempty"`
	LastModified time.Time `json:"last_modified"`
	Backend      string    `json:"backend"`
	RetrievedAt  string    `json:"retrieved_at"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
	Command   string `json:"command"`
}

type DeletedListing struct {
	FolderID       string         `json:"folder_id"`
	FolderPath     string         `json:"folder_path"`
	Items          []DeletedEntry `json:"items"`
	TotalFiles     int            `json:"total_files"`
	TotalFolders   int            `json:"total_folders"`
	TotalSizeBytes int64          `json:"total_size_bytes"`
	TotalSizeHuman string         `json:"total_size_human"`
	OperationTime  string         `json:"operation_time"`
}

type DeletedEntry struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

type DuplicateReport struct {
	FolderID      string                     `json:"folder_id"`
	FolderPath    string                     `json:"folder_path"`
	Groups        map[string]*DuplicateGroup `json:"groups"`
	GroupCount    int                        `json:"group_count"`
	OperationTime string                     `json:"operation_time"`
}

// ArchiveInfo describes a written report archive.
type ArchiveInfo struct {
	ArchivePath      string    `json:"archive_path"`
	Entries          []string  `json:"entries"`
	CompressedSize   int64     `json:"compressed_size"`
	OriginalSize     int64     `json:"original_size"`
	CompressionRatio float64   `json:"compression_ratio"`
	CreatedAt        time.Time `json:"created_at"`
}

// ResolvedPath is the output of resolve-path.
type ResolvedPath struct {
	Backend  string   `json:"backend"`
	Segments []string `json:"segments"`
	Address  string   `json:"address"`
}
