package types

import "time"

// DownloadStatus represents the lifecycle state of a download job
type DownloadStatus string

const (
	StatusPending    DownloadStatus = "pending"
	StatusProcessing DownloadStatus = "processing"
	StatusCompleted  DownloadStatus = "completed"
	StatusFailed     DownloadStatus = "failed"
)

// Terminal reports whether a status can no longer change
func (s DownloadStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ValidStatus reports whether s names a known download status
func ValidStatus(s string) bool {
	switch DownloadStatus(s) {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// AllowedQualities is the enumerated set of MP3 bitrates (kbps)
var AllowedQualities = []string{"128", "192", "256", "320"}

// QualityAllowed reports whether q is in the allowed bitrate set
func QualityAllowed(q string) bool {
	for _, allowed := range AllowedQualities {
		if q == allowed {
			return true
		}
	}
	return false
}

// Download represents a persisted download job
type Download struct {
	ID           int64          `json:"id"`
	SourceURL    string         `json:"source_url"`
	Title        string         `json:"title"`
	Uploader     string         `json:"uploader,omitempty"`
	Duration     int64          `json:"duration,omitempty"`
	Quality      string         `json:"quality"`
	Status       DownloadStatus `json:"status"`
	FilePath     string         `json:"-"`
	FileSize     int64          `json:"file_size,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// DownloadRequest represents a conversion submission
type DownloadRequest struct {
	URL     string `json:"url"`
	Quality string `json:"quality"`
}

// DownloadResponse is returned when a submission is accepted
type DownloadResponse struct {
	Success    bool           `json:"success"`
	DownloadID int64          `json:"download_id"`
	Status     DownloadStatus `json:"status"`
	Message    string         `json:"message,omitempty"`
}

// StatusResponse is the polling view of a single download
type StatusResponse struct {
	Success            bool           `json:"success"`
	DownloadID         int64          `json:"download_id"`
	Title              string         `json:"title"`
	Quality            string         `json:"quality"`
	Status             DownloadStatus `json:"status"`
	ProgressPercentage int            `json:"progress_percentage"`
	ErrorMessage       string         `json:"error_message,omitempty"`
	FileSize           int64          `json:"file_size,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
}

// HistoryResponse is a paginated listing of downloads
type HistoryResponse struct {
	Success bool        `json:"success"`
	Data    []*Download `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
}

// Stats aggregates per-status counts and total completed bytes
type Stats struct {
	TotalDownloads      int64 `json:"total_downloads"`
	CompletedDownloads  int64 `json:"completed_downloads"`
	FailedDownloads     int64 `json:"failed_downloads"`
	PendingDownloads    int64 `json:"pending_downloads"`
	ProcessingDownloads int64 `json:"processing_downloads"`
	TotalDataProcessed  int64 `json:"total_data_processed"`
}

// StatsResponse wraps Stats in the API envelope
type StatsResponse struct {
	Success bool  `json:"success"`
	Stats   Stats `json:"stats"`
}

// ErrorResponse is the JSON envelope for all user-visible failures
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// HealthResponse reports service liveness and housekeeping state
type HealthResponse struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Cleanup *CleanupStatus `json:"cleanup,omitempty"`
}

// CleanupStatus summarises what the next retention sweep would touch
type CleanupStatus struct {
	OldFilesCount      int   `json:"old_files_count"`
	OldFilesSize       int64 `json:"old_files_size"`
	FailedRecordsCount int   `json:"failed_records_count"`
}
