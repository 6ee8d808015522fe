package model

import "time"

// FileSource identifies the acquisition path that produced a file.
type FileSource string

// Known file sources.
const (
	FileSourceUpload         FileSource = "upload"
	FileSourceMailAttachment FileSource = "mail_attachment"
	FileSourceBankStore      FileSource = "bank_store"
)

// File is a receipt candidate produced by one of the ingestion paths.
// The pipeline treats files as read-only.
type File struct {
	CreatedAt    time.Time
	ID           string
	UserID       string
	StorageRef   string
	SenderDomain string // Extracted from the originating mail, if any
	PartnerID    string // Partner resolved during ingestion, if any
	Source       FileSource
	Subject      string // Mail subject or document title, searchable
	AmountHints  []float64
	IBANHints    []string
}

// FromMail reports whether the file arrived via a connected mail account.
func (f *File) FromMail() bool {
	return f.Source == FileSourceMailAttachment
}

// HasAmount reports whether any extracted amount hint matches the given
// amount within tolerance.
func (f *File) HasAmount(amount, tolerance float64) bool {
	for _, hint := range f.AmountHints {
		diff := hint - amount
		if diff < 0 {
			diff = -diff
		}
		if diff <= tolerance {
			return true
		}
	}
	return false
}
