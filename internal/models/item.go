package models

import "time"

// RawItem is one message returned by the mail source.
type RawItem struct {
	UID         uint32
	MessageID   string
	Timestamp   time.Time
	Sender      string
	Subject     string
	Attachments []AttachmentBlob
	// DecodeErr is set when the message body could not be read or parsed.
	DecodeErr error
}

// AttachmentBlob is a named binary attachment, tagged with the timestamp of
// the item it came from.
type AttachmentBlob struct {
	Name          string
	ContentType   string
	Content       []byte
	ItemTimestamp time.Time
}

// StoredFile is an attachment after the blob sink persisted it.
type StoredFile struct {
	Path          string
	OriginalName  string
	ItemTimestamp time.Time
}
