package imap

import (
	"net/mail"
	"time"

	"github.com/emersion/go-imap"
	"github.com/jhillyerd/enmime"
	"github.com/pkg/errors"

	"github.com/customeros/mailsync/internal/models"
)

// toRawItem converts a fetched message. The item timestamp is the server's
// internal date, falling back to the envelope date.
func toRawItem(msg *imap.Message) *models.RawItem {
	item := &models.RawItem{
		UID:       msg.Uid,
		Timestamp: msg.InternalDate,
	}

	if env := msg.Envelope; env != nil {
		item.MessageID = env.MessageId
		item.Subject = env.Subject
		if len(env.From) > 0 {
			item.Sender = formatAddress(env.From[0])
		}
		if item.Timestamp.IsZero() {
			item.Timestamp = env.Date
		}
	}
	item.Timestamp = item.Timestamp.UTC()

	literal := msg.GetBody(fullMessageSection)
	if literal == nil {
		item.DecodeErr = errors.New("message body missing from fetch response")
		return item
	}

	envelope, err := enmime.ReadEnvelope(literal)
	if err != nil {
		item.DecodeErr = errors.Wrap(err, "failed to parse message")
		return item
	}

	if item.Sender == "" {
		item.Sender = envelope.GetHeader("From")
	}
	if item.Subject == "" {
		item.Subject = envelope.GetHeader("Subject")
	}
	item.Attachments = attachmentsOf(envelope, item.Timestamp)
	return item
}

// attachmentsOf returns the named attachments and inline parts of a message.
func attachmentsOf(envelope *enmime.Envelope, ts time.Time) []models.AttachmentBlob {
	var blobs []models.AttachmentBlob
	parts := append(append([]*enmime.Part{}, envelope.Attachments...), envelope.Inlines...)
	for _, part := range parts {
		if part.FileName == "" || len(part.Content) == 0 {
			continue
		}
		blobs = append(blobs, models.AttachmentBlob{
			Name:          part.FileName,
			ContentType:   part.ContentType,
			Content:       part.Content,
			ItemTimestamp: ts,
		})
	}
	return blobs
}

func formatAddress(addr *imap.Address) string {
	if addr == nil {
		return ""
	}
	email := addr.Address()
	if addr.PersonalName == "" {
		return email
	}
	return (&mail.Address{Name: addr.PersonalName, Address: email}).String()
}
