package normalize

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"mailpipe/internal/errors"
	"mailpipe/internal/models"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultSubject is used when a message carries no Subject header.
const DefaultSubject = "(no subject)"

// DefaultAttachmentName is used for attachment parts without a filename.
const DefaultAttachmentName = "attachment"

// DefaultAttachmentType is used for attachment parts without a declared type.
const DefaultAttachmentType = "application/octet-stream"

// Options control normalization policy.
type Options struct {
	// StrictAttachments fails the whole message when an attachment part
	// cannot be decoded. The default skips the broken part and keeps the
	// rest of the message.
	StrictAttachments bool
}

// Normalizer turns one raw RFC 5322 message plus its envelope recipient into
// a NormalizedMessage.
type Normalizer struct {
	opts   Options
	logger *logrus.Logger
}

// New creates a Normalizer.
func New(opts Options, logger *logrus.Logger) *Normalizer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Normalizer{opts: opts, logger: logger}
}

// Normalize parses raw into exactly one NormalizedMessage for the given
// envelope recipient. envelopeFrom is used as the sender when the message has
// no usable From header. A structure that cannot be parsed at all yields a
// PARSE error.
func (n *Normalizer) Normalize(raw []byte, recipient, envelopeFrom string) (*models.NormalizedMessage, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, errors.Wrap(err, errors.ErrCodeParse, "unparseable message structure")
	}

	msg := &models.NormalizedMessage{
		EmailAddress: recipient,
		Attachments:  []models.Attachment{},
	}

	header := mr.Header
	msg.FromAddress = fromAddress(header, envelopeFrom)

	if subject, err := header.Subject(); err == nil && subject != "" {
		msg.Subject = subject
	} else if raw := header.Get("Subject"); raw != "" {
		msg.Subject = raw
	} else {
		msg.Subject = DefaultSubject
	}

	msg.MessageID = messageID(header)
	msg.Headers = flattenHeaders(header)

	if err := n.readParts(mr, msg); err != nil {
		return nil, err
	}

	return msg, nil
}

func (n *Normalizer) readParts(mr *mail.Reader, msg *models.NormalizedMessage) error {
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			// A broken sub-part after the headers parsed cleanly: the
			// message is still deliverable without it.
			if !n.opts.StrictAttachments {
				n.logger.WithError(err).Warn("Skipping unreadable message part")
				return nil
			}
			return errors.Wrap(err, errors.ErrCodeParse, "unreadable message part")
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				if n.opts.StrictAttachments {
					return errors.Wrap(err, errors.ErrCodeParse, "unreadable message body")
				}
				n.logger.WithError(err).Warn("Skipping unreadable body part")
				continue
			}
			switch {
			case strings.HasPrefix(contentType, "text/plain"):
				if msg.BodyText == nil {
					text := string(body)
					msg.BodyText = &text
				}
			case strings.HasPrefix(contentType, "text/html"):
				if msg.BodyHTML == nil {
					html := string(body)
					msg.BodyHTML = &html
				}
			}

		case *mail.AttachmentHeader:
			attachment, err := readAttachment(h, part.Body)
			if err != nil {
				if n.opts.StrictAttachments {
					return errors.Wrap(err, errors.ErrCodeParse, "unreadable attachment")
				}
				n.logger.WithError(err).Warn("Skipping unreadable attachment part")
				continue
			}
			msg.Attachments = append(msg.Attachments, attachment)
		}
	}
}

func readAttachment(h *mail.AttachmentHeader, body io.Reader) (models.Attachment, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return models.Attachment{}, err
	}

	name, _ := h.Filename()
	if name == "" {
		name = DefaultAttachmentName
	}
	contentType, _, _ := h.ContentType()
	if contentType == "" {
		contentType = DefaultAttachmentType
	}

	return models.Attachment{
		Name:    name,
		Size:    int64(len(data)),
		Type:    contentType,
		Content: data,
	}, nil
}

// fromAddress extracts the sender as presented, preferring the decoded From
// header and falling back to the envelope sender.
func fromAddress(header mail.Header, envelopeFrom string) string {
	if addrs, err := header.AddressList("From"); err == nil && len(addrs) > 0 {
		if addrs[0].Name != "" {
			return addrs[0].String()
		}
		return addrs[0].Address
	}
	if raw := header.Get("From"); raw != "" {
		return strings.TrimSpace(raw)
	}
	return envelopeFrom
}

// messageID returns the Message-Id header as received, or synthesizes one so
// that the downstream de-duplication key is never empty.
func messageID(header mail.Header) string {
	if raw := strings.TrimSpace(header.Get("Message-Id")); raw != "" {
		return raw
	}
	return fmt.Sprintf("<%s@mailpipe>", uuid.NewString())
}

// flattenHeaders collapses all header fields into an ordered name-to-value
// mapping, names case-preserved, duplicates last-wins.
func flattenHeaders(header mail.Header) models.HeaderMap {
	// Fields iterates newest-first; collect and reverse to recover the
	// order the fields appeared on the wire.
	type field struct{ name, value string }
	var collected []field

	fields := header.Fields()
	for fields.Next() {
		value, err := fields.Text()
		if err != nil {
			value = fields.Value()
		}
		collected = append(collected, field{name: fields.Key(), value: value})
	}

	var out models.HeaderMap
	for i := len(collected) - 1; i >= 0; i-- {
		out.Set(collected[i].name, collected[i].value)
	}
	return out
}
