package models

import (
	"bytes"
	"encoding/json"
)

// InboundEnvelope holds the sender and recipients established by the SMTP
// MAIL FROM / RCPT TO commands for one transaction. It is transient: created
// when MAIL FROM is accepted and discarded when DATA completes or the session
// aborts.
type InboundEnvelope struct {
	From       string
	Recipients []string
	RemoteAddr string
}

// Attachment describes one decoded MIME attachment. Content is carried
// in-process but never serialized to the webhook payload.
type Attachment struct {
	Name    string `json:"name"`
	Size    int64  `json:"size"`
	Type    string `json:"type"`
	Content []byte `json:"-"`
}

// NormalizedMessage is the durable unit handed across the application
// boundary. It is constructed once per accepted SMTP transaction and is
// immutable afterwards; its JSON form is exactly the webhook contract.
type NormalizedMessage struct {
	EmailAddress string       `json:"emailAddress"`
	FromAddress  string       `json:"fromAddress"`
	Subject      string       `json:"subject"`
	BodyHTML     *string      `json:"bodyHtml"`
	BodyText     *string      `json:"bodyText"`
	Headers      HeaderMap    `json:"headers"`
	MessageID    string       `json:"messageId"`
	Attachments  []Attachment `json:"attachments"`
}

// HeaderField is a single header name/value pair, name case preserved as
// received.
type HeaderField struct {
	Name  string
	Value string
}

// HeaderMap is an ordered name-to-value mapping. Duplicate names collapse to
// the last value seen while keeping the position of the first occurrence.
type HeaderMap struct {
	fields []HeaderField
	index  map[string]int
}

// Set adds or overwrites a header value.
func (h *HeaderMap) Set(name, value string) {
	if h.index == nil {
		h.index = make(map[string]int)
	}
	if i, ok := h.index[name]; ok {
		h.fields[i].Value = value
		return
	}
	h.index[name] = len(h.fields)
	h.fields = append(h.fields, HeaderField{Name: name, Value: value})
}

// Get returns the value for name, or empty string if absent.
func (h *HeaderMap) Get(name string) string {
	if h.index == nil {
		return ""
	}
	if i, ok := h.index[name]; ok {
		return h.fields[i].Value
	}
	return ""
}

// Len returns the number of distinct header names.
func (h *HeaderMap) Len() int {
	return len(h.fields)
}

// Fields returns the headers in first-appearance order.
func (h *HeaderMap) Fields() []HeaderField {
	return h.fields
}

// MarshalJSON renders the headers as a JSON object in first-appearance order.
func (h HeaderMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range h.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts a plain JSON object. Insertion order follows Go's
// decoder, which is sufficient for the read side of the contract.
func (h *HeaderMap) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	for name, value := range m {
		h.Set(name, value)
	}
	return nil
}
