package smtpingest

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
	"time"

	"github.com/mikey/llm-email-classifier/internal/core"
)

// emailFromMessage converts a parsed MIME message into the pipeline's email
// shape. Text attachments become attachment entries; binary parts are
// skipped since document parsing happens upstream.
func emailFromMessage(msg *mail.Message, sender string, recipients []string) (*core.InboundEmail, error) {
	body, attachments, err := extractContent(msg)
	if err != nil {
		return nil, err
	}

	email := &core.InboundEmail{
		Sender:      sender,
		Subject:     decodeHeader(msg.Header.Get("Subject")),
		Body:        body,
		MessageID:   strings.Trim(msg.Header.Get("Message-ID"), "<> "),
		InReplyTo:   strings.Trim(msg.Header.Get("In-Reply-To"), "<> "),
		Attachments: attachments,
	}

	if len(recipients) > 0 {
		email.Recipient = strings.Join(recipients, ", ")
	}

	if refs := msg.Header.Get("References"); refs != "" {
		for _, ref := range strings.Fields(refs) {
			email.References = append(email.References, strings.Trim(ref, "<> "))
		}
	}

	if date, err := msg.Header.Date(); err == nil {
		email.ReceivedAt = date
	} else {
		email.ReceivedAt = time.Now()
	}

	return email, nil
}

// extractContent pulls the text/plain body and any text attachments from a
// message. Non-multipart messages return their whole body.
func extractContent(msg *mail.Message) (string, []core.Attachment, error) {
	contentType := msg.Header.Get("Content-Type")

	if !strings.Contains(strings.ToLower(contentType), "multipart/") {
		bodyBytes, err := io.ReadAll(msg.Body)
		if err != nil {
			return "", nil, err
		}
		return string(bodyBytes), nil, nil
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		bodyBytes, readErr := io.ReadAll(msg.Body)
		if readErr != nil {
			return "", nil, readErr
		}
		return string(bodyBytes), nil, nil
	}

	boundary, ok := params["boundary"]
	if !ok {
		bodyBytes, err := io.ReadAll(msg.Body)
		if err != nil {
			return "", nil, err
		}
		return string(bodyBytes), nil, nil
	}

	mr := multipart.NewReader(msg.Body, boundary)

	var textContent bytes.Buffer
	var attachments []core.Attachment

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		partContentType := strings.ToLower(part.Header.Get("Content-Type"))
		filename := part.FileName()

		switch {
		case filename != "" && strings.Contains(partContentType, "text/"):
			partBytes, err := io.ReadAll(part)
			if err != nil {
				continue
			}
			attachments = append(attachments, core.Attachment{
				Index:       len(attachments) + 1,
				Filename:    filename,
				ContentType: part.Header.Get("Content-Type"),
				Text:        string(partBytes),
			})
		case filename == "" && strings.Contains(partContentType, "text/plain"):
			partBytes, err := io.ReadAll(part)
			if err != nil {
				continue
			}
			textContent.Write(partBytes)
			textContent.WriteString("\n")
		}
		// Binary attachments are skipped
	}

	return textContent.String(), attachments, nil
}

// decodeHeader decodes RFC 2047 encoded-word headers, returning the raw
// value when decoding fails.
func decodeHeader(value string) string {
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}
