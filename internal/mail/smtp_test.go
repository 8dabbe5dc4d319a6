package mail

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	netmail "net/mail"
	"net/smtp"
	"strings"
	"testing"
)

func TestNewSMTPMailerDisabledWhenUnconfigured(t *testing.T) {
	if m := NewSMTPMailer(SMTPConfig{}); m != nil {
		t.Fatalf("expected nil mailer without host")
	}
	if m := NewSMTPMailer(SMTPConfig{Host: "smtp.test", Port: 587}); m != nil {
		t.Fatalf("expected nil mailer without sender")
	}
}

func TestSendBuildsMultipartMessage(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "smtp.test", Port: 587, User: "u", Pass: "p", From: "noreply@olympiad.test"})
	var (
		gotAddr string
		gotTo   []string
		gotRaw  []byte
	)
	m.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotRaw = addr, to, msg
		return nil
	}

	err := m.Send(context.Background(), Message{
		To:      "alice@example.com",
		Subject: "Résultats",
		HTML:    "<p>You placed 1st</p>",
		Attachments: []Attachment{
			{Filename: "certificate.pdf", ContentType: "application/pdf", Data: bytes.Repeat([]byte("%PDF"), 40)},
		},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotAddr != "smtp.test:587" || len(gotTo) != 1 || gotTo[0] != "alice@example.com" {
		t.Fatalf("unexpected envelope addr=%s to=%v", gotAddr, gotTo)
	}

	parsed, err := netmail.ReadMessage(bytes.NewReader(gotRaw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	dec := new(mime.WordDecoder)
	subject, _ := dec.DecodeHeader(parsed.Header.Get("Subject"))
	if subject != "Résultats" {
		t.Fatalf("unexpected subject %q", subject)
	}
	mediaType, params, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/mixed" {
		t.Fatalf("unexpected content type %q (%v)", mediaType, err)
	}

	mr := multipart.NewReader(parsed.Body, params["boundary"])
	html, err := mr.NextPart()
	if err != nil {
		t.Fatalf("html part: %v", err)
	}
	body, _ := io.ReadAll(html)
	if !strings.Contains(string(body), "You placed 1st") {
		t.Fatalf("html body missing: %q", body)
	}
	att, err := mr.NextPart()
	if err != nil {
		t.Fatalf("attachment part: %v", err)
	}
	if att.FileName() != "certificate.pdf" {
		t.Fatalf("unexpected filename %q", att.FileName())
	}
	if att.Header.Get("Content-Transfer-Encoding") != "base64" {
		t.Fatalf("attachment must be base64 encoded")
	}
	if _, err := mr.NextPart(); err != io.EOF {
		t.Fatalf("expected exactly two parts, got %v", err)
	}
}

func TestSendRejectsMissingRecipient(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "smtp.test", Port: 25, From: "noreply@olympiad.test"})
	m.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatalf("must not send")
		return nil
	}
	if err := m.Send(context.Background(), Message{To: " "}); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
	if err := m.Send(context.Background(), Message{To: "a@b.c\r\nBcc: x@y.z"}); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected header injection to be rejected, got %v", err)
	}
}

func TestSendWrapsTransportError(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "smtp.test", Port: 25, From: "noreply@olympiad.test"})
	boom := errors.New("connection refused")
	m.sendMail = func(string, smtp.Auth, string, []string, []byte) error { return boom }
	if err := m.Send(context.Background(), Message{To: "a@b.c"}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
}

func TestWriteBase64LinesWraps(t *testing.T) {
	var buf bytes.Buffer
	if err := writeBase64Lines(&buf, bytes.Repeat([]byte{0xff}, 120)); err != nil {
		t.Fatalf("write: %v", err)
	}
	for _, line := range strings.Split(strings.TrimRight(buf.String(), "\r\n"), "\r\n") {
		if len(line) > 76 {
			t.Fatalf("line too long: %d", len(line))
		}
	}
}
