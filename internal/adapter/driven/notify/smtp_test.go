package notify

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/cihealth/internal/domain/model"
)

func testNotification() model.Notification {
	return model.Notification{
		From:    "ci-health@example.com",
		To:      []string{"oncall@example.com", "lead@example.com"},
		Subject: "Build failed: org/api (main)",
		Body:    "**Build failed**\n\n- **Repo:** org/api\n- [Open build](https://ci.example.com/1)\n",
	}
}

func TestBuildMessage_MultipartAlternative(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	raw, err := buildMessage(testNotification(), now, "mail.example.com")
	require.NoError(t, err)

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, "ci-health@example.com", msg.Header.Get("From"))
	assert.Equal(t, "oncall@example.com, lead@example.com", msg.Header.Get("To"))
	assert.Equal(t, "Mon, 01 Jan 2024 12:00:00 +0000", msg.Header.Get("Date"))
	assert.True(t, strings.HasSuffix(msg.Header.Get("Message-ID"), "@mail.example.com>"))

	subject, err := new(mime.WordDecoder).DecodeHeader(msg.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Build failed: org/api (main)", subject)

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/alternative", mediaType)

	mr := multipart.NewReader(msg.Body, params["boundary"])
	bodies := map[string]string{}
	for {
		part, err := mr.NextRawPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		decoded, err := io.ReadAll(quotedprintable.NewReader(part))
		require.NoError(t, err)
		ct, _, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		bodies[ct] = strings.ReplaceAll(string(decoded), "\r\n", "\n")
	}

	require.Len(t, bodies, 2)
	assert.Equal(t, testNotification().Body, bodies["text/plain"])
	assert.Contains(t, bodies["text/html"], "<strong>Build failed</strong>")
	assert.Contains(t, bodies["text/html"], `href="https://ci.example.com/1"`)
}

// fakeSMTP is a minimal SMTP relay that accepts one session.
type fakeSMTP struct {
	addr       string
	rejectRcpt bool

	mu    sync.Mutex
	from  string
	rcpts []string
	data  []byte
	done  chan struct{}
}

func startFakeSMTP(t *testing.T, rejectRcpt bool) *fakeSMTP {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	f := &fakeSMTP{addr: ln.Addr().String(), rejectRcpt: rejectRcpt, done: make(chan struct{})}
	go func() {
		defer close(f.done)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		f.serve(textproto.NewConn(conn))
	}()
	return f
}

func (f *fakeSMTP) serve(tp *textproto.Conn) {
	_ = tp.PrintfLine("220 localhost ESMTP")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
		switch verb {
		case "EHLO", "HELO":
			_ = tp.PrintfLine("250 localhost")
		case "MAIL":
			f.mu.Lock()
			f.from = line
			f.mu.Unlock()
			_ = tp.PrintfLine("250 OK")
		case "RCPT":
			if f.rejectRcpt {
				_ = tp.PrintfLine("550 mailbox unavailable")
				continue
			}
			f.mu.Lock()
			f.rcpts = append(f.rcpts, line)
			f.mu.Unlock()
			_ = tp.PrintfLine("250 OK")
		case "DATA":
			_ = tp.PrintfLine("354 go ahead")
			data, err := tp.ReadDotBytes()
			if err != nil {
				return
			}
			f.mu.Lock()
			f.data = data
			f.mu.Unlock()
			_ = tp.PrintfLine("250 queued")
		case "QUIT":
			_ = tp.PrintfLine("221 bye")
			return
		default:
			_ = tp.PrintfLine("502 not implemented")
		}
	}
}

func newMailerFor(t *testing.T, f *fakeSMTP) *SMTPMailer {
	t.Helper()
	host, port, err := net.SplitHostPort(f.addr)
	require.NoError(t, err)
	p, err := net.LookupPort("tcp", port)
	require.NoError(t, err)
	return NewSMTPMailer(SMTPConfig{Host: host, Port: p})
}

func TestSMTPMailer_Send(t *testing.T) {
	f := startFakeSMTP(t, false)
	mailer := newMailerFor(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, mailer.Send(ctx, testNotification()))
	<-f.done

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Contains(t, f.from, "<ci-health@example.com>")
	require.Len(t, f.rcpts, 2)
	assert.Contains(t, f.rcpts[0], "<oncall@example.com>")

	msg, err := mail.ReadMessage(bufio.NewReader(bytes.NewReader(f.data)))
	require.NoError(t, err)
	assert.Contains(t, msg.Header.Get("Content-Type"), "multipart/alternative")
}

func TestSMTPMailer_RejectedRecipient(t *testing.T) {
	f := startFakeSMTP(t, true)
	mailer := newMailerFor(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := mailer.Send(ctx, testNotification())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp rcpt")
}

func TestSMTPMailer_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())

	mailer := NewSMTPMailer(SMTPConfig{Host: "127.0.0.1", Port: addr.Port})
	err = mailer.Send(context.Background(), testNotification())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp dial")
}

func TestSMTPMailer_NoRecipients(t *testing.T) {
	mailer := NewSMTPMailer(SMTPConfig{Host: "127.0.0.1"})
	n := testNotification()
	n.To = nil
	assert.Error(t, mailer.Send(context.Background(), n))
}

func TestCaptureMailer_RecordsMessages(t *testing.T) {
	m := NewCaptureMailer()
	require.NoError(t, m.Send(context.Background(), testNotification()))
	require.NoError(t, m.Send(context.Background(), testNotification()))

	sent := m.Sent()
	assert.Len(t, sent, 2)
	assert.Equal(t, "Build failed: org/api (main)", sent[0].Subject)

	sent[0].Subject = "mutated"
	assert.Equal(t, "Build failed: org/api (main)", m.Sent()[0].Subject)
}

func TestNew_SelectsMailer(t *testing.T) {
	_, isCapture := New(SMTPConfig{}).(*CaptureMailer)
	assert.True(t, isCapture)

	_, isSMTP := New(SMTPConfig{Host: "smtp.example.com"}).(*SMTPMailer)
	assert.True(t, isSMTP)
}
