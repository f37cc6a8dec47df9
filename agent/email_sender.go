package agent

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// EmailSender is the email_sender built-in, grounded on original_source's
// email_sender.py: builds a multipart/alternative (+ attachments) message
// and ships it over SMTP, with the same plain/HTML/attachment shape and
// the same "absorb failures into a non-error result" behavior as
// file_handler.go.
type EmailSender struct{}

func NewEmailSender() *EmailSender {
	return &EmailSender{}
}

type emailServerConfig struct {
	server   string
	port     int
	username string
	password string
	useTLS   bool
	useSSL   bool
}

func (e *EmailSender) Execute(ctx context.Context, cfg map[string]interface{}, input map[string]interface{}) (Result, error) {
	started := time.Now()

	server := configureServer(cfg)

	toEmails := toStringSlice(input["to"])
	ccEmails := toStringSlice(input["cc"])
	bccEmails := toStringSlice(input["bcc"])
	subject, _ := input["subject"].(string)
	body, _ := input["body"].(string)
	htmlBody, _ := input["html_body"].(string)
	fromEmail, _ := input["from"].(string)
	if fromEmail == "" {
		fromEmail = server.username
	}
	attachments, _ := input["attachments"].([]interface{})

	var failure error
	switch {
	case len(toEmails) == 0:
		failure = fmt.Errorf("recipient email addresses are required")
	case subject == "":
		failure = fmt.Errorf("email subject is required")
	case body == "" && htmlBody == "":
		failure = fmt.Errorf("email body or HTML body is required")
	case server.username == "" || server.password == "":
		failure = fmt.Errorf("SMTP username and password must be configured")
	}
	if failure != nil {
		return emailFailure(started, failure), nil
	}

	msg, msgID, err := buildMessage(fromEmail, toEmails, ccEmails, subject, body, htmlBody, attachments)
	if err != nil {
		return emailFailure(started, err), nil
	}

	allRecipients := append(append(append([]string{}, toEmails...), ccEmails...), bccEmails...)
	if err := sendMessage(ctx, server, fromEmail, allRecipients, msg); err != nil {
		return emailFailure(started, err), nil
	}

	output := map[string]interface{}{
		"status":      "sent",
		"message_id":  msgID,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"recipients":  allRecipients,
		"smtp_server": server.server,
	}

	return Result{
		Output: output,
		Variables: map[string]interface{}{
			"email_sent":        true,
			"recipients_count":  len(toEmails),
			"attachments_count": len(attachments),
			"message_id":        msgID,
		},
		Metadata: newMetadata(started),
	}, nil
}

func emailFailure(started time.Time, err error) Result {
	return Result{
		Output:    map[string]interface{}{"error": err.Error()},
		Variables: map[string]interface{}{"email_sent": false, "error_message": err.Error()},
		Metadata:  newMetadata(started),
	}
}

func configureServer(cfg map[string]interface{}) emailServerConfig {
	server := emailServerConfig{server: "smtp.gmail.com", port: 587, useTLS: true}
	if v, ok := cfg["smtp_server"].(string); ok && v != "" {
		server.server = v
	}
	if n, ok := toFloat(cfg["smtp_port"]); ok {
		server.port = int(n)
	}
	if v, ok := cfg["username"].(string); ok {
		server.username = v
	}
	if v, ok := cfg["password"].(string); ok {
		server.password = v
	}
	if v, ok := cfg["use_tls"].(bool); ok {
		server.useTLS = v
	}
	if v, ok := cfg["use_ssl"].(bool); ok {
		server.useSSL = v
	}
	return server
}

func buildMessage(from string, to, cc []string, subject, body, htmlBody string, attachments []interface{}) ([]byte, string, error) {
	var buf bytes.Buffer

	boundary := fmt.Sprintf("orchestrator-boundary-%d", time.Now().UnixNano())
	msgID := fmt.Sprintf("<%d.orchestrator@%s>", time.Now().UnixNano(), hostPart(from))

	headers := textproto.MIMEHeader{}
	headers.Set("From", from)
	headers.Set("To", strings.Join(to, ", "))
	headers.Set("Subject", mime.QEncoding.Encode("utf-8", subject))
	headers.Set("Message-ID", msgID)
	headers.Set("MIME-Version", "1.0")
	if len(cc) > 0 {
		headers.Set("Cc", strings.Join(cc, ", "))
	}
	headers.Set("Content-Type", fmt.Sprintf(`multipart/alternative; boundary="%s"`, boundary))
	for k, vs := range headers {
		for _, v := range vs {
			buf.WriteString(k + ": " + v + "\r\n")
		}
	}
	buf.WriteString("\r\n")

	mw := multipart.NewWriter(&buf)
	_ = mw.SetBoundary(boundary)

	if body != "" {
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {`text/plain; charset="utf-8"`},
			"Content-Transfer-Encoding": {"base64"},
		})
		if err != nil {
			return nil, "", err
		}
		writeBase64(w, []byte(body))
	}

	if htmlBody != "" {
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {`text/html; charset="utf-8"`},
			"Content-Transfer-Encoding": {"base64"},
		})
		if err != nil {
			return nil, "", err
		}
		writeBase64(w, []byte(htmlBody))
	}

	for _, attRaw := range attachments {
		att, ok := attRaw.(map[string]interface{})
		if !ok {
			continue
		}
		if err := addAttachment(mw, att); err != nil {
			return nil, "", err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", err
	}

	return buf.Bytes(), msgID, nil
}

func addAttachment(mw *multipart.Writer, att map[string]interface{}) error {
	filePath, _ := att["file_path"].(string)
	content := att["content"]
	filename, _ := att["filename"].(string)
	mimeType, _ := att["mime_type"].(string)
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	var data []byte
	switch {
	case filePath != "":
		raw, err := os.ReadFile(filePath)
		if err != nil {
			return err
		}
		data = raw
		if filename == "" {
			filename = filepath.Base(filePath)
		}
	case content != nil:
		switch c := content.(type) {
		case string:
			data = []byte(c)
		case []byte:
			data = c
		default:
			data = []byte(fmt.Sprint(c))
		}
	default:
		return fmt.Errorf("either file_path or content must be provided for attachment")
	}
	if filename == "" {
		filename = "attachment"
	}

	w, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {mimeType},
		"Content-Transfer-Encoding": {"base64"},
		"Content-Disposition":       {fmt.Sprintf(`attachment; filename="%s"`, filename)},
	})
	if err != nil {
		return err
	}
	writeBase64(w, data)
	return nil
}

func writeBase64(w interface{ Write([]byte) (int, error) }, data []byte) {
	enc := base64.StdEncoding.EncodeToString(data)
	for i := 0; i < len(enc); i += 76 {
		end := i + 76
		if end > len(enc) {
			end = len(enc)
		}
		_, _ = w.Write([]byte(enc[i:end] + "\r\n"))
	}
}

func sendMessage(ctx context.Context, server emailServerConfig, from string, recipients []string, msg []byte) error {
	addr := net.JoinHostPort(server.server, strconv.Itoa(server.port))
	auth := smtp.PlainAuth("", server.username, server.password, server.server)

	if server.useSSL {
		tlsConn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: server.server})
		if err != nil {
			return fmt.Errorf("smtp ssl dial failed: %w", err)
		}
		defer func() { _ = tlsConn.Close() }()
		client, err := smtp.NewClient(tlsConn, server.server)
		if err != nil {
			return err
		}
		defer func() { _ = client.Quit() }()
		return deliverVia(client, auth, from, recipients, msg)
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial failed: %w", err)
	}
	defer func() { _ = conn.Close() }()
	client, err := smtp.NewClient(conn, server.server)
	if err != nil {
		return err
	}
	defer func() { _ = client.Quit() }()

	if server.useTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: server.server}); err != nil {
				return fmt.Errorf("starttls failed: %w", err)
			}
		}
	}

	return deliverVia(client, auth, from, recipients, msg)
}

func deliverVia(client *smtp.Client, auth smtp.Auth, from string, recipients []string, msg []byte) error {
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth failed: %w", err)
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	for _, r := range recipients {
		if err := client.Rcpt(r); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	return w.Close()
}

func hostPart(email string) string {
	if i := strings.IndexByte(email, '@'); i >= 0 {
		return email[i+1:]
	}
	return "localhost"
}
