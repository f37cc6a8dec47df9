package agent

import (
	"context"
	"testing"
)

func TestEmailSender_RequiresRecipients(t *testing.T) {
	e := NewEmailSender()
	result, err := e.Execute(context.Background(), map[string]interface{}{
		"username": "bot@example.com", "password": "secret",
	}, map[string]interface{}{
		"subject": "hi", "body": "hello",
	})
	if err != nil {
		t.Fatalf("expected absorbed failure, not Go error: %v", err)
	}
	if result.Variables["email_sent"] != false {
		t.Fatalf("expected email_sent=false, got %#v", result.Variables)
	}
}

func TestEmailSender_RequiresCredentials(t *testing.T) {
	e := NewEmailSender()
	result, err := e.Execute(context.Background(), map[string]interface{}{}, map[string]interface{}{
		"to": []interface{}{"dest@example.com"}, "subject": "hi", "body": "hello",
	})
	if err != nil {
		t.Fatalf("expected absorbed failure, not Go error: %v", err)
	}
	if result.Variables["error_message"] == "" {
		t.Fatalf("expected an error_message, got %#v", result.Variables)
	}
}

func TestEmailSender_BuildsMultipartMessage(t *testing.T) {
	msg, msgID, err := buildMessage("from@example.com", []string{"to@example.com"}, nil, "Subject", "plain body", "<b>html</b>", nil)
	if err != nil {
		t.Fatalf("buildMessage: %v", err)
	}
	if msgID == "" {
		t.Fatal("expected a non-empty message id")
	}
	if len(msg) == 0 {
		t.Fatal("expected non-empty message bytes")
	}
}
