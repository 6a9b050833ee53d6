package sendgrid

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MahdiBaghbani/teamverify-go/internal/components/notify"
)

type sentMail struct {
	From struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"from"`
	Subject          string `json:"subject"`
	Personalizations []struct {
		To []struct {
			Email string `json:"email"`
		} `json:"to"`
	} `json:"personalizations"`
	Content []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"content"`
	Categories []string `json:"categories"`
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func codeMessage() notify.Message {
	return notify.Message{
		To:   "a@x.com",
		Kind: notify.KindVerificationCode,
		Data: map[string]string{
			"code":        "123456",
			"team_name":   "Rockets",
			"event_title": "Hackathon",
			"expires_at":  "2026-01-01T10:10:00Z",
		},
	}
}

func TestDispatch(t *testing.T) {
	var got sentMail
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d, err := New(Config{APIKey: "key", FromEmail: "noreply@example.org", BaseURL: srv.URL}, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Dispatch(context.Background(), codeMessage()); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if auth != "Bearer key" {
		t.Errorf("Authorization = %q", auth)
	}
	if path != sendPath {
		t.Errorf("path = %q, want %q", path, sendPath)
	}
	if got.From.Email != "noreply@example.org" {
		t.Errorf("from = %q", got.From.Email)
	}
	if got.Subject != "Your verification code for Rockets" {
		t.Errorf("subject = %q", got.Subject)
	}
	if len(got.Personalizations) != 1 || len(got.Personalizations[0].To) != 1 ||
		got.Personalizations[0].To[0].Email != "a@x.com" {
		t.Errorf("personalizations = %+v", got.Personalizations)
	}
	var sawHTML bool
	for _, c := range got.Content {
		if c.Type == "text/html" {
			sawHTML = true
			if !strings.Contains(c.Value, "123456") {
				t.Errorf("html part missing code: %q", c.Value)
			}
		}
	}
	if !sawHTML {
		t.Error("no text/html content part")
	}
	if len(got.Categories) != 1 || got.Categories[0] != string(notify.KindVerificationCode) {
		t.Errorf("categories = %v", got.Categories)
	}
}

func TestDispatch_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
	}))
	defer srv.Close()

	d, err := New(Config{APIKey: "key", FromEmail: "noreply@example.org", BaseURL: srv.URL}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = d.Dispatch(context.Background(), codeMessage())
	if err == nil || !strings.Contains(err.Error(), "status 401") {
		t.Errorf("err = %v, want status 401", err)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{FromEmail: "a@b.c"}, nil); err == nil {
		t.Error("expected error without api key")
	}
	if _, err := New(Config{APIKey: "k"}, nil); err == nil {
		t.Error("expected error without from address")
	}
}

func TestRegistered(t *testing.T) {
	_, err := notify.New("sendgrid", map[string]any{"api_key": "k", "from_email": "a@b.c"}, nil)
	if err != nil {
		t.Fatalf("notify.New(sendgrid): %v", err)
	}
}
