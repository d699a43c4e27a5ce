package email_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/email"
)

func validPostmarkConfig() email.Config {
	return email.Config{
		Provider:             email.ProviderPostmark,
		PostmarkServerToken:  "server-token",
		PostmarkAccountToken: "account-token",
		MessageStream:        "outbound",
		SenderEmail:          "noreply@example.com",
		SupportEmail:         "support@example.com",
	}
}

func TestNewPostmarkClient_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		edit   func(c *email.Config)
		errMsg string
	}{
		{"no server token", func(c *email.Config) { c.PostmarkServerToken = "" }, "PostmarkServerToken is required"},
		{"no account token", func(c *email.Config) { c.PostmarkAccountToken = "" }, "PostmarkAccountToken is required"},
		{"bad sender", func(c *email.Config) { c.SenderEmail = "noreply" }, "SenderEmail"},
		{"bad support", func(c *email.Config) { c.SupportEmail = "" }, "SupportEmail"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validPostmarkConfig()
			tt.edit(&cfg)
			client, err := email.NewPostmarkClient(cfg)
			assert.Nil(t, client)
			assert.ErrorIs(t, err, email.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestPostmarkClient_SendEmail(t *testing.T) {
	t.Parallel()

	t.Run("sends the message", func(t *testing.T) {
		t.Parallel()

		var got map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.True(t, strings.HasSuffix(r.URL.Path, "/email"), r.URL.Path)
			assert.Equal(t, "server-token", r.Header.Get("X-Postmark-Server-Token"))
			_ = json.NewDecoder(r.Body).Decode(&got)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"To":"user@example.com","MessageID":"m-1","ErrorCode":0,"Message":"OK"}`))
		}))
		defer srv.Close()

		client, err := email.NewPostmarkClient(validPostmarkConfig(), email.WithPostmarkBaseURL(srv.URL))
		require.NoError(t, err)

		err = client.SendEmail(context.Background(), email.SendEmailParams{
			SendTo:   "user@example.com",
			Subject:  "Hello",
			BodyHTML: "<p>Hello</p>",
			BodyText: "Hello",
			Tag:      "subscription:granted",
		})
		require.NoError(t, err)
		assert.Equal(t, "noreply@example.com", got["From"])
		assert.Equal(t, "support@example.com", got["ReplyTo"])
		assert.Equal(t, "user@example.com", got["To"])
		assert.Equal(t, "subscription:granted", got["Tag"])
	})

	t.Run("api error", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"ErrorCode":300,"Message":"Invalid email request"}`))
		}))
		defer srv.Close()

		client, err := email.NewPostmarkClient(validPostmarkConfig(), email.WithPostmarkBaseURL(srv.URL))
		require.NoError(t, err)

		err = client.SendEmail(context.Background(), email.SendEmailParams{
			SendTo: "user@example.com", Subject: "Hello", BodyHTML: "<p>Hello</p>",
		})
		assert.ErrorIs(t, err, email.ErrFailedToSendEmail)
	})

	t.Run("invalid params never reach the API", func(t *testing.T) {
		t.Parallel()

		client, err := email.NewPostmarkClient(validPostmarkConfig(), email.WithPostmarkBaseURL("http://127.0.0.1:1"))
		require.NoError(t, err)
		err = client.SendEmail(context.Background(), email.SendEmailParams{SendTo: "user@example.com"})
		assert.ErrorIs(t, err, email.ErrInvalidParams)
	})
}
