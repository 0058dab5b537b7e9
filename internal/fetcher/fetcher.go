package fetcher

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"weekly-report-hub/internal/config"
	"weekly-report-hub/internal/models"
)

// ErrSourceUnavailable indicates the mail provider (or the requested label)
// could not be reached at all. This is fatal to an ingestion run.
var ErrSourceUnavailable = errors.New("mail source unavailable")

// Source enumerates and fetches labeled messages. List returns a complete
// snapshot of message ids for one run, never a live stream.
type Source interface {
	List(ctx context.Context, label string) ([]string, error)
	Fetch(ctx context.Context, id string) (models.EmailMessage, error)
	Close() error
}

// GmailSource implements Source using the Gmail API
type GmailSource struct {
	service   *gmail.Service
	userEmail string
}

// NewGmailSource creates a Gmail API backed source
func NewGmailSource(cfg *config.GmailConfig) (*GmailSource, error) {
	ctx := context.Background()

	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       []string{gmail.GmailReadonlyScope},
		Endpoint:     google.Endpoint,
	}

	token := &oauth2.Token{RefreshToken: cfg.RefreshToken}
	tokenSource := oauth2Config.TokenSource(ctx, token)

	service, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	userEmail := cfg.UserEmail
	if userEmail == "" {
		userEmail = "me"
	}

	return &GmailSource{service: service, userEmail: userEmail}, nil
}

// List enumerates every message id under the named label, paginating until
// the provider reports no further pages.
func (s *GmailSource) List(ctx context.Context, label string) ([]string, error) {
	labelID, err := s.resolveLabel(ctx, label)
	if err != nil {
		return nil, err
	}

	var ids []string
	pageToken := ""
	for {
		call := s.service.Users.Messages.List(s.userEmail).LabelIds(labelID).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("%w: listing messages for label %q: %v", ErrSourceUnavailable, label, err)
		}
		for _, msg := range resp.Messages {
			ids = append(ids, msg.Id)
		}
		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return ids, nil
}

// resolveLabel maps a label name to the provider-assigned label id
func (s *GmailSource) resolveLabel(ctx context.Context, label string) (string, error) {
	resp, err := s.service.Users.Labels.List(s.userEmail).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("%w: listing labels: %v", ErrSourceUnavailable, err)
	}
	for _, l := range resp.Labels {
		if l.Name == label {
			return l.Id, nil
		}
	}
	return "", fmt.Errorf("%w: label %q not found", ErrSourceUnavailable, label)
}

// Fetch retrieves the full message and extracts subject, sender, date and
// the text/plain body.
func (s *GmailSource) Fetch(ctx context.Context, id string) (models.EmailMessage, error) {
	msg, err := s.service.Users.Messages.Get(s.userEmail, id).Format("full").Context(ctx).Do()
	if err != nil {
		return models.EmailMessage{}, fmt.Errorf("failed to get message %s: %w", id, err)
	}
	return parseGmailMessage(msg)
}

func parseGmailMessage(msg *gmail.Message) (models.EmailMessage, error) {
	email := models.EmailMessage{ID: msg.Id}

	if msg.Payload == nil {
		return email, fmt.Errorf("message %s has no payload", msg.Id)
	}

	for _, header := range msg.Payload.Headers {
		switch header.Name {
		case "Subject":
			email.Subject = header.Value
		case "From":
			email.From = header.Value
		case "Date":
			email.Date = header.Value
		}
	}

	if err := parseGmailBody(msg.Payload, &email); err != nil {
		return email, err
	}

	return email, nil
}

// parseGmailBody recursively walks message parts, keeping the first
// text/plain body found.
func parseGmailBody(part *gmail.MessagePart, email *models.EmailMessage) error {
	if part.Body != nil && part.Body.Data != "" && part.MimeType == "text/plain" && email.Body == "" {
		data, err := base64.URLEncoding.DecodeString(part.Body.Data)
		if err != nil {
			return fmt.Errorf("failed to decode body data: %w", err)
		}
		email.Body = string(data)
	}

	for _, subPart := range part.Parts {
		if err := parseGmailBody(subPart, email); err != nil {
			return err
		}
	}

	return nil
}

// Close closes the Gmail source
func (s *GmailSource) Close() error {
	// Gmail API service doesn't need explicit closing
	return nil
}
