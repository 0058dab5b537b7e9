package fetcher

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message"

	"weekly-report-hub/internal/config"
	"weekly-report-hub/internal/models"
)

// IMAPSource implements Source using IMAP. The label name is treated as a
// mailbox name; message ids are the mailbox UIDs rendered as decimal strings.
type IMAPSource struct {
	client  *client.Client
	mailbox string
}

// NewIMAPSource connects and logs in to the IMAP server
func NewIMAPSource(cfg *config.GmailConfig) (*IMAPSource, error) {
	c, err := client.DialTLS(fmt.Sprintf("%s:%d", cfg.IMAPHost, cfg.IMAPPort), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	if err := c.Login(cfg.IMAPUser, cfg.IMAPPassword); err != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to login to IMAP server: %w", err)
	}

	return &IMAPSource{client: c}, nil
}

// List selects the mailbox named by the label and returns every UID in it.
func (s *IMAPSource) List(ctx context.Context, label string) ([]string, error) {
	if _, err := s.client.Select(label, true); err != nil {
		return nil, fmt.Errorf("%w: selecting mailbox %q: %v", ErrSourceUnavailable, label, err)
	}
	s.mailbox = label

	uids, err := s.client.UidSearch(imap.NewSearchCriteria())
	if err != nil {
		return nil, fmt.Errorf("%w: searching mailbox %q: %v", ErrSourceUnavailable, label, err)
	}

	ids := make([]string, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, strconv.FormatUint(uint64(uid), 10))
	}
	return ids, nil
}

// Fetch retrieves one message by UID
func (s *IMAPSource) Fetch(ctx context.Context, id string) (models.EmailMessage, error) {
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return models.EmailMessage{}, fmt.Errorf("invalid IMAP uid %q: %w", id, err)
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uint32(uid))

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchEnvelope, section.FetchItem(), imap.FetchUid}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.client.UidFetch(seqset, items, messages)
	}()

	var email models.EmailMessage
	for msg := range messages {
		email, err = s.parseMessage(id, msg)
	}

	if fetchErr := <-done; fetchErr != nil {
		return models.EmailMessage{}, fmt.Errorf("failed to fetch message %s: %w", id, fetchErr)
	}
	if err != nil {
		return models.EmailMessage{}, err
	}
	if email.ID == "" {
		return models.EmailMessage{}, fmt.Errorf("message %s not found in mailbox %q", id, s.mailbox)
	}

	return email, nil
}

func (s *IMAPSource) parseMessage(id string, msg *imap.Message) (models.EmailMessage, error) {
	email := models.EmailMessage{ID: id}

	if msg.Envelope != nil {
		email.Subject = msg.Envelope.Subject
		if len(msg.Envelope.From) > 0 {
			email.From = msg.Envelope.From[0].Address()
		}
		if !msg.Envelope.Date.IsZero() {
			email.Date = msg.Envelope.Date.Format("Mon, 02 Jan 2006 15:04:05 -0700")
		}
	}

	if err := parseIMAPBody(msg, &email); err != nil {
		return email, err
	}

	return email, nil
}

func parseIMAPBody(msg *imap.Message, email *models.EmailMessage) error {
	section := &imap.BodySectionName{}
	r := msg.GetBody(section)
	if r == nil {
		return nil
	}

	entity, err := message.Read(r)
	if err != nil {
		return fmt.Errorf("failed to read message: %w", err)
	}

	if mr := entity.MultipartReader(); mr != nil {
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return fmt.Errorf("failed to read part: %w", err)
			}

			contentType := p.Header.Get("Content-Type")
			if !strings.Contains(contentType, "text/plain") || email.Body != "" {
				continue
			}

			content, err := io.ReadAll(p.Body)
			if err != nil {
				return fmt.Errorf("failed to read part body: %w", err)
			}
			email.Body = string(content)
		}
		return nil
	}

	content, err := io.ReadAll(entity.Body)
	if err != nil {
		return fmt.Errorf("failed to read message body: %w", err)
	}
	email.Body = string(content)
	return nil
}

// Close logs out from the IMAP server
func (s *IMAPSource) Close() error {
	return s.client.Logout()
}
