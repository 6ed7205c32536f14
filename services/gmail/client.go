package gmail

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/customeros/mailpulse/config"
	"github.com/customeros/mailpulse/internal/logger"
	"github.com/customeros/mailpulse/internal/models"
)

const (
	userMe           = "me"
	inboxLabel       = "INBOX"
	historyPageLimit = 50
)

// Client talks to the Gmail API on behalf of stored mailboxes. All calls go
// through one circuit breaker so an outage fails fast instead of piling up.
type Client struct {
	log     logger.Logger
	oauth   *oauth2.Config
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker

	tokensMu sync.Mutex
	tokens   map[string]*mailboxToken

	serviceOptions []option.ClientOption
	newService     func(ctx context.Context, mailbox *models.Mailbox) (*gmailapi.Service, error)
}

// mailboxToken keeps a refreshed token alive across calls for one mailbox
// until the stored credentials change.
type mailboxToken struct {
	accessToken  string
	refreshToken string
	source       oauth2.TokenSource
}

func NewClient(cfg *config.GoogleConfig, log logger.Logger) *Client {
	c := &Client{
		log: log,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       []string{gmailapi.GmailReadonlyScope},
			Endpoint:     google.Endpoint,
		},
		timeout: cfg.RequestTimeout,
		tokens:  make(map[string]*mailboxToken),
	}
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 || (counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("Circuit breaker %s changed from %s to %s", name, from.String(), to.String())
		},
	})
	c.newService = c.serviceFor
	return c
}

func (c *Client) serviceFor(ctx context.Context, mailbox *models.Mailbox) (*gmailapi.Service, error) {
	opts := append([]option.ClientOption{option.WithTokenSource(c.tokenSource(mailbox))}, c.serviceOptions...)
	return gmailapi.NewService(ctx, opts...)
}

// tokenSource returns the cached source for the mailbox. Refreshes outlive a
// single request, so they run on their own client bounded by the request
// timeout instead of the caller's context.
func (c *Client) tokenSource(mailbox *models.Mailbox) oauth2.TokenSource {
	c.tokensMu.Lock()
	defer c.tokensMu.Unlock()

	if cached, ok := c.tokens[mailbox.ID]; ok &&
		cached.accessToken == mailbox.AccessToken && cached.refreshToken == mailbox.RefreshToken {
		return cached.source
	}

	refreshCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: c.timeout})
	token := mailbox.OAuthToken()
	source := oauth2.ReuseTokenSource(token, c.oauth.TokenSource(refreshCtx, token))
	c.tokens[mailbox.ID] = &mailboxToken{
		accessToken:  mailbox.AccessToken,
		refreshToken: mailbox.RefreshToken,
		source:       source,
	}
	return source
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// execute runs fn through the breaker. Client side API errors do not count
// as failures.
func (c *Client) execute(fn func() error) error {
	var clientErr error
	_, err := c.cb.Execute(func() (interface{}, error) {
		err := fn()
		if err != nil && !tripsBreaker(err) {
			clientErr = err
			return nil, nil
		}
		return nil, err
	})
	if clientErr != nil {
		return clientErr
	}
	return err
}

func tripsBreaker(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return true
	}
	switch apiErr.Code {
	case 400, 401, 403, 404:
		return false
	}
	return true
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == 404
}
