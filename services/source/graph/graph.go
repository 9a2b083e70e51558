package graph

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/customeros/mailvault/interfaces"
	"github.com/customeros/mailvault/internal/config"
	er "github.com/customeros/mailvault/internal/errors"
	"github.com/customeros/mailvault/internal/logger"
)

const (
	tokenURLTemplate = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"
	defaultScope     = "https://graph.microsoft.com/.default"

	// preferImmutableIds makes the server hand out identifiers that survive
	// moves between folders.
	preferImmutableIds = `IdType="ImmutableId"`

	requestTimeout = 60 * time.Second
)

// graphSource reads a Microsoft 365 mailbox through the Graph REST API.
type graphSource struct {
	cfg    *config.GraphConfig
	log    logger.Logger
	client *http.Client
}

func NewGraphSource(ctx context.Context, cfg *config.GraphConfig, log logger.Logger) (interfaces.MessageSource, error) {
	if cfg.TenantID == "" || cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.MailboxUPN == "" {
		return nil, er.ErrSourceNotEnabled
	}

	credentials := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf(tokenURLTemplate, cfg.TenantID),
		Scopes:       []string{defaultScope},
	}

	client := credentials.Client(ctx)
	client.Timeout = requestTimeout

	return &graphSource{
		cfg:    cfg,
		log:    log,
		client: client,
	}, nil
}

func (s *graphSource) mailboxURL(parts ...string) string {
	out := s.cfg.BaseURL + "/users/" + url.PathEscape(s.cfg.MailboxUPN)
	for _, p := range parts {
		out += "/" + p
	}
	return out
}

func (s *graphSource) get(ctx context.Context, requestURL string, prefer []string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build graph request")
	}
	req.Header.Set("Accept", "application/json")
	for _, p := range prefer {
		req.Header.Add("Prefer", p)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "graph request failed")
	}

	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, statusToError(resp, body)
	}

	return resp, nil
}

// statusToError maps Graph failure responses onto the error taxonomy the
// sync core retries and recovers on.
func statusToError(resp *http.Response, body []byte) error {
	switch resp.StatusCode {
	case http.StatusNotFound:
		return er.ErrNotFound
	case http.StatusGone:
		// The server discarded the change-tracking state.
		return er.ErrDeltaTokenExpired
	case http.StatusTooManyRequests:
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, err := strconv.Atoi(v); err == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return &er.RateLimitError{RetryAfter: retryAfter}
	}
	return &er.StatusError{
		StatusCode: resp.StatusCode,
		Status:     fmt.Sprintf("%s: %s", resp.Status, string(body)),
	}
}
