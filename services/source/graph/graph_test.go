package graph

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailvault/internal/config"
	er "github.com/customeros/mailvault/internal/errors"
	"github.com/customeros/mailvault/internal/logger"
)

func newTestSource(t *testing.T, handler http.Handler) (*graphSource, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	log := logger.NewAppLogger(&logger.Config{LogLevel: "error", Encoder: "console"})
	log.InitLogger()

	return &graphSource{
		cfg: &config.GraphConfig{
			BaseURL:    server.URL,
			MailboxUPN: "archive@example.com",
			PageSize:   50,
		},
		log:    log,
		client: server.Client(),
	}, server
}

func TestFetchDeltaPage_ParsesItemsAndLinks(t *testing.T) {
	var gotPrefer []string
	var gotExpand string
	source, server := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPrefer = r.Header.Values("Prefer")
		gotExpand = r.URL.Query().Get("$expand")
		fmt.Fprintf(w, `{
			"value": [
				{
					"id": "AAkALgAA1",
					"subject": "Quarterly report",
					"sender": {"emailAddress": {"address": "alice@example.com"}},
					"toRecipients": [{"emailAddress": {"address": "bob@example.com"}}],
					"receivedDateTime": "2025-03-01T10:00:00Z",
					"hasAttachments": true,
					"conversationId": "conv-1",
					"internetMessageId": "<r1@example.com>",
					"parentFolderId": "folder-1",
					"singleValueExtendedProperties": [{"id": "Integer 0xe08", "value": "2048"}]
				},
				{
					"id": "AAkALgAA2",
					"@removed": {"reason": "deleted"}
				}
			],
			"@odata.nextLink": "https://%s/next-page"
		}`, r.Host)
	}))
	_ = server

	page, err := source.FetchDeltaPage(context.Background(), "folder-1", "")
	require.NoError(t, err)

	assert.True(t, page.HasMore)
	assert.Contains(t, page.NextCursor, "next-page")
	require.Len(t, page.Items, 2)

	first := page.Items[0]
	assert.Equal(t, "AAkALgAA1", first.ID)
	assert.Equal(t, "AAkALgAA1", first.ImmutableID)
	assert.Equal(t, "alice@example.com", first.Sender)
	assert.Equal(t, []string{"bob@example.com"}, first.Recipients)
	assert.True(t, first.HasAttachments)
	assert.Equal(t, int64(2048), first.Size)
	assert.Empty(t, first.NewParentFolderID)
	assert.False(t, first.Removed)

	assert.True(t, page.Items[1].Removed)
	assert.Zero(t, page.Items[1].Size)

	assert.Contains(t, gotPrefer, preferImmutableIds)
	assert.Contains(t, gotPrefer, "odata.maxpagesize=50")
	// Message size only comes back as an extended property.
	assert.Contains(t, gotExpand, "0xe08")
}

func TestFetchDeltaPage_FinalPageCarriesDeltaLink(t *testing.T) {
	source, _ := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value": [], "@odata.deltaLink": "https://graph.example.com/delta?token=abc"}`)
	}))

	page, err := source.FetchDeltaPage(context.Background(), "folder-1", "")
	require.NoError(t, err)
	assert.False(t, page.HasMore)
	assert.Equal(t, "https://graph.example.com/delta?token=abc", page.FinalCursor)
}

func TestFetchDeltaPage_FlagsCrossFolderItems(t *testing.T) {
	source, _ := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value": [{"id": "AAkALgAA3", "parentFolderId": "folder-other"}], "@odata.deltaLink": "d"}`)
	}))

	page, err := source.FetchDeltaPage(context.Background(), "folder-1", "")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "folder-other", page.Items[0].NewParentFolderID)
}

func TestFetchDeltaPage_GoneMapsToExpiredToken(t *testing.T) {
	source, _ := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))

	_, err := source.FetchDeltaPage(context.Background(), "folder-1", "")
	assert.ErrorIs(t, err, er.ErrDeltaTokenExpired)
}

func TestFetchDeltaPage_TooManyRequestsCarriesRetryAfter(t *testing.T) {
	source, _ := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "17")
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := source.FetchDeltaPage(context.Background(), "folder-1", "")
	var rateLimited *er.RateLimitError
	require.ErrorAs(t, err, &rateLimited)
	assert.Equal(t, 17*time.Second, rateLimited.RetryAfter)
}

func TestFetchDeltaPage_ServerErrorMapsToStatusError(t *testing.T) {
	source, _ := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := source.FetchDeltaPage(context.Background(), "folder-1", "")
	var status *er.StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusServiceUnavailable, status.StatusCode)
	assert.True(t, er.IsTransient(err))
}

func TestListFolders_WalksChildren(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/archive@example.com/mailFolders", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value": [
			{"id": "inbox", "displayName": "Inbox", "totalItemCount": 12, "childFolderCount": 1},
			{"id": "sent", "displayName": "Sent Items"}
		]}`)
	})
	mux.HandleFunc("/users/archive@example.com/mailFolders/inbox/childFolders", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value": [{"id": "receipts", "parentFolderId": "inbox", "displayName": "Receipts"}]}`)
	})
	source, _ := newTestSource(t, mux)

	folders, err := source.ListFolders(context.Background())
	require.NoError(t, err)
	require.Len(t, folders, 3)

	byID := map[string]int{}
	for i, f := range folders {
		byID[f.ID] = i
	}
	assert.Empty(t, folders[byID["inbox"]].ParentID)
	assert.Equal(t, 12, folders[byID["inbox"]].TotalCount)
	assert.Equal(t, "inbox", folders[byID["receipts"]].ParentID)
	// Children always come after their parent.
	assert.Greater(t, byID["receipts"], byID["inbox"])
}

func TestFetchSinceDate_DrainsAllPages(t *testing.T) {
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/users/archive@example.com/mailFolders/inbox/messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("$filter"), "receivedDateTime ge ")
		fmt.Fprintf(w, `{"value": [{"id": "m1", "receivedDateTime": "2025-03-02T08:00:00Z"}], "@odata.nextLink": "%s/second"}`, server.URL)
	})
	mux.HandleFunc("/second", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value": [{"id": "m2", "receivedDateTime": "2025-03-02T09:00:00Z"}]}`)
	})
	source, srv := newTestSource(t, mux)
	server = srv

	items, err := source.FetchSinceDate(context.Background(), "inbox", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "m1", items[0].ID)
	assert.Equal(t, "m2", items[1].ID)
}

func TestFetchRawContent_ReturnsBody(t *testing.T) {
	source, _ := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/messages/m1/$value")
		fmt.Fprint(w, "From: alice@example.com\r\n\r\nhello")
	}))

	raw, err := source.FetchRawContent(context.Background(), "m1")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "hello")
}

func TestNewGraphSource_RequiresCredentials(t *testing.T) {
	log := logger.NewAppLogger(&logger.Config{LogLevel: "error", Encoder: "console"})
	log.InitLogger()

	_, err := NewGraphSource(context.Background(), &config.GraphConfig{}, log)
	assert.ErrorIs(t, err, er.ErrSourceNotEnabled)
}
