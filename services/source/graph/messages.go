package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/customeros/mailvault/interfaces"
	"github.com/customeros/mailvault/internal/tracing"
)

const messageSelect = "id,subject,sender,toRecipients,ccRecipients,receivedDateTime,hasAttachments,conversationId,internetMessageId,parentFolderId"

// The message resource has no size property; PidTagMessageSize is requested
// as an extended property instead.
const (
	messageSizeProperty = "Integer 0xe08"
	messageExpand       = "singleValueExtendedProperties($filter=id eq 'Integer 0xe08')"
)

type emailAddress struct {
	Address string `json:"address"`
}

type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

type graphMessage struct {
	ID                string      `json:"id"`
	Subject           string      `json:"subject"`
	Sender            *recipient  `json:"sender"`
	ToRecipients      []recipient `json:"toRecipients"`
	CcRecipients      []recipient `json:"ccRecipients"`
	ReceivedDateTime  time.Time   `json:"receivedDateTime"`
	HasAttachments    bool        `json:"hasAttachments"`
	ConversationID    string      `json:"conversationId"`
	InternetMessageID string      `json:"internetMessageId"`
	ParentFolderID    string      `json:"parentFolderId"`

	SingleValueExtendedProperties []struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	} `json:"singleValueExtendedProperties"`

	Removed *struct {
		Reason string `json:"reason"`
	} `json:"@removed"`
}

type messagePage struct {
	Value     []graphMessage `json:"value"`
	NextLink  string         `json:"@odata.nextLink"`
	DeltaLink string         `json:"@odata.deltaLink"`
}

// FetchDeltaPage requests one page of a folder's change stream. An empty
// cursor opens a fresh enumeration; otherwise the cursor is the nextLink or
// deltaLink URL handed out by a previous call.
func (s *graphSource) FetchDeltaPage(ctx context.Context, folderID, cursor string) (*interfaces.DeltaPage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "GraphSource.FetchDeltaPage")
	defer span.Finish()
	tracing.TagComponentRest(span)
	tracing.TagFolder(span, folderID)
	span.SetTag("fresh_enumeration", cursor == "")

	requestURL := cursor
	if requestURL == "" {
		requestURL = s.mailboxURL("mailFolders", folderID, "messages", "delta") +
			"?$select=" + url.QueryEscape(messageSelect) +
			"&$expand=" + url.QueryEscape(messageExpand)
	}

	prefer := []string{
		preferImmutableIds,
		fmt.Sprintf("odata.maxpagesize=%d", s.cfg.PageSize),
	}
	resp, err := s.get(ctx, requestURL, prefer)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	defer resp.Body.Close()

	var page messagePage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		err = errors.Wrap(err, "failed to decode delta page")
		tracing.TraceErr(span, err)
		return nil, err
	}

	out := &interfaces.DeltaPage{
		Items:       make([]interfaces.MessageDescriptor, 0, len(page.Value)),
		HasMore:     page.NextLink != "",
		NextCursor:  page.NextLink,
		FinalCursor: page.DeltaLink,
	}
	for i := range page.Value {
		out.Items = append(out.Items, toDescriptor(&page.Value[i], folderID))
	}

	span.LogFields(tracingLog.Int("result.items", len(out.Items)), tracingLog.Bool("result.hasMore", out.HasMore))
	return out, nil
}

// FetchSinceDate lists a folder's messages received at or after the given
// time. It is the recovery path when the delta stream cannot resume, so it
// drains every page before returning.
func (s *graphSource) FetchSinceDate(ctx context.Context, folderID string, since time.Time) ([]interfaces.MessageDescriptor, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "GraphSource.FetchSinceDate")
	defer span.Finish()
	tracing.TagComponentRest(span)
	tracing.TagFolder(span, folderID)
	span.LogFields(tracingLog.String("since", since.Format(time.RFC3339)))

	filter := fmt.Sprintf("receivedDateTime ge %s", since.UTC().Format(time.RFC3339))
	requestURL := s.mailboxURL("mailFolders", folderID, "messages") +
		"?$select=" + url.QueryEscape(messageSelect) +
		"&$expand=" + url.QueryEscape(messageExpand) +
		"&$filter=" + url.QueryEscape(filter) +
		"&$orderby=" + url.QueryEscape("receivedDateTime asc") +
		fmt.Sprintf("&$top=%d", s.cfg.PageSize)

	var out []interfaces.MessageDescriptor
	for requestURL != "" {
		resp, err := s.get(ctx, requestURL, []string{preferImmutableIds})
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}

		var page messagePage
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			err = errors.Wrap(err, "failed to decode message page")
			tracing.TraceErr(span, err)
			return nil, err
		}

		for i := range page.Value {
			out = append(out, toDescriptor(&page.Value[i], folderID))
		}
		requestURL = page.NextLink
	}

	span.LogFields(tracingLog.Int("result.items", len(out)))
	return out, nil
}

// FetchRawContent downloads the full MIME representation of a message.
func (s *graphSource) FetchRawContent(ctx context.Context, itemID string) ([]byte, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "GraphSource.FetchRawContent")
	defer span.Finish()
	tracing.TagComponentRest(span)
	tracing.TagEntity(span, itemID)

	resp, err := s.get(ctx, s.mailboxURL("messages", itemID, "$value"), []string{preferImmutableIds})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		err = errors.Wrap(err, "failed to read message content")
		tracing.TraceErr(span, err)
		return nil, err
	}

	span.LogFields(tracingLog.Int("result.bytes", len(raw)))
	return raw, nil
}

// toDescriptor flattens a Graph message. With immutable ids preferred the
// server returns the same identifier in both roles.
func toDescriptor(m *graphMessage, syncedFolderID string) interfaces.MessageDescriptor {
	d := interfaces.MessageDescriptor{
		ID:                m.ID,
		ImmutableID:       m.ID,
		Subject:           m.Subject,
		ReceivedAt:        m.ReceivedDateTime,
		HasAttachments:    m.HasAttachments,
		ConversationID:    m.ConversationID,
		InternetMessageID: m.InternetMessageID,
	}
	if m.Sender != nil {
		d.Sender = m.Sender.EmailAddress.Address
	}
	for _, p := range m.SingleValueExtendedProperties {
		if strings.EqualFold(p.ID, messageSizeProperty) {
			if n, err := strconv.ParseInt(p.Value, 10, 64); err == nil {
				d.Size = n
			}
		}
	}
	for _, r := range append(m.ToRecipients, m.CcRecipients...) {
		if r.EmailAddress.Address != "" {
			d.Recipients = append(d.Recipients, r.EmailAddress.Address)
		}
	}
	if m.Removed != nil {
		d.Removed = true
	}
	if m.ParentFolderID != "" && m.ParentFolderID != syncedFolderID {
		d.NewParentFolderID = m.ParentFolderID
	}
	return d
}
