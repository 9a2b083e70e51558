package graph

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/customeros/mailvault/interfaces"
	"github.com/customeros/mailvault/internal/tracing"
)

type mailFolder struct {
	ID               string `json:"id"`
	ParentFolderID   string `json:"parentFolderId"`
	DisplayName      string `json:"displayName"`
	TotalItemCount   int    `json:"totalItemCount"`
	UnreadItemCount  int    `json:"unreadItemCount"`
	ChildFolderCount int    `json:"childFolderCount"`
}

type mailFolderPage struct {
	Value    []mailFolder `json:"value"`
	NextLink string       `json:"@odata.nextLink"`
}

// ListFolders walks the mailbox folder tree breadth-first. Graph only serves
// one level per request, so every folder with children costs an extra call.
func (s *graphSource) ListFolders(ctx context.Context) ([]interfaces.FolderDescriptor, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "GraphSource.ListFolders")
	defer span.Finish()
	tracing.TagComponentRest(span)
	tracing.TagMailbox(span, s.cfg.MailboxUPN)

	roots, err := s.listFolderLevel(ctx, s.mailboxURL("mailFolders")+fmt.Sprintf("?$top=%d", s.cfg.PageSize))
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	descriptors := make([]interfaces.FolderDescriptor, 0, len(roots))
	queue := make([]mailFolder, len(roots))
	copy(queue, roots)
	// Top-level folders hang off the mailbox root, which is not a folder the
	// archive tracks.
	topLevel := make(map[string]bool, len(roots))
	for _, f := range roots {
		topLevel[f.ID] = true
	}

	for len(queue) > 0 {
		folder := queue[0]
		queue = queue[1:]

		descriptor := interfaces.FolderDescriptor{
			ID:          folder.ID,
			DisplayName: folder.DisplayName,
			TotalCount:  folder.TotalItemCount,
			UnreadCount: folder.UnreadItemCount,
		}
		if !topLevel[folder.ID] {
			descriptor.ParentID = folder.ParentFolderID
		}
		descriptors = append(descriptors, descriptor)

		if folder.ChildFolderCount > 0 {
			children, err := s.listFolderLevel(ctx, s.mailboxURL("mailFolders", folder.ID, "childFolders")+fmt.Sprintf("?$top=%d", s.cfg.PageSize))
			if err != nil {
				tracing.TraceErr(span, err)
				return nil, err
			}
			queue = append(queue, children...)
		}
	}

	span.LogFields(tracingLog.Int("result.count", len(descriptors)))
	return descriptors, nil
}

func (s *graphSource) listFolderLevel(ctx context.Context, requestURL string) ([]mailFolder, error) {
	var out []mailFolder

	for requestURL != "" {
		resp, err := s.get(ctx, requestURL, []string{preferImmutableIds})
		if err != nil {
			return nil, err
		}

		var page mailFolderPage
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, errors.Wrap(err, "failed to decode folder page")
		}

		out = append(out, page.Value...)
		requestURL = page.NextLink
	}

	return out, nil
}
