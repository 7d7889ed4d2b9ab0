package export

import (
	"context"
	"errors"
	"fmt"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/resilience"
	"github.com/sells-group/prospector/pkg/notion"
)

// Notion's rich_text blocks cap at 2000 characters.
const notionTextLimit = 2000

// Notion pushes records into a Notion database, one page per record.
// Records whose name already titles a page have that page refreshed
// instead of duplicated.
type Notion struct {
	client notion.Client
	dbID   string
}

// NewNotion creates a Notion exporter targeting the given database.
func NewNotion(client notion.Client, dbID string) *Notion {
	return &Notion{client: client, dbID: dbID}
}

// Export creates one page per new record and refreshes the properties of
// pages whose title already matches. Returns the number of pages touched.
// A page failure stops the export; pages written before the failure stay.
func (n *Notion) Export(ctx context.Context, records []model.EntityRecord) (int, error) {
	existing, err := resilience.DoVal(ctx, titleScanRetry(), func(ctx context.Context) (map[string]string, error) {
		return notion.PageTitles(ctx, n.client, n.dbID)
	})
	if err != nil {
		return 0, eris.Wrap(err, "export: list notion pages")
	}
	pageByKey := make(map[string]string, len(existing))
	for title, id := range existing {
		pageByKey[model.IdentityKey(title)] = id
	}

	created, updated := 0, 0
	for i := range records {
		rec := &records[i]

		if pageID, ok := pageByKey[rec.Key()]; ok {
			req := &notionapi.PageUpdateRequest{Properties: refreshProperties(rec)}
			if _, err := n.client.UpdatePage(ctx, pageID, req); err != nil {
				return created + updated, eris.Wrap(err, fmt.Sprintf("export: update notion page for %s", rec.Name))
			}
			updated++
			continue
		}

		req := &notionapi.PageCreateRequest{
			Parent: notionapi.Parent{
				Type:       notionapi.ParentTypeDatabaseID,
				DatabaseID: notionapi.DatabaseID(n.dbID),
			},
			Properties: pageProperties(rec),
		}
		page, err := n.client.CreatePage(ctx, req)
		if err != nil {
			return created + updated, eris.Wrap(err, fmt.Sprintf("export: create notion page for %s", rec.Name))
		}
		pageByKey[rec.Key()] = string(page.ID)
		created++
	}

	zap.L().Info("export: notion push complete",
		zap.Int("created", created),
		zap.Int("updated", updated),
	)
	return created + updated, nil
}

func pageProperties(rec *model.EntityRecord) notionapi.Properties {
	props := notionapi.Properties{
		"Name":   notion.TitleProp(rec.Name),
		"Status": notion.SelectProp("Discovered"),
	}
	if rec.Website != "" {
		props["Website"] = notion.URLProp(rec.Website)
	}
	if rec.LocalityDisplay != "" {
		props["Location"] = notion.RichTextProp(rec.LocalityDisplay)
	}
	if rec.Industry != "" {
		props["Industry"] = notion.RichTextProp(rec.Industry)
	}
	if rec.SizeEstimate != "" {
		props["Size"] = notion.RichTextProp(rec.SizeEstimate)
	}
	if rec.FoundedYear > 0 {
		props["Founded"] = notion.NumberProp(float64(rec.FoundedYear))
	}
	if rec.LinkedInURL != "" {
		props["LinkedIn"] = notion.URLProp(rec.LinkedInURL)
	}
	if rec.Description != "" {
		props["Description"] = notion.RichTextProp(truncate(rec.Description, notionTextLimit))
	}
	props["Completeness"] = notion.NumberProp(float64(rec.CompletenessScore()))
	return props
}

// refreshProperties returns the record's properties without Status, so a
// page someone has moved along the workflow keeps its stage on refresh.
func refreshProperties(rec *model.EntityRecord) notionapi.Properties {
	props := pageProperties(rec)
	delete(props, "Status")
	return props
}

// titleScanRetry covers the full-database title scan, the one read the
// export cannot proceed without. Page writes are not retried; a replayed
// create could duplicate a page.
func titleScanRetry() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.ShouldRetry = func(err error) bool {
		var apiErr *notionapi.Error
		if errors.As(err, &apiErr) {
			return resilience.IsTransientHTTPStatus(apiErr.Status)
		}
		return resilience.IsTransient(err)
	}
	cfg.OnRetry = resilience.RetryLogger("notion", "page_titles")
	return cfg
}
