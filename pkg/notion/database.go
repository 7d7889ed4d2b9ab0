package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// QueryAll fetches every page of a database query. Each page's successor
// is requested in the background while the current page is appended, so
// a multi-page scan overlaps network time with processing. Rate limiting
// is enforced by the Client (3 req/s by default).
func QueryAll(ctx context.Context, c Client, dbID string, filter *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	type fetchResult struct {
		resp *notionapi.DatabaseQueryResponse
		err  error
	}

	// request carries the caller's filter, sorts, and page size into
	// every paging request.
	request := func(cursor notionapi.Cursor) *notionapi.DatabaseQueryRequest {
		req := &notionapi.DatabaseQueryRequest{StartCursor: cursor}
		if filter != nil {
			req.Filter = filter.Filter
			req.Sorts = filter.Sorts
			req.PageSize = filter.PageSize
		}
		return req
	}

	fetch := func(req *notionapi.DatabaseQueryRequest) <-chan fetchResult {
		ch := make(chan fetchResult, 1)
		go func() {
			resp, err := c.QueryDatabase(ctx, dbID, req)
			ch <- fetchResult{resp: resp, err: err}
		}()
		return ch
	}

	if ctx.Err() != nil {
		return nil, eris.Wrap(ctx.Err(), "notion: query all cancelled")
	}

	var all []notionapi.Page
	pending := fetch(request(""))
	for {
		result := <-pending
		if result.err != nil {
			return nil, eris.Wrap(result.err, "notion: query all page")
		}

		resp := result.resp
		if resp.HasMore {
			pending = fetch(request(resp.NextCursor))
		}

		all = append(all, resp.Results...)
		if !resp.HasMore {
			return all, nil
		}
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "notion: query all cancelled")
		}
	}
}

// PageTitles fetches every page in the database and returns a map from the
// page's plain-text title to its page ID. Pages without a title property
// are skipped. Callers use this to avoid creating duplicate pages.
func PageTitles(ctx context.Context, c Client, dbID string) (map[string]string, error) {
	pages, err := QueryAll(ctx, c, dbID, nil)
	if err != nil {
		return nil, eris.Wrap(err, "notion: page titles")
	}

	titles := make(map[string]string, len(pages))
	for _, page := range pages {
		title := PlainTitle(&page)
		if title == "" {
			continue
		}
		titles[title] = string(page.ID)
	}
	return titles, nil
}
