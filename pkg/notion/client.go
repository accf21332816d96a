// Package notion writes leads to a Notion database.
package notion

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client is the slice of the Notion API the lead database needs: one
// filtered lookup and page writes into a single database.
type Client interface {
	FindPages(ctx context.Context, dbID string, filter notionapi.Filter, limit int) ([]notionapi.Page, error)
	CreatePage(ctx context.Context, dbID string, props notionapi.Properties) (notionapi.PageID, error)
	UpdatePage(ctx context.Context, pageID notionapi.PageID, props notionapi.Properties) error
}

type apiClient struct {
	db      notionapi.DatabaseService
	pages   notionapi.PageService
	limiter *rate.Limiter
}

// NewClient creates a Notion client for the given integration token.
// rps <= 0 disables throttling; Notion allows about 3 requests a second.
func NewClient(token string, rps float64) Client {
	inner := notionapi.NewClient(notionapi.Token(token))
	c := &apiClient{db: inner.Database, pages: inner.Page}
	if rps > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
	}
	return c
}

func (c *apiClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return eris.Wrap(c.limiter.Wait(ctx), "notion: rate limit")
}

func (c *apiClient) FindPages(ctx context.Context, dbID string, filter notionapi.Filter, limit int) ([]notionapi.Page, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.db.Query(ctx, notionapi.DatabaseID(dbID), &notionapi.DatabaseQueryRequest{
		Filter:   filter,
		PageSize: limit,
	})
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("notion: query database %s", dbID))
	}
	return resp.Results, nil
}

func (c *apiClient) CreatePage(ctx context.Context, dbID string, props notionapi.Properties) (notionapi.PageID, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	page, err := c.pages.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: props,
	})
	if err != nil {
		return "", eris.Wrap(err, "notion: create page")
	}
	return notionapi.PageID(page.ID), nil
}

func (c *apiClient) UpdatePage(ctx context.Context, pageID notionapi.PageID, props notionapi.Properties) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	if _, err := c.pages.Update(ctx, pageID, &notionapi.PageUpdateRequest{Properties: props}); err != nil {
		return eris.Wrap(err, fmt.Sprintf("notion: update page %s", pageID))
	}
	return nil
}
