package notion

import (
	"context"
	"fmt"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// Lead database property names.
const (
	PropName       = "Name"
	PropMapsURL    = "Maps URL"
	PropWebsite    = "Website"
	PropEmail      = "Email"
	PropPhone      = "Phone"
	PropAddress    = "Address"
	PropCategory   = "Category"
	PropRegion     = "Region"
	PropRating     = "Rating"
	PropViolations = "Violations"
	PropSummary    = "Summary"
)

// maxRichText is Notion's per-segment rich text limit.
const maxRichText = 2000

// LeadPage is the flattened form of a lead written to the database.
type LeadPage struct {
	Name       string
	MapsURL    string
	Website    string
	Email      string
	Phone      string
	Address    string
	Category   string
	Region     string
	Rating     float64
	Violations int
	Summary    string
}

// FindByMapsURL returns the id of the page whose Maps URL equals mapsURL,
// or "" when there is none. Maps URL is a rich_text property so it can be
// matched with an equality filter.
func FindByMapsURL(ctx context.Context, c Client, dbID, mapsURL string) (notionapi.PageID, error) {
	pages, err := c.FindPages(ctx, dbID, notionapi.PropertyFilter{
		Property: PropMapsURL,
		RichText: &notionapi.TextFilterCondition{Equals: mapsURL},
	}, 1)
	if err != nil {
		return "", eris.Wrap(err, fmt.Sprintf("notion: find lead %s", mapsURL))
	}
	if len(pages) == 0 {
		return "", nil
	}
	return notionapi.PageID(pages[0].ID), nil
}

// UpsertLead updates the page with the same Maps URL or creates one. It
// returns the page id and whether it was created.
func UpsertLead(ctx context.Context, c Client, dbID string, lead LeadPage) (notionapi.PageID, bool, error) {
	if lead.MapsURL == "" {
		return "", false, eris.New("notion: lead maps url is required")
	}
	props := leadProperties(lead)

	existing, err := FindByMapsURL(ctx, c, dbID, lead.MapsURL)
	if err != nil {
		return "", false, err
	}
	if existing != "" {
		if err := c.UpdatePage(ctx, existing, props); err != nil {
			return "", false, eris.Wrap(err, "notion: update lead")
		}
		return existing, false, nil
	}

	id, err := c.CreatePage(ctx, dbID, props)
	if err != nil {
		return "", false, eris.Wrap(err, "notion: create lead")
	}
	return id, true, nil
}

// leadProperties converts a lead to page properties. Empty optional
// fields are omitted since Notion rejects empty url and email values.
func leadProperties(l LeadPage) notionapi.Properties {
	props := notionapi.Properties{
		PropName: notionapi.TitleProperty{
			Type:  notionapi.PropertyTypeTitle,
			Title: richText(l.Name),
		},
		PropMapsURL: notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(l.MapsURL),
		},
		PropRating: notionapi.NumberProperty{
			Type:   notionapi.PropertyTypeNumber,
			Number: l.Rating,
		},
		PropViolations: notionapi.NumberProperty{
			Type:   notionapi.PropertyTypeNumber,
			Number: float64(l.Violations),
		},
	}
	if l.Website != "" {
		props[PropWebsite] = notionapi.URLProperty{Type: notionapi.PropertyTypeURL, URL: l.Website}
	}
	if l.Email != "" {
		props[PropEmail] = notionapi.EmailProperty{Type: notionapi.PropertyTypeEmail, Email: l.Email}
	}
	if l.Phone != "" {
		props[PropPhone] = notionapi.PhoneNumberProperty{Type: notionapi.PropertyTypePhoneNumber, PhoneNumber: l.Phone}
	}
	if l.Category != "" {
		props[PropCategory] = notionapi.SelectProperty{
			Type:   notionapi.PropertyTypeSelect,
			Select: notionapi.Option{Name: strings.ReplaceAll(l.Category, ",", " ")},
		}
	}
	for name, v := range map[string]string{PropAddress: l.Address, PropRegion: l.Region, PropSummary: l.Summary} {
		if v != "" {
			props[name] = notionapi.RichTextProperty{Type: notionapi.PropertyTypeRichText, RichText: richText(v)}
		}
	}
	return props
}

func richText(s string) []notionapi.RichText {
	r := []rune(s)
	if len(r) > maxRichText {
		s = string(r[:maxRichText])
	}
	return []notionapi.RichText{{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}}}
}
