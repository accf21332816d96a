package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// LeadSource tags every Lead this tool creates.
const LeadSource = "Maps Review Audit"

// Lead is the subset of the Salesforce Lead object we read back.
type Lead struct {
	ID      string `json:"Id" salesforce:"Id"`
	Company string `json:"Company" salesforce:"Company"`
	Website string `json:"Website" salesforce:"Website"`
	Email   string `json:"Email" salesforce:"Email"`
}

// FindLeadByWebsite returns the first Lead whose Website matches, or nil.
func FindLeadByWebsite(ctx context.Context, c Client, website string) (*Lead, error) {
	if website == "" {
		return nil, nil
	}
	soql := fmt.Sprintf(
		"SELECT Id, Company, Website, Email FROM Lead WHERE Website = '%s' AND LeadSource = '%s' LIMIT 1",
		escapeSoql(website), LeadSource,
	)
	var leads []Lead
	if err := c.Query(ctx, soql, &leads); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: find lead by website %s", website))
	}
	if len(leads) == 0 {
		return nil, nil
	}
	return &leads[0], nil
}

// UpsertLead updates the Lead matching fields["Website"] or creates a new
// one. It returns the record id and whether it was created.
func UpsertLead(ctx context.Context, c Client, fields map[string]any) (string, bool, error) {
	company, _ := fields["Company"].(string)
	if company == "" {
		return "", false, eris.New("sf: lead Company is required")
	}
	if _, ok := fields["LastName"]; !ok {
		fields["LastName"] = company
	}
	fields["LeadSource"] = LeadSource

	website, _ := fields["Website"].(string)
	existing, err := FindLeadByWebsite(ctx, c, website)
	if err != nil {
		return "", false, err
	}
	if existing != nil {
		if err := c.UpdateOne(ctx, "Lead", existing.ID, fields); err != nil {
			return "", false, eris.Wrap(err, fmt.Sprintf("sf: update lead %s", existing.ID))
		}
		return existing.ID, false, nil
	}

	id, err := c.InsertOne(ctx, "Lead", fields)
	if err != nil {
		return "", false, eris.Wrap(err, "sf: create lead")
	}
	return id, true, nil
}

// escapeSoql escapes single quotes in SOQL string literals to prevent injection.
func escapeSoql(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "'", "\\'")
}
