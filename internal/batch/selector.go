// Package batch validates and freezes the candidate set of a campaign.
// Positions are dense (0..n-1), assigned once, and define the dispatch
// send order.
package batch

import (
	"fmt"

	"github.com/benchwire/hotlist/internal/errs"
	"github.com/benchwire/hotlist/internal/model"
)

// Selection describes one candidate to include in a campaign
type Selection struct {
	Ref             string `json:"ref"`
	VendorEmail     string `json:"vendor_email,omitempty"`
	IncludeWorkAuth *bool  `json:"include_work_authorization,omitempty"`
}

// Select validates the selections against the campaign and its current
// candidate set and returns the new rows to insert. Each new candidate
// gets the next available position and status selected. The work
// authorization flag defaults to the campaign-level setting unless
// overridden per candidate.
func Select(c *model.Campaign, existing []*model.CampaignCandidate, selections []Selection) ([]*model.CampaignCandidate, error) {
	if c.Status != model.CampaignDraft {
		return nil, errs.NewValidation("status", fmt.Sprintf("candidates can only be selected in draft, campaign is %s", c.Status))
	}
	if len(selections) == 0 {
		return nil, errs.NewValidation("candidates", "at least one candidate is required")
	}
	if len(existing)+len(selections) > c.BatchSize {
		return nil, errs.NewValidation("candidates",
			fmt.Sprintf("selection exceeds batch size: %d existing + %d new > %d", len(existing), len(selections), c.BatchSize))
	}

	present := make(map[string]bool, len(existing))
	for _, cc := range existing {
		present[cc.CandidateRef] = true
	}

	next := len(existing)
	rows := make([]*model.CampaignCandidate, 0, len(selections))
	for _, sel := range selections {
		if sel.Ref == "" {
			return nil, errs.NewValidation("candidates", "candidate ref must not be empty")
		}
		if present[sel.Ref] {
			return nil, errs.NewValidation("candidates", fmt.Sprintf("candidate %s is already in the campaign", sel.Ref))
		}
		present[sel.Ref] = true

		includeWorkAuth := c.ShowWorkAuth
		if sel.IncludeWorkAuth != nil {
			includeWorkAuth = *sel.IncludeWorkAuth
		}

		rows = append(rows, &model.CampaignCandidate{
			CampaignID:      c.ID,
			CandidateRef:    sel.Ref,
			PositionInBatch: next,
			IncludeWorkAuth: includeWorkAuth,
			Status:          model.CandidateSelected,
			VendorEmail:     sel.VendorEmail,
		})
		next++
	}

	return rows, nil
}

// CanRemove reports whether a candidate may currently be removed from
// the campaign
func CanRemove(c *model.Campaign) error {
	if c.Status != model.CampaignDraft {
		return errs.NewValidation("status", fmt.Sprintf("candidates can only be removed in draft, campaign is %s", c.Status))
	}
	return nil
}

// CanSetWorkAuth reports whether the per-candidate work authorization
// flag may currently be changed
func CanSetWorkAuth(c *model.Campaign) error {
	switch c.Status {
	case model.CampaignDraft, model.CampaignScheduled:
		return nil
	}
	return errs.NewValidation("status", fmt.Sprintf("work authorization visibility is frozen once the campaign is %s", c.Status))
}
