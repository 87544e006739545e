package reconcile

import "errors"

// Sentinel errors for the reconcile layer.
var (
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrEmptyCampaignID  = errors.New("campaign id is required")
)
