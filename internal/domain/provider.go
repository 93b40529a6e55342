package domain

import (
	"context"
	"time"
)

// TestDescriptor is what PlacementProvider.CreateTest hands back immediately
// (spec §6): the provider has accepted the request but the test has not
// necessarily completed.
type TestDescriptor struct {
	UUID         string
	FilterPhrase string
	TestEmails   []TestEmailTarget
}

// TestEmailTarget is one seed address the caller must send through.
type TestEmailTarget struct {
	Email    string
	Provider string // "Google" or "Microsoft"
}

// TestResult is what PlacementProvider.GetTest returns; OverallScore and
// CompletedAt are only meaningful once Status is TestCompleted.
type TestResult struct {
	Status       PlacementTestStatus
	OverallScore int
	TestEmails   []TestRecord
	CompletedAt  *time.Time
}

// PlacementProvider is the abstract external placement-test collaborator
// (spec §1, §6). Both methods may fail transiently; callers route failures
// through the job retry path rather than inline backoff.
type PlacementProvider interface {
	CreateTest(ctx context.Context, domainName string) (*TestDescriptor, error)
	GetTest(ctx context.Context, uuid string) (*TestResult, error)
}

// EmailAccountUpdate is the payload for CampaignPlatform.UpdateEmailAccount
// (spec §6).
type EmailAccountUpdate struct {
	MessagePerDay int
	Type          string // SMTP, GMAIL, ZOHO, OUTLOOK
	WarmupDetails map[string]interface{}
}

// CampaignSettingsUpdate is the payload for CampaignPlatform.UpdateCampaignSettings.
type CampaignSettingsUpdate struct {
	FollowUpPercentage   int
	TrackSettings        []string
	StopLeadSettings     map[string]interface{}
	EnableAIESPMatching  bool
	SendAsPlainText      bool
}

// CampaignPlatform is the abstract external campaign-platform collaborator
// (spec §1, §6). UpdateCampaignDomain must be idempotent on
// (campaignID, toExternalID).
type CampaignPlatform interface {
	UpdateEmailAccount(ctx context.Context, externalAccountID string, update EmailAccountUpdate) error
	UpdateCampaignSettings(ctx context.Context, campaignID string, update CampaignSettingsUpdate) error
	UpdateCampaignStatus(ctx context.Context, campaignID string, status CampaignStatus) error
	UpdateCampaignDomain(ctx context.Context, campaignID, fromExternalID, toExternalID string) error
}
