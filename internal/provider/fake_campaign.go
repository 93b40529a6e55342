package provider

import (
	"context"
	"sync"

	"github.com/domainfleet/engine/internal/domain"
)

// FakeCampaignPlatform records every call it receives instead of making any
// network request, so tests can assert AutomationEngine drives the
// campaign-platform surface correctly.
type FakeCampaignPlatform struct {
	mu sync.Mutex

	EmailAccountUpdates    []EmailAccountCall
	CampaignSettingsCalls  []CampaignSettingsCall
	CampaignStatusCalls    []CampaignStatusCall
	CampaignDomainCalls    []CampaignDomainCall
	domainMoves            map[string]string // campaignID -> current externalID, for idempotency checks

	// FailNextDomainMove, when set, is returned once by the next
	// UpdateCampaignDomain call and then cleared, letting tests exercise the
	// "rotated with errors" partial-failure path.
	FailNextDomainMove error
}

type EmailAccountCall struct {
	ExternalAccountID string
	Update             domain.EmailAccountUpdate
}

type CampaignSettingsCall struct {
	CampaignID string
	Update     domain.CampaignSettingsUpdate
}

type CampaignStatusCall struct {
	CampaignID string
	Status     domain.CampaignStatus
}

type CampaignDomainCall struct {
	CampaignID     string
	FromExternalID string
	ToExternalID   string
}

func NewFakeCampaignPlatform() *FakeCampaignPlatform {
	return &FakeCampaignPlatform{domainMoves: make(map[string]string)}
}

func (f *FakeCampaignPlatform) UpdateEmailAccount(ctx context.Context, externalAccountID string, update domain.EmailAccountUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.EmailAccountUpdates = append(f.EmailAccountUpdates, EmailAccountCall{externalAccountID, update})
	return nil
}

func (f *FakeCampaignPlatform) UpdateCampaignSettings(ctx context.Context, campaignID string, update domain.CampaignSettingsUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CampaignSettingsCalls = append(f.CampaignSettingsCalls, CampaignSettingsCall{campaignID, update})
	return nil
}

func (f *FakeCampaignPlatform) UpdateCampaignStatus(ctx context.Context, campaignID string, status domain.CampaignStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CampaignStatusCalls = append(f.CampaignStatusCalls, CampaignStatusCall{campaignID, status})
	return nil
}

// UpdateCampaignDomain is idempotent: calling it twice with the same
// (campaignID, toExternalID) after the first succeeds is a no-op success,
// matching the interface's documented contract.
func (f *FakeCampaignPlatform) UpdateCampaignDomain(ctx context.Context, campaignID, fromExternalID, toExternalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.domainMoves[campaignID] == toExternalID {
		return nil
	}
	if f.FailNextDomainMove != nil {
		err := f.FailNextDomainMove
		f.FailNextDomainMove = nil
		return err
	}
	f.CampaignDomainCalls = append(f.CampaignDomainCalls, CampaignDomainCall{campaignID, fromExternalID, toExternalID})
	f.domainMoves[campaignID] = toExternalID
	return nil
}

var _ domain.CampaignPlatform = (*FakeCampaignPlatform)(nil)
