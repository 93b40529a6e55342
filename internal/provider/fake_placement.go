// Package provider holds reference implementations of domain.PlacementProvider
// and domain.CampaignPlatform. Real vendor integrations are out of scope
// (spec Non-goals); these in-memory fakes let the reference host and test
// suites exercise AutomationEngine end to end.
package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/domainfleet/engine/internal/domain"
	"github.com/google/uuid"
)

// FakePlacementProvider simulates a placement-test vendor: CreateTest hands
// back a descriptor immediately, and GetTest reports the test as pending
// until ScoreFunc (or the default) is applied after ResolveAfter elapses.
type FakePlacementProvider struct {
	mu    sync.Mutex
	tests map[string]*fakeTest

	// ScoreFunc computes the overall score for a domain name; defaults to
	// always returning 90 (a comfortably healthy score) when nil.
	ScoreFunc func(domainName string) int
	// ResolveAfter is how long a test stays pending before GetTest reports
	// it complete. Zero resolves on the first GetTest call.
	ResolveAfter time.Duration
	now          func() time.Time
}

type fakeTest struct {
	domainName string
	createdAt  time.Time
}

// NewFakePlacementProvider builds a fake using time.Now for its clock.
func NewFakePlacementProvider() *FakePlacementProvider {
	return &FakePlacementProvider{tests: make(map[string]*fakeTest), now: time.Now}
}

// WithClock overrides the time source, used by deterministic tests.
func (f *FakePlacementProvider) WithClock(now func() time.Time) *FakePlacementProvider {
	f.now = now
	return f
}

func (f *FakePlacementProvider) CreateTest(ctx context.Context, domainName string) (*domain.TestDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New().String()
	f.tests[id] = &fakeTest{domainName: domainName, createdAt: f.now()}
	return &domain.TestDescriptor{
		UUID:         id,
		FilterPhrase: fmt.Sprintf("placement-test-%s", id[:8]),
		TestEmails: []domain.TestEmailTarget{
			{Email: fmt.Sprintf("seed-google-%s@gmail.com", id[:8]), Provider: "Google"},
			{Email: fmt.Sprintf("seed-ms-%s@outlook.com", id[:8]), Provider: "Microsoft"},
		},
	}, nil
}

func (f *FakePlacementProvider) GetTest(ctx context.Context, uuidStr string) (*domain.TestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tests[uuidStr]
	if !ok {
		return nil, &domain.ErrNotFound{Entity: "PlacementTest", ID: uuidStr}
	}
	if f.now().Sub(t.createdAt) < f.ResolveAfter {
		return &domain.TestResult{Status: domain.TestWaitingForEmail}, nil
	}
	score := 90
	if f.ScoreFunc != nil {
		score = f.ScoreFunc(t.domainName)
	}
	completed := f.now()
	return &domain.TestResult{
		Status:       domain.TestCompleted,
		OverallScore: score,
		CompletedAt:  &completed,
		TestEmails: []domain.TestRecord{
			{Email: "seed-google@gmail.com", Provider: "Google", Folder: folderFor(score), Status: "delivered"},
			{Email: "seed-ms@outlook.com", Provider: "Microsoft", Folder: folderFor(score), Status: "delivered"},
		},
	}, nil
}

func folderFor(score int) string {
	if score >= 75 {
		return "inbox"
	}
	return "spam"
}

var _ domain.PlacementProvider = (*FakePlacementProvider)(nil)
