package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPoolType_IsValid(t *testing.T) {
	tests := []struct {
		name string
		pool PoolType
		want bool
	}{
		{"initial warming is valid", PoolInitialWarming, true},
		{"ready waiting is valid", PoolReadyWaiting, true},
		{"active is valid", PoolActive, true},
		{"recovery is valid", PoolRecovery, true},
		{"empty is invalid", PoolType(""), false},
		{"unknown is invalid", PoolType("bogus"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pool.IsValid())
		})
	}
}

func TestDomain_HasActiveCampaign(t *testing.T) {
	d := &Domain{Campaigns: []CampaignRef{
		{CampaignID: "c1", Status: CampaignPaused},
		{CampaignID: "c2", Status: CampaignActive},
	}}
	assert.True(t, d.HasActiveCampaign())

	d2 := &Domain{Campaigns: []CampaignRef{{CampaignID: "c1", Status: CampaignStopped}}}
	assert.False(t, d2.HasActiveCampaign())
}

func TestDomain_ActiveCampaignIDs(t *testing.T) {
	d := &Domain{Campaigns: []CampaignRef{
		{CampaignID: "c1", Status: CampaignActive},
		{CampaignID: "c2", Status: CampaignPaused},
		{CampaignID: "c3", Status: CampaignActive},
	}}
	assert.Equal(t, []string{"c1", "c3"}, d.ActiveCampaignIDs())
}

func TestDomain_LastNScores(t *testing.T) {
	d := &Domain{TestHistory: []TestHistoryEntry{
		{Score: 80}, {Score: 85}, {Score: 82}, {Score: 86},
	}}
	assert.Equal(t, []int{82, 86}, d.LastNScores(2))
	assert.Equal(t, []int{80, 85, 82, 86}, d.LastNScores(10))
	assert.Nil(t, d.LastNScores(0))
}

func TestDomain_DaysInPool(t *testing.T) {
	now := time.Date(2026, 1, 22, 0, 0, 0, 0, time.UTC)
	d := &Domain{PoolEntryDate: now.Add(-21 * 24 * time.Hour)}
	assert.Equal(t, 21, d.DaysInPool(now))

	d2 := &Domain{PoolEntryDate: now.Add(-20 * 24 * time.Hour)}
	assert.Equal(t, 20, d2.DaysInPool(now))

	assert.Equal(t, 0, (&Domain{}).DaysInPool(now))
}

func TestEventBus_PublishInvokesHandlersInRegistrationOrder(t *testing.T) {
	bus := NewInMemoryEventBus(nil)
	var order []string
	bus.Subscribe(EventScoreUpdated, func(e Event) { order = append(order, "first") })
	bus.Subscribe(EventScoreUpdated, func(e Event) { order = append(order, "second") })

	bus.Publish(Event{Type: EventScoreUpdated, DomainID: "d1"})

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestEventBus_HandlerPanicDoesNotStopOtherHandlers(t *testing.T) {
	var panics []interface{}
	bus := NewInMemoryEventBus(func(t EventType, r interface{}) {
		panics = append(panics, r)
	})

	ran := false
	bus.Subscribe(EventScoreUpdated, func(e Event) { panic("boom") })
	bus.Subscribe(EventScoreUpdated, func(e Event) { ran = true })

	bus.Publish(Event{Type: EventScoreUpdated})

	assert.True(t, ran, "second handler must still run after the first panics")
	assert.Len(t, panics, 1)
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(nil)
	calls := 0
	id := bus.Subscribe(EventTestScheduled, func(e Event) { calls++ })
	bus.Publish(Event{Type: EventTestScheduled})
	bus.Unsubscribe(EventTestScheduled, id)
	bus.Publish(Event{Type: EventTestScheduled})

	assert.Equal(t, 1, calls)
}
