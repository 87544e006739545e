package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ignite/engagement-tracker/internal/domain"
)

func TestLocalDispatcher_RecordsOnStop(t *testing.T) {
	s := newMemStore()
	s.addRecipient(time.Hour)
	d := NewLocalDispatcher(newTestRecorder(s), 2, 16, time.Second)
	d.Start()

	for i := 0; i < 5; i++ {
		d.Dispatch(context.Background(), *hit(domain.EventOpen, chromeUA))
	}
	d.Stop()

	assert.Len(t, s.events, 5)
	assert.Equal(t, 1, s.counters[testCampaignID].Opened)
	assert.Equal(t, 0, d.Pending())
}

func TestLocalDispatcher_DropsWhenFull(t *testing.T) {
	s := newMemStore()
	s.addRecipient(time.Hour)
	d := NewLocalDispatcher(newTestRecorder(s), 1, 2, time.Second)

	// Not started: the buffer fills and further hits are dropped.
	for i := 0; i < 5; i++ {
		d.Dispatch(context.Background(), *hit(domain.EventOpen, chromeUA))
	}
	assert.Equal(t, 2, d.Pending())

	d.Start()
	d.Stop()
	assert.Len(t, s.events, 2)
}

func TestNewLocalDispatcher_Defaults(t *testing.T) {
	d := NewLocalDispatcher(nil, 0, 0, 0)
	assert.Equal(t, DefaultLocalWorkers, d.workers)
	assert.Equal(t, DefaultLocalCapacity, cap(d.events))
	assert.Equal(t, DefaultRecordTimeout, d.timeout)
}
