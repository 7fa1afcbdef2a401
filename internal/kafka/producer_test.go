package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Shopify/sarama/mocks"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducer_Publish(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	defer func() { require.NoError(t, sp.Close()) }()

	ev := models.IngestionEvent{
		ID:         "6f1c",
		Site:       "S1",
		Source:     "AMR1",
		File:       "a.csv",
		Rows:       3,
		IngestedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var got models.IngestionEvent
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got.ID != ev.ID || got.File != ev.File || got.Rows != ev.Rows || !got.IngestedAt.Equal(ev.IngestedAt) {
			return errors.New("event changed in transit")
		}
		return nil
	})

	p := newProducer(sp, "events")
	assert.NoError(t, p.Publish(context.Background(), ev))
}

func TestProducer_PublishFailure(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	defer func() { require.NoError(t, sp.Close()) }()

	sp.ExpectSendMessageAndFail(errors.New("leader not available"))

	p := newProducer(sp, "events")
	err := p.Publish(context.Background(), models.IngestionEvent{Site: "S1", File: "a.csv"})
	assert.ErrorContains(t, err, "a.csv")
}

func TestProducer_CanceledContext(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	defer func() { require.NoError(t, sp.Close()) }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := newProducer(sp, "events")
	assert.ErrorIs(t, p.Publish(ctx, models.IngestionEvent{}), context.Canceled)
}
