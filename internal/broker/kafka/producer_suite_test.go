package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/BearBump/FreightBox/internal/broker/messages"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type writerMock struct {
	mock.Mock
}

func (m *writerMock) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

type ProducerSuite struct {
	suite.Suite
	wm *writerMock
	p  *Producer
}

func (s *ProducerSuite) SetupTest() {
	s.wm = &writerMock{}
	s.p = newProducerWithWriter(s.wm)
}

func (s *ProducerSuite) TestNewProducer_HashBalancer() {
	p := NewProducer([]string{"localhost:0"})
	w, ok := p.w.(*kafka.Writer)
	s.Require().True(ok)
	_, isHash := w.Balancer.(*kafka.Hash)
	s.Require().True(isHash)
}

func (s *ProducerSuite) TestPublish_NotificationKeyedByUser() {
	user, route := uuid.New(), uuid.New()
	payload, err := json.Marshal(messages.NotificationCreated{
		NotificationID: uuid.New(),
		UserID:         user,
		Type:           "route_expired",
		Title:          "Route expired",
		RouteID:        &route,
		CreatedAt:      time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
	})
	s.Require().NoError(err)

	s.wm.
		On("WriteMessages", mock.Anything, mock.MatchedBy(func(msgs []kafka.Message) bool {
			if len(msgs) != 1 || msgs[0].Topic != "freight.notifications" || string(msgs[0].Key) != user.String() {
				return false
			}
			var got messages.NotificationCreated
			return json.Unmarshal(msgs[0].Value, &got) == nil && got.Type == "route_expired" && *got.RouteID == route
		})).
		Return(nil).
		Once()

	s.Require().NoError(s.p.Publish(context.Background(), "freight.notifications", []byte(user.String()), payload))
	s.wm.AssertExpectations(s.T())
}

func (s *ProducerSuite) TestPublish_ErrorWrapped() {
	want := errors.New("leader not available")
	s.wm.On("WriteMessages", mock.Anything, mock.Anything).Return(want).Once()

	err := s.p.Publish(context.Background(), "freight.notifications", []byte("k"), []byte("{}"))
	s.Require().ErrorIs(err, want)
	s.Require().Contains(err.Error(), "kafka publish")
	s.wm.AssertExpectations(s.T())
}

func TestProducerSuite(t *testing.T) {
	suite.Run(t, new(ProducerSuite))
}
