package broker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/trade-manager/trade-engine/internal/logger"
	"github.com/trade-manager/trade-engine/pkg/errors"
)

type BrokerSyncTestSuite struct {
	suite.Suite
	sync *BrokerSync
}

func TestBrokerSyncTestSuite(t *testing.T) {
	suite.Run(t, new(BrokerSyncTestSuite))
}

func (s *BrokerSyncTestSuite) SetupTest() {
	s.sync = NewBrokerSync(logger.NewNopLogger())
}

func (s *BrokerSyncTestSuite) TestAwaitReturnsImmediatelyWhenIdle() {
	s.Require().NoError(s.sync.AwaitAllComplete(context.Background()))
}

func (s *BrokerSyncTestSuite) TestAwaitAllComplete() {
	const n = 8

	for i := 0; i < n; i++ {
		s.sync.StrategyStarted("ts")
	}

	s.Equal(int64(n), s.sync.Running())

	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for j := 0; j < 10; j++ {
				s.sync.RuleComplete("ts")
			}

			s.sync.StrategyComplete("ts")
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.Require().NoError(s.sync.AwaitAllComplete(ctx))
	wg.Wait()

	s.Equal(int64(0), s.sync.Running())
	s.Equal(int64(n*10), s.sync.RuleCompleteCount())
}

func (s *BrokerSyncTestSuite) TestAwaitHonorsContextCancellation() {
	s.sync.StrategyStarted("ts")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.sync.AwaitAllComplete(ctx)
	s.Require().ErrorIs(err, context.DeadlineExceeded)
}

func (s *BrokerSyncTestSuite) TestErrorDoesNotSuppressCompletion() {
	s.sync.StrategyStarted("ts")

	ruleErr := errors.New(errors.ErrCodeStrategyRule, "rule blew up")
	s.sync.StrategyError("ts", ruleErr)
	s.sync.StrategyComplete("ts")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := s.sync.AwaitAllComplete(ctx)
	s.Require().Error(err)
	s.Equal(errors.ErrCodeStrategyRule, errors.GetCode(err))
	s.Equal(int64(1), s.sync.ErrorCount())
}

func (s *BrokerSyncTestSuite) TestFirstErrorWins() {
	s.sync.StrategyError("a", errors.New(errors.ErrCodeStrategyRule, "first"))
	s.sync.StrategyError("b", errors.New(errors.ErrCodeStrategyRule, "second"))

	s.Equal("[400] first", s.sync.FirstError().Error())
}

func (s *BrokerSyncTestSuite) TestReusableAcrossRounds() {
	s.sync.StrategyStarted("round-1")
	s.sync.StrategyComplete("round-1")

	s.Require().NoError(s.sync.AwaitAllComplete(context.Background()))

	s.sync.StrategyStarted("round-2")
	go s.sync.StrategyComplete("round-2")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	s.Require().NoError(s.sync.AwaitAllComplete(ctx))
}
