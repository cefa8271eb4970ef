package services

import (
	"context"
	"fmt"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically activates due auctions and settles ended ones. The
// sweep itself is safe without leadership (every write is CAS-guarded);
// leadership only keeps redundant instances from doing duplicate work.
type Sweeper struct {
	cron       *cron.Cron
	settlement *SettlementProcessor
	leader     domain.LeaderElection
	instanceID string
	interval   time.Duration
	batchSize  int
	log        logger.Logger
}

func NewSweeper(
	settlement *SettlementProcessor,
	leader domain.LeaderElection,
	instanceID string,
	interval time.Duration,
	batchSize int,
	log logger.Logger,
) *Sweeper {
	return &Sweeper{
		cron:       cron.New(cron.WithSeconds()),
		settlement: settlement,
		leader:     leader,
		instanceID: instanceID,
		interval:   interval,
		batchSize:  batchSize,
		log:        log,
	}
}

func (s *Sweeper) Start(ctx context.Context) error {
	s.log.Info("Starting auction sweeper", "interval", s.interval.String())

	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		s.tick(ctx)
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

func (s *Sweeper) Stop() error {
	s.log.Info("Stopping auction sweeper")
	s.cron.Stop()
	return nil
}

func (s *Sweeper) tick(ctx context.Context) {
	isLeader, err := s.leader.IsLeader(ctx, s.instanceID)
	if err != nil {
		s.log.Error("Leadership check failed", "error", err)
		return
	}
	if !isLeader {
		became, err := s.leader.BecomeLeader(ctx, s.instanceID)
		if err != nil {
			s.log.Error("Leadership attempt failed", "error", err)
			return
		}
		if !became {
			return
		}
		s.log.Info("Became sweep leader", "instance_id", s.instanceID)
	}

	now := time.Now()

	activated, err := s.settlement.ActivateDueAuctions(ctx, now, s.batchSize)
	if err != nil {
		s.log.Error("Activation pass failed", "error", err)
	} else if activated > 0 {
		s.log.Info("Activated due auctions", "count", activated)
	}

	processed, err := s.settlement.SweepEndedAuctions(ctx, now, s.batchSize)
	if err != nil {
		s.log.Error("Settlement pass failed", "error", err)
	} else if processed > 0 {
		s.log.Info("Settled ended auctions", "count", processed)
	}
}
