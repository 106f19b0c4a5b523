package reports

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/claimops/claimops/internal/domain/claims"
)

const sweepPageSize = 100

// Scheduler runs the weekly report sweep on a cron schedule. Each
// customer is an isolated unit of work: one customer's failure is
// logged and the sweep moves on.
type Scheduler struct {
	cron   *cron.Cron
	svc    *Service
	claims *claims.Service
	log    zerolog.Logger
}

func NewScheduler(svc *Service, claimSvc *claims.Service, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		svc:    svc,
		claims: claimSvc,
		log:    log.With().Str("component", "report_scheduler").Logger(),
	}
}

// Start registers the sweep under the given 5-field cron spec and
// begins the schedule.
func (s *Scheduler) Start(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info().Str("spec", spec).Msg("report sweep scheduled")
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) sweep() {
	ctx := context.Background()
	started := time.Now()
	var processed, failed int

	for offset := 0; ; offset += sweepPageSize {
		customers, _, err := s.claims.ListCustomers(ctx, sweepPageSize, offset)
		if err != nil {
			s.log.Error().Err(err).Msg("list customers for report sweep")
			return
		}
		if len(customers) == 0 {
			break
		}
		for _, customer := range customers {
			if err := s.runCustomer(ctx, customer); err != nil {
				failed++
				s.log.Error().Err(err).
					Str("customer_id", customer.ID.String()).
					Msg("weekly report failed")
				continue
			}
			processed++
		}
	}

	s.log.Info().
		Int("processed", processed).
		Int("failed", failed).
		Dur("elapsed", time.Since(started)).
		Msg("report sweep finished")
}

func (s *Scheduler) runCustomer(ctx context.Context, customer *claims.Customer) error {
	payers, err := s.claims.ListPayersByCustomer(ctx, customer.ID)
	if err != nil {
		return err
	}
	_, err = s.svc.Run(ctx, customer, payers)
	return err
}
