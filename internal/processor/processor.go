package processor

import (
	"context"
	"sync"
	"time"

	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/config"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/coverage"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/engine"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/models"
	"github.com/sirupsen/logrus"
)

// Refresher runs one selection end to end
type Refresher interface {
	Refresh(ctx context.Context, site string, utility models.UtilityType) (*engine.View, error)
}

// CoverageSink records the coverage of each processed selection
type CoverageSink interface {
	WriteCoverage(ctx context.Context, site string, utility models.UtilityType, cov coverage.Coverage, ts time.Time) error
}

// Processor runs fetch requests on a fixed pool of workers
type Processor struct {
	refresher Refresher
	sink      CoverageSink
	config    config.ProcessorConfig
	logger    logrus.FieldLogger
	queue     chan []models.FetchRequest
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewProcessor starts the workers. sink may be nil.
func NewProcessor(refresher Refresher, sink CoverageSink, cfg config.ProcessorConfig, logger logrus.FieldLogger) *Processor {
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Processor{
		refresher: refresher,
		sink:      sink,
		config:    cfg,
		logger:    logger,
		queue:     make(chan []models.FetchRequest, cfg.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
	}

	p.wg.Add(cfg.WorkerCount)
	for i := 0; i < cfg.WorkerCount; i++ {
		go p.worker(i)
	}
	return p
}

// ProcessRequests queues a batch without blocking; a full queue drops it.
// The dashboard re-requests on the next selection change.
func (p *Processor) ProcessRequests(reqs []models.FetchRequest) error {
	batch := make([]models.FetchRequest, len(reqs))
	copy(batch, reqs)

	select {
	case p.queue <- batch:
	default:
		p.logger.WithField("requests", len(reqs)).Warn("processing queue is full, dropping fetch requests")
	}
	return nil
}

func (p *Processor) worker(id int) {
	defer p.wg.Done()

	log := p.logger.WithField("worker", id)
	for batch := range p.queue {
		for _, req := range batch {
			if p.ctx.Err() != nil {
				return
			}
			p.handle(log, req)
		}
	}
}

func (p *Processor) handle(log logrus.FieldLogger, req models.FetchRequest) {
	log = log.WithFields(logrus.Fields{"site": req.Site, "utility_type": req.Utility})

	view, err := p.refresher.Refresh(p.ctx, req.Site, req.Utility)
	if err != nil {
		log.WithError(err).Error("refresh failed")
		return
	}
	log.WithFields(logrus.Fields{
		"fetched":  view.Coverage.Fetched,
		"expected": view.Coverage.Expected,
	}).Info("selection refreshed")

	if p.sink == nil {
		return
	}
	if err := p.sink.WriteCoverage(p.ctx, req.Site, req.Utility, view.Coverage, time.Now().UTC()); err != nil {
		log.WithError(err).Warn("writing coverage failed")
	}
}

// Stop drains the queue and waits for the workers
func (p *Processor) Stop() {
	close(p.queue)
	p.wg.Wait()
	p.cancel()
}

// Abort cancels in-flight refreshes, then stops. Queued requests are dropped.
func (p *Processor) Abort() {
	p.cancel()
	p.Stop()
}
