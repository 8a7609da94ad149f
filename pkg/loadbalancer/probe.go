package loadbalancer

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/ballast/pkg/health"
	"github.com/cuemby/ballast/pkg/log"
)

// ProbeRunner periodically runs an active health.Checker per backend and
// feeds the result into the LoadBalancer's combined health flag
// (LoadBalancer.UpdateProbeHealth), the supplemented active-health-check
// feature this module adds. Follows a ticker-plus-stop-channel loop shape,
// generalized from one cluster-wide loop to one loop per backend so a
// slow checker on one backend never delays another's probe cadence.
type ProbeRunner struct {
	lb       *LoadBalancer
	cfg      health.Config
	checkers map[string]health.Checker

	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewProbeRunner returns a ProbeRunner for the given backend-id->Checker
// map, using cfg's Interval/Timeout/Retries for every checker.
func NewProbeRunner(lb *LoadBalancer, cfg health.Config, checkers map[string]health.Checker) *ProbeRunner {
	return &ProbeRunner{lb: lb, cfg: cfg, checkers: checkers, stopCh: make(chan struct{})}
}

// Start launches one probe loop per checker. Safe to call once; callers
// that need to restart should build a new ProbeRunner.
func (p *ProbeRunner) Start() {
	for id, checker := range p.checkers {
		p.wg.Add(1)
		go p.run(id, checker)
	}
}

// Stop signals every probe loop to exit and waits for them to return.
func (p *ProbeRunner) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

func (p *ProbeRunner) run(id string, checker health.Checker) {
	defer p.wg.Done()
	logger := log.WithComponent("health_probe")

	status := health.NewStatus()
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if status.InStartPeriod(p.cfg) {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeout)
			result := checker.Check(ctx)
			cancel()

			status.Update(result, p.cfg)
			p.lb.UpdateProbeHealth(id, status.Healthy)
			if !result.Healthy {
				logger.Debug().Str("backend", id).Str("message", result.Message).Msg("probe unhealthy")
			}
		case <-p.stopCh:
			return
		}
	}
}
