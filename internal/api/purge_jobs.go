package api

import (
	"context"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xpadev-net/ott-media-sync/internal/clock"
	"github.com/xpadev-net/ott-media-sync/internal/httpapi"
	"github.com/xpadev-net/ott-media-sync/internal/ids"
	"github.com/xpadev-net/ott-media-sync/internal/log"
	"github.com/xpadev-net/ott-media-sync/internal/purge"
)

// Purge job states.
const (
	PurgeJobRunning   = "running"
	PurgeJobCompleted = "completed"
	PurgeJobFailed    = "failed"
)

// retainedPurgeJobs bounds how many finished jobs stay queryable.
const retainedPurgeJobs = 20

// PurgeJob is a bulk deletion run executed outside the request that started it.
type PurgeJob struct {
	ID         string        `json:"job_id"`
	Status     string        `json:"status"`
	Result     *purge.Result `json:"result,omitempty"`
	Error      string        `json:"error,omitempty"`
	StartedAt  string        `json:"started_at"`
	FinishedAt string        `json:"finished_at,omitempty"`
}

// purgeJobs runs at most one purge at a time. Every delete waits on the
// provider limiter, so a run can outlast any HTTP write deadline.
type purgeJobs struct {
	purger Purger
	clock  clock.Clock
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	jobs    map[string]*PurgeJob
	order   []string
	running string
	wg      sync.WaitGroup
}

func newPurgeJobs(purger Purger, clk clock.Clock) *purgeJobs {
	ctx, cancel := context.WithCancel(context.Background())
	return &purgeJobs{
		purger: purger,
		clock:  clk,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*PurgeJob),
	}
}

// start launches a job. When one is already running it returns that job and false.
func (p *purgeJobs) start() (PurgeJob, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running != "" {
		return *p.jobs[p.running], false
	}

	job := &PurgeJob{
		ID:        ids.NewPurgeJobID(),
		Status:    PurgeJobRunning,
		StartedAt: formatTime(p.clock.Now()),
	}
	p.jobs[job.ID] = job
	p.order = append(p.order, job.ID)
	p.running = job.ID
	p.evictLocked()

	p.wg.Add(1)
	go p.run(job.ID)
	return *job, true
}

func (p *purgeJobs) run(id string) {
	defer p.wg.Done()

	result, err := p.purger.DeleteAll(p.ctx)

	fields := []zap.Field{
		zap.String("job_id", id),
		zap.Int("success", result.Success),
		zap.Int("failure", result.Failure),
		zap.Int("total", result.Total),
		zap.Int("rounds", result.Rounds),
		zap.String("reason", string(result.Reason)),
	}
	logger := log.Named("purge")
	if err != nil {
		logger.Error("asset purge stopped on error", append(fields, zap.Error(err))...)
	} else {
		logger.Info("asset purge finished", fields...)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	job := p.jobs[id]
	job.Result = &result
	job.FinishedAt = formatTime(p.clock.Now())
	job.Status = PurgeJobCompleted
	if err != nil {
		job.Status = PurgeJobFailed
		job.Error = err.Error()
	}
	p.running = ""
}

// evictLocked drops the oldest finished jobs beyond the retention bound.
func (p *purgeJobs) evictLocked() {
	for len(p.order) > retainedPurgeJobs {
		oldest := p.order[0]
		if oldest == p.running {
			return
		}
		delete(p.jobs, oldest)
		p.order = p.order[1:]
	}
}

func (p *purgeJobs) get(id string) (PurgeJob, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	job, ok := p.jobs[id]
	if !ok {
		return PurgeJob{}, false
	}
	out := *job
	if job.Result != nil {
		r := *job.Result
		out.Result = &r
	}
	return out, true
}

// wait blocks until every started job has finished.
func (p *purgeJobs) wait() {
	p.wg.Wait()
}

// stop cancels running jobs and waits for them to record partial results.
func (p *purgeJobs) stop() {
	p.cancel()
	p.wg.Wait()
}

// PurgeAssets handles POST /api/v1/assets/purge
//
// The run continues in the background; poll GET /api/v1/purge-jobs/:job_id
// for the aggregated result.
func (h *Handler) PurgeAssets(c *gin.Context) {
	job, started := h.purgeJobs.start()
	if !started {
		httpapi.RespondConflict(c, httpapi.ErrCodePurgeInProgress, "Purge job "+job.ID+" is already running")
		return
	}
	log.Named("purge").Info("asset purge started", zap.String("job_id", job.ID))
	c.Header("Location", "/api/v1/purge-jobs/"+job.ID)
	httpapi.RespondAccepted(c, job)
}

// GetPurgeJob handles GET /api/v1/purge-jobs/:job_id
func (h *Handler) GetPurgeJob(c *gin.Context) {
	id := c.Param("job_id")
	if !ids.IsValidPurgeJobID(id) {
		httpapi.RespondValidationError(c, "Invalid purge job ID")
		return
	}
	job, ok := h.purgeJobs.get(id)
	if !ok {
		httpapi.RespondNotFound(c, "Purge job not found")
		return
	}
	httpapi.RespondOK(c, job)
}

// Close cancels running purge jobs and waits for them to stop.
func (h *Handler) Close() {
	h.purgeJobs.stop()
}
