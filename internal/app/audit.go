package app

import (
	"context"
	"strings"
	"time"

	"interbot/internal/autoclaim"
	"interbot/pkg/logx"

	"github.com/robfig/cron/v3"
)

// auditJob periodically compares persisted auto-claim flags against running
// loops and logs any disagreement. Report-only: repairs are up to the
// operator (or the user via stop/start).
type auditJob struct {
	c   *cron.Cron
	svc *autoclaim.Service
	log logx.Logger
}

func newAuditJob(spec string, svc *autoclaim.Service, log logx.Logger) (*auditJob, error) {
	j := &auditJob{svc: svc, log: log}

	spec = strings.TrimSpace(spec)
	if spec == "" {
		return j, nil
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, j.run); err != nil {
		return nil, err
	}
	j.c = c
	return j, nil
}

func (j *auditJob) Start() {
	if j.c != nil {
		j.c.Start()
	}
}

func (j *auditJob) Stop() {
	if j.c != nil {
		<-j.c.Stop().Done()
	}
}

func (j *auditJob) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ids, err := j.svc.AuditDesync(ctx)
	if err != nil {
		j.log.Warn("desync audit failed", logx.Err(err))
		return
	}
	if len(ids) == 0 {
		j.log.Debug("desync audit clean")
		return
	}
	j.log.Warn("desync audit found mismatches",
		logx.Int("count", len(ids)),
		logx.Any("user_ids", ids))
}
