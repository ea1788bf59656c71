package service

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/itsm-core/incident-engine/internal/config"
	"github.com/itsm-core/incident-engine/internal/domain"
	"github.com/itsm-core/incident-engine/internal/repository"
	apperrors "github.com/itsm-core/incident-engine/pkg/util/errorutil"
)

const (
	analyticsWindow        = 30 * 24 * time.Hour
	topFailingStepsLimit   = 5
	recentExceptionsLimit  = 6
	analyticsCacheKeyPrefx = "exceptions:"
)

// StepFailureCount counts failures of a step name across workflows.
type StepFailureCount struct {
	StepName string `json:"stepName"`
	Count    int    `json:"count"`
}

// WorkflowException is a failed or cancelled workflow with its best-effort reason.
type WorkflowException struct {
	WorkflowID  string                `json:"workflowId"`
	Name        string                `json:"name"`
	Status      domain.WorkflowStatus `json:"status"`
	FailedSteps []string              `json:"failedSteps"`
	Reason      string                `json:"reason,omitempty"`
	UpdatedAt   time.Time             `json:"updatedAt"`
}

// ExceptionSummary aggregates workflow failures, retries and rollbacks.
type ExceptionSummary struct {
	Since                time.Time           `json:"since"`
	TotalWorkflows       int                 `json:"totalWorkflows"`
	FailedWorkflows      int                 `json:"failedWorkflows"`
	CancelledWorkflows   int                 `json:"cancelledWorkflows"`
	ExecutedSteps        int                 `json:"executedSteps"`
	FailedSteps          int                 `json:"failedSteps"`
	SkippedSteps         int                 `json:"skippedSteps"`
	StepFailureRate      float64             `json:"stepFailureRate"`
	RetrySignalWorkflows int                 `json:"retrySignalWorkflows"`
	RetrySignalRate      float64             `json:"retrySignalRate"`
	RollbackWorkflows    int                 `json:"rollbackWorkflows"`
	TopFailingSteps      []StepFailureCount  `json:"topFailingSteps"`
	RecentExceptions     []WorkflowException `json:"recentExceptions"`
}

// AnalyticsService serves the exception summary. Results are cached per org and
// concurrent requests for the same org share one computation.
type AnalyticsService struct {
	workflows repository.WorkflowRepository
	cache     *cache.Cache
	group     singleflight.Group
	logger    *zap.Logger
	now       Clock
}

// AnalyticsDependencies bundles collaborators for the analytics service.
type AnalyticsDependencies struct {
	Store  repository.Store
	Logger *zap.Logger
	Clock  Clock
}

// NewAnalyticsService constructs the service.
func NewAnalyticsService(cfg config.Config, deps AnalyticsDependencies) *AnalyticsService {
	now := deps.Clock
	if now == nil {
		now = systemClock
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var c *cache.Cache
	if ttl := cfg.Analytics.CacheTTL(); ttl > 0 {
		c = cache.New(ttl, 2*ttl)
	}
	return &AnalyticsService{
		workflows: deps.Store.Workflows(),
		cache:     c,
		logger:    logger,
		now:       now,
	}
}

// ExceptionSummary reports on workflows created in the trailing 30 days.
func (s *AnalyticsService) ExceptionSummary(ctx context.Context, actor Actor) (*ExceptionSummary, error) {
	key := analyticsCacheKeyPrefx + actor.OrgID
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			return cached.(*ExceptionSummary), nil
		}
	}

	v, err, shared := s.group.Do(key, func() (any, error) {
		now := s.now()
		since := now.Add(-analyticsWindow)
		workflows, err := s.workflows.ListCreatedSince(ctx, actor.OrgID, since)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		summary := summarizeExceptions(workflows, since)
		if s.cache != nil {
			s.cache.Set(key, summary, cache.DefaultExpiration)
		}
		return summary, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug("exception summary shared", zap.String("org_id", actor.OrgID))
	}
	return v.(*ExceptionSummary), nil
}

func summarizeExceptions(workflows []domain.Workflow, since time.Time) *ExceptionSummary {
	summary := &ExceptionSummary{
		Since:            since,
		TotalWorkflows:   len(workflows),
		TopFailingSteps:  []StepFailureCount{},
		RecentExceptions: []WorkflowException{},
	}
	failuresByName := map[string]int{}
	var exceptions []WorkflowException

	for i := range workflows {
		wf := &workflows[i]
		retried := wf.Context.Retry.Present()
		var failedNames []string

		for _, step := range wf.Steps {
			if step.Status != domain.StepStatusPending {
				summary.ExecutedSteps++
			}
			switch step.Status {
			case domain.StepStatusFailed:
				summary.FailedSteps++
				name := step.Name
				if name == "" {
					name = step.ID
				}
				failuresByName[name]++
				failedNames = append(failedNames, name)
			case domain.StepStatusSkipped:
				summary.SkippedSteps++
			}
			if !retried && domain.ParseRetryMarkers(step.Output).Present() {
				retried = true
			}
		}

		if retried {
			summary.RetrySignalWorkflows++
		}
		if wf.Context.RolledBack() {
			summary.RollbackWorkflows++
		}

		switch wf.Status {
		case domain.WorkflowStatusFailed:
			summary.FailedWorkflows++
		case domain.WorkflowStatusCancelled:
			summary.CancelledWorkflows++
		default:
			continue
		}
		reason := wf.Context.CancellationReason
		if reason == "" {
			reason = wf.Context.RollbackReason
		}
		if failedNames == nil {
			failedNames = []string{}
		}
		exceptions = append(exceptions, WorkflowException{
			WorkflowID:  wf.ID,
			Name:        wf.Name,
			Status:      wf.Status,
			FailedSteps: failedNames,
			Reason:      reason,
			UpdatedAt:   wf.UpdatedAt,
		})
	}

	summary.StepFailureRate = percentage(summary.FailedSteps, summary.ExecutedSteps)
	summary.RetrySignalRate = percentage(summary.RetrySignalWorkflows, summary.TotalWorkflows)

	for name, count := range failuresByName {
		summary.TopFailingSteps = append(summary.TopFailingSteps, StepFailureCount{StepName: name, Count: count})
	}
	sort.Slice(summary.TopFailingSteps, func(i, j int) bool {
		a, b := summary.TopFailingSteps[i], summary.TopFailingSteps[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.StepName < b.StepName
	})
	if len(summary.TopFailingSteps) > topFailingStepsLimit {
		summary.TopFailingSteps = summary.TopFailingSteps[:topFailingStepsLimit]
	}

	sort.SliceStable(exceptions, func(i, j int) bool {
		return exceptions[i].UpdatedAt.After(exceptions[j].UpdatedAt)
	})
	if len(exceptions) > recentExceptionsLimit {
		exceptions = exceptions[:recentExceptionsLimit]
	}
	summary.RecentExceptions = append(summary.RecentExceptions, exceptions...)
	return summary
}

func percentage(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*1000) / 10
}
