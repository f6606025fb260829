package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/carebridge/backend/internal/apperrors"
	"github.com/carebridge/backend/internal/audit"
	"github.com/carebridge/backend/internal/database"
	"github.com/carebridge/backend/internal/messaging"
	"github.com/carebridge/backend/internal/models"
)

// PostStore is the job-post repository surface the lifecycle needs.
type PostStore interface {
	Create(ctx context.Context, p *models.JobPost) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.JobPost, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.JobPost, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to string) error
}

// InstanceStore is the job-instance and assignment repository surface.
type InstanceStore interface {
	Create(ctx context.Context, tx pgx.Tx, ji *models.JobInstance) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.JobInstance, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.JobInstance, error)
	GetLiveByPostForUpdate(ctx context.Context, tx pgx.Tx, jobPostID uuid.UUID) (*models.JobInstance, error)
	GetLatestByPost(ctx context.Context, jobPostID uuid.UUID) (*models.JobInstance, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to string, at time.Time) error
	CreateAssignment(ctx context.Context, tx pgx.Tx, a *models.Assignment) error
	GetActiveAssignment(ctx context.Context, tx pgx.Tx, jobInstanceID uuid.UUID) (*models.Assignment, error)
	GetLatestAssignment(ctx context.Context, tx pgx.Tx, jobInstanceID uuid.UUID) (*models.Assignment, error)
	UpdateAssignmentStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to string) error
	HasScheduleOverlap(ctx context.Context, tx pgx.Tx, providerID uuid.UUID, start, end time.Time) (bool, error)
}

// UserStore resolves users for precondition checks.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// EventStore appends to the job timeline inside the transaction.
type EventStore interface {
	Append(ctx context.Context, tx pgx.Tx, e *models.JobEvent) error
}

// Settler is the settlement-engine surface invoked by transitions that
// move money.
type Settler interface {
	PublishHold(ctx context.Context, tx pgx.Tx, post *models.JobPost) error
	FundAcceptance(ctx context.Context, tx pgx.Tx, post *models.JobPost, jobInstanceID uuid.UUID) (*models.Wallet, error)
	CompletionSplit(ctx context.Context, tx pgx.Tx, post *models.JobPost, jobInstanceID, providerID uuid.UUID) error
	CancellationRefund(ctx context.Context, tx pgx.Tx, post *models.JobPost, instance *models.JobInstance) error
	ExpiryRelease(ctx context.Context, tx pgx.Tx, post *models.JobPost) error
}

// LifecycleService is the job lifecycle controller: it validates
// transitions, enforces authorization and physical preconditions, and
// orchestrates settlement, timeline and audit inside one unit of work per
// transition.
type LifecycleService struct {
	db         database.TxRunner
	posts      PostStore
	instances  InstanceStore
	users      UserStore
	events     EventStore
	settlement Settler
	validator  *DetailsValidator
	auditor    audit.Recorder
	poster     messaging.Poster
	logger     *slog.Logger
	now        func() time.Time
}

func NewLifecycleService(
	db database.TxRunner,
	posts PostStore,
	instances InstanceStore,
	users UserStore,
	events EventStore,
	settlement Settler,
	validator *DetailsValidator,
	auditor audit.Recorder,
	poster messaging.Poster,
	logger *slog.Logger,
) *LifecycleService {
	return &LifecycleService{
		db:         db,
		posts:      posts,
		instances:  instances,
		users:      users,
		events:     events,
		settlement: settlement,
		validator:  validator,
		auditor:    auditor,
		poster:     poster,
		logger:     logger,
		now:        time.Now,
	}
}

// CreateDraftInput carries everything a requester supplies for a new post.
type CreateDraftInput struct {
	Title              string
	Category           string
	Details            []byte
	ScheduledStart     time.Time
	ScheduledEnd       time.Time
	Address            string
	Latitude           float64
	Longitude          float64
	GeofenceRadiusM    int
	HourlyRateCents    int64
	TotalHours         int
	PlatformFeePercent int
	RiskLevel          string
	RequiredTrustLevel int
	RequiredCerts      []string
	ReservedProviderID *uuid.UUID
}

func (in *CreateDraftInput) validate() error {
	switch {
	case in.Title == "":
		return apperrors.Validation("title is required")
	case in.HourlyRateCents <= 0:
		return apperrors.Validation("hourly_rate_cents must be > 0")
	case in.TotalHours <= 0:
		return apperrors.Validation("total_hours must be > 0")
	case in.PlatformFeePercent < 0 || in.PlatformFeePercent > 100:
		return apperrors.Validation("platform_fee_percent must be between 0 and 100")
	case !in.ScheduledEnd.After(in.ScheduledStart):
		return apperrors.Validation("scheduled_end must be after scheduled_start")
	case in.Latitude < -90 || in.Latitude > 90 || in.Longitude < -180 || in.Longitude > 180:
		return apperrors.Validation("coordinates out of range")
	}
	switch in.RiskLevel {
	case models.RiskLevelLow, models.RiskLevelMedium, models.RiskLevelHigh:
	default:
		return apperrors.Validation("risk_level must be low, medium or high")
	}
	return nil
}

// CreateDraft creates a new post in draft for the calling requester.
func (s *LifecycleService) CreateDraft(ctx context.Context, actor models.Actor, in CreateDraftInput) (*models.JobPost, error) {
	if actor.Role != models.RoleRequester && !actor.IsAdmin() {
		return nil, apperrors.Unauthorized("only requesters create job posts")
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	if s.validator != nil && len(in.Details) > 0 {
		if err := s.validator.ValidateDetails(in.Category, in.Details); err != nil {
			return nil, err
		}
	}

	post := &models.JobPost{
		ID:                 uuid.New(),
		RequesterID:        actor.ID,
		Title:              in.Title,
		Category:           in.Category,
		Details:            in.Details,
		Status:             models.JobStatusDraft,
		ScheduledStart:     in.ScheduledStart,
		ScheduledEnd:       in.ScheduledEnd,
		Address:            in.Address,
		Latitude:           in.Latitude,
		Longitude:          in.Longitude,
		GeofenceRadiusM:    in.GeofenceRadiusM,
		HourlyRateCents:    in.HourlyRateCents,
		TotalHours:         in.TotalHours,
		PlatformFeePercent: in.PlatformFeePercent,
		RiskLevel:          in.RiskLevel,
		RequiredTrustLevel: in.RequiredTrustLevel,
		RequiredCerts:      in.RequiredCerts,
		ReservedProviderID: in.ReservedProviderID,
	}
	post.ComputeAmounts()

	if err := s.posts.Create(ctx, post); err != nil {
		return nil, err
	}
	s.auditor.Record(ctx, audit.Entry("job_post", post.ID, "create_draft", "", models.JobStatusDraft, actor.ID, nil))
	return post, nil
}

// Publish takes a draft live: it verifies ownership, places the pre-escrow
// hold for the full cost on the requester's wallet, and flips the post to
// posted.
func (s *LifecycleService) Publish(ctx context.Context, jobPostID uuid.UUID, actor models.Actor) (*models.JobPost, error) {
	var post *models.JobPost
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		post, err = s.posts.GetForUpdate(ctx, tx, jobPostID)
		if err != nil {
			return err
		}
		if post.RequesterID != actor.ID {
			return apperrors.Unauthorized("actor %s does not own job post %s", actor.ID, jobPostID)
		}
		if post.Status != models.JobStatusDraft {
			return apperrors.InvalidTransition(jobPostID, post.Status, models.JobStatusPosted)
		}
		if post.RiskLevel == models.RiskLevelHigh {
			requester, err := s.users.GetByID(ctx, post.RequesterID)
			if err != nil {
				return err
			}
			if requester.TrustLevel < models.TrustLevelBasic {
				return apperrors.PolicyViolation(apperrors.ReasonTrustLevel,
					"high-risk posts require a verified requester")
			}
		}
		if err := s.settlement.PublishHold(ctx, tx, post); err != nil {
			return err
		}
		if err := s.posts.UpdateStatus(ctx, tx, post.ID, models.JobStatusDraft, models.JobStatusPosted); err != nil {
			return err
		}
		post.Status = models.JobStatusPosted
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, audit.Entry("job_post", post.ID, "publish",
		models.JobStatusDraft, models.JobStatusPosted, actor.ID,
		map[string]any{"escrow_total_cents": post.EscrowTotalCents()}))
	return post, nil
}

// Accept assigns a posted job to the calling provider: it checks trust,
// certification, reservation and schedule preconditions, creates the
// instance, assignment and escrow wallet, and funds the escrow — all in
// one transaction.
func (s *LifecycleService) Accept(ctx context.Context, jobPostID uuid.UUID, actor models.Actor) (*models.JobInstance, error) {
	var (
		post     *models.JobPost
		instance *models.JobInstance
	)
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		post, err = s.posts.GetForUpdate(ctx, tx, jobPostID)
		if err != nil {
			return err
		}
		if post.Status != models.JobStatusPosted {
			return apperrors.InvalidTransition(jobPostID, post.Status, models.JobStatusAssigned)
		}

		provider, err := s.users.GetByID(ctx, actor.ID)
		if err != nil {
			return err
		}
		if provider.Role != models.RoleProvider {
			return apperrors.Unauthorized("only providers accept jobs")
		}
		if post.ReservedProviderID != nil && *post.ReservedProviderID != provider.ID {
			return apperrors.PolicyViolation(apperrors.ReasonReservedProvider,
				"job post %s is reserved for another provider", jobPostID)
		}
		if provider.TrustLevel < post.RequiredTrustLevel {
			return apperrors.PolicyViolation(apperrors.ReasonTrustLevel,
				"provider trust level %d below required %d", provider.TrustLevel, post.RequiredTrustLevel)
		}
		if !provider.HasCertifications(post.RequiredCerts) {
			return apperrors.PolicyViolation(apperrors.ReasonCertification,
				"provider lacks a required certification")
		}
		overlap, err := s.instances.HasScheduleOverlap(ctx, tx, provider.ID, post.ScheduledStart, post.ScheduledEnd)
		if err != nil {
			return err
		}
		if overlap {
			return apperrors.PolicyViolation(apperrors.ReasonScheduleConflict,
				"provider already has an overlapping assignment")
		}

		now := s.now()
		instance = &models.JobInstance{
			ID:         uuid.New(),
			JobPostID:  post.ID,
			Status:     models.JobStatusAssigned,
			AssignedAt: &now,
		}
		if err := s.instances.Create(ctx, tx, instance); err != nil {
			return err
		}
		if err := s.instances.CreateAssignment(ctx, tx, &models.Assignment{
			ID:            uuid.New(),
			JobInstanceID: instance.ID,
			ProviderID:    provider.ID,
			Status:        models.AssignmentActive,
		}); err != nil {
			return err
		}
		if _, err := s.settlement.FundAcceptance(ctx, tx, post, instance.ID); err != nil {
			return err
		}
		return s.posts.UpdateStatus(ctx, tx, post.ID, models.JobStatusPosted, models.JobStatusAssigned)
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, audit.Entry("job_instance", instance.ID, "accept",
		models.JobStatusPosted, models.JobStatusAssigned, actor.ID,
		map[string]any{"job_post_id": post.ID}))
	s.poster.PostSystemMessage(ctx, instance.ID, "A care provider accepted this job.")
	return instance, nil
}

// CheckIn starts the work: the active assignee reports present, optionally
// proving their location with a GPS sample validated against the job's
// geofence.
func (s *LifecycleService) CheckIn(ctx context.Context, jobInstanceID uuid.UUID, actor models.Actor, sample *models.GPSSample) (*models.JobInstance, error) {
	var instance *models.JobInstance
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		peek, err := s.instances.GetByID(ctx, jobInstanceID)
		if err != nil {
			return err
		}
		// Post row before instance row. Every transition on one job takes
		// the two rows in this order, so a concurrent cancel cannot
		// deadlock against a check-in.
		post, err := s.posts.GetForUpdate(ctx, tx, peek.JobPostID)
		if err != nil {
			return err
		}
		instance, err = s.instances.GetForUpdate(ctx, tx, jobInstanceID)
		if err != nil {
			return err
		}
		if instance.Status != models.JobStatusAssigned {
			return apperrors.InvalidTransition(jobInstanceID, instance.Status, models.JobStatusInProgress)
		}
		assignment, err := s.instances.GetActiveAssignment(ctx, tx, jobInstanceID)
		if err != nil {
			return err
		}
		if assignment.ProviderID != actor.ID {
			return apperrors.Unauthorized("actor %s is not the active assignee of job %s", actor.ID, jobInstanceID)
		}
		if sample != nil {
			if err := validateGeofence(post, sample); err != nil {
				return err
			}
		}

		now := s.now()
		if err := s.instances.UpdateStatus(ctx, tx, jobInstanceID, models.JobStatusAssigned, models.JobStatusInProgress, now); err != nil {
			return err
		}
		if err := s.posts.UpdateStatus(ctx, tx, post.ID, models.JobStatusAssigned, models.JobStatusInProgress); err != nil {
			return err
		}
		instance.Status = models.JobStatusInProgress
		instance.StartedAt = &now
		return s.appendCheckpoint(ctx, tx, jobInstanceID, actor.ID, "check_in", sample)
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, audit.Entry("job_instance", instance.ID, "check_in",
		models.JobStatusAssigned, models.JobStatusInProgress, actor.ID, sample))
	return instance, nil
}

// CheckOut completes the work and triggers the completion split. Calling it
// on an already-completed job returns the current state instead of erroring.
func (s *LifecycleService) CheckOut(ctx context.Context, jobInstanceID uuid.UUID, actor models.Actor, sample *models.GPSSample) (*models.JobInstance, error) {
	var (
		instance *models.JobInstance
		replayed bool
	)
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		peek, err := s.instances.GetByID(ctx, jobInstanceID)
		if err != nil {
			return err
		}
		// Post row before instance row, same order as every other
		// transition.
		post, err := s.posts.GetForUpdate(ctx, tx, peek.JobPostID)
		if err != nil {
			return err
		}
		instance, err = s.instances.GetForUpdate(ctx, tx, jobInstanceID)
		if err != nil {
			return err
		}
		if instance.Status == models.JobStatusCompleted {
			// The replay no-op is still assignee-only; strangers get the
			// same answer as on the first call.
			assignment, err := s.instances.GetLatestAssignment(ctx, tx, jobInstanceID)
			if err != nil {
				return err
			}
			if assignment.ProviderID != actor.ID && !actor.IsAdmin() {
				return apperrors.Unauthorized("actor %s is not the assignee of job %s", actor.ID, jobInstanceID)
			}
			replayed = true
			return nil
		}
		if instance.Status != models.JobStatusInProgress {
			return apperrors.InvalidTransition(jobInstanceID, instance.Status, models.JobStatusCompleted)
		}
		assignment, err := s.instances.GetActiveAssignment(ctx, tx, jobInstanceID)
		if err != nil {
			return err
		}
		if assignment.ProviderID != actor.ID {
			return apperrors.Unauthorized("actor %s is not the active assignee of job %s", actor.ID, jobInstanceID)
		}
		if sample != nil {
			if err := validateGeofence(post, sample); err != nil {
				return err
			}
		}

		now := s.now()
		if err := s.instances.UpdateStatus(ctx, tx, jobInstanceID, models.JobStatusInProgress, models.JobStatusCompleted, now); err != nil {
			return err
		}
		if err := s.posts.UpdateStatus(ctx, tx, post.ID, models.JobStatusInProgress, models.JobStatusCompleted); err != nil {
			return err
		}
		if err := s.instances.UpdateAssignmentStatus(ctx, tx, assignment.ID, models.AssignmentActive, models.AssignmentCompleted); err != nil {
			return err
		}
		if err := s.settlement.CompletionSplit(ctx, tx, post, jobInstanceID, assignment.ProviderID); err != nil {
			return err
		}
		instance.Status = models.JobStatusCompleted
		instance.CompletedAt = &now
		return s.appendCheckpoint(ctx, tx, jobInstanceID, actor.ID, "check_out", sample)
	})
	if err != nil {
		return nil, err
	}
	if replayed {
		return instance, nil
	}

	s.auditor.Record(ctx, audit.Entry("job_instance", instance.ID, "check_out",
		models.JobStatusInProgress, models.JobStatusCompleted, actor.ID, sample))
	s.poster.PostSystemMessage(ctx, instance.ID, "The job was completed and payment released.")
	return instance, nil
}

// Cancel aborts a job from posted, assigned or in_progress and refunds any
// held or escrowed funds to the requester. Repeating a cancel on an
// already-cancelled job is a no-op.
func (s *LifecycleService) Cancel(ctx context.Context, jobPostID uuid.UUID, actor models.Actor, reason string) (*models.JobPost, error) {
	var (
		post     *models.JobPost
		instance *models.JobInstance
		replayed bool
		from     string
	)
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		post, err = s.posts.GetForUpdate(ctx, tx, jobPostID)
		if err != nil {
			return err
		}
		from = post.Status
		if post.Status == models.JobStatusCancelled {
			if err := s.authorizeCancelReplay(ctx, tx, post, actor); err != nil {
				return err
			}
			replayed = true
			return nil
		}
		if !models.CanTransition(post.Status, models.JobStatusCancelled) {
			return apperrors.InvalidTransition(jobPostID, post.Status, models.JobStatusCancelled)
		}

		instance, err = s.instances.GetLiveByPostForUpdate(ctx, tx, jobPostID)
		if err != nil && !apperrors.IsNotFound(err) {
			return err
		}

		var assignment *models.Assignment
		if instance != nil {
			assignment, err = s.instances.GetActiveAssignment(ctx, tx, instance.ID)
			if err != nil && !apperrors.IsNotFound(err) {
				return err
			}
		}
		authorized := actor.ID == post.RequesterID || actor.IsAdmin() ||
			(assignment != nil && assignment.ProviderID == actor.ID)
		if !authorized {
			return apperrors.Unauthorized("actor %s may not cancel job post %s", actor.ID, jobPostID)
		}

		if err := s.settlement.CancellationRefund(ctx, tx, post, instance); err != nil {
			return err
		}

		now := s.now()
		if instance != nil {
			if err := s.instances.UpdateStatus(ctx, tx, instance.ID, instance.Status, models.JobStatusCancelled, now); err != nil {
				return err
			}
			instance.Status = models.JobStatusCancelled
			instance.CancelledAt = &now
		}
		if assignment != nil {
			if err := s.instances.UpdateAssignmentStatus(ctx, tx, assignment.ID, models.AssignmentActive, models.AssignmentCancelled); err != nil {
				return err
			}
		}
		if err := s.posts.UpdateStatus(ctx, tx, post.ID, post.Status, models.JobStatusCancelled); err != nil {
			return err
		}
		post.Status = models.JobStatusCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}
	if replayed {
		return post, nil
	}

	s.auditor.Record(ctx, audit.Entry("job_post", post.ID, "cancel",
		from, models.JobStatusCancelled, actor.ID, map[string]string{"reason": reason}))
	if instance != nil {
		s.poster.PostSystemMessage(ctx, instance.ID, "The job was cancelled: "+reason)
	}
	return post, nil
}

// authorizeCancelReplay applies the cancel authorization rule to the
// replay no-op: the requester, an admin, or the provider on the job's most
// recent assignment. Anyone else is told nothing about the post.
func (s *LifecycleService) authorizeCancelReplay(ctx context.Context, tx pgx.Tx, post *models.JobPost, actor models.Actor) error {
	if actor.ID == post.RequesterID || actor.IsAdmin() {
		return nil
	}
	instance, err := s.instances.GetLatestByPost(ctx, post.ID)
	if err == nil {
		assignment, aerr := s.instances.GetLatestAssignment(ctx, tx, instance.ID)
		if aerr == nil && assignment.ProviderID == actor.ID {
			return nil
		}
		if aerr != nil && !apperrors.IsNotFound(aerr) {
			return aerr
		}
	} else if !apperrors.IsNotFound(err) {
		return err
	}
	return apperrors.Unauthorized("actor %s may not cancel job post %s", actor.ID, post.ID)
}

// Expire flips a stale posted job to expired and releases the requester's
// hold. Invoked by the expiry sweep worker; a job that is no longer posted
// is left alone.
func (s *LifecycleService) Expire(ctx context.Context, jobPostID uuid.UUID) error {
	var expired bool
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		post, err := s.posts.GetForUpdate(ctx, tx, jobPostID)
		if err != nil {
			return err
		}
		if post.Status != models.JobStatusPosted {
			return nil
		}
		if err := s.settlement.ExpiryRelease(ctx, tx, post); err != nil {
			return err
		}
		if err := s.posts.UpdateStatus(ctx, tx, post.ID, models.JobStatusPosted, models.JobStatusExpired); err != nil {
			return err
		}
		expired = true
		return nil
	})
	if err != nil {
		return err
	}
	if expired {
		s.logger.Info("job post expired", "job_post_id", jobPostID)
		s.auditor.Record(ctx, audit.Entry("job_post", jobPostID, "expire",
			models.JobStatusPosted, models.JobStatusExpired, uuid.Nil, nil))
	}
	return nil
}

func (s *LifecycleService) appendCheckpoint(ctx context.Context, tx pgx.Tx, jobInstanceID, actorID uuid.UUID, phase string, sample *models.GPSSample) error {
	payload := map[string]any{"phase": phase}
	if sample != nil {
		payload["sample"] = sample
	}
	e := &models.JobEvent{
		JobInstanceID: jobInstanceID,
		EventType:     models.EventGPSCheckpoint,
		ActorID:       &actorID,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	e.Payload = raw
	return s.events.Append(ctx, tx, e)
}
