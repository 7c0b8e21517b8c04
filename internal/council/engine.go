// Package council runs the three-stage deliberation protocol: every member
// answers independently, every member ranks the anonymized answers, and a
// chairman synthesizes the result. In code mode each member works in its
// own workspace and the winning diff can be merged into the shared tree.
package council

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/council/internal/errors"
	"github.com/Iron-Ham/council/internal/event"
	"github.com/Iron-Ham/council/internal/invoker"
	"github.com/Iron-Ham/council/internal/logging"
	"github.com/Iron-Ham/council/internal/merge"
	"github.com/Iron-Ham/council/internal/ranking"
	"github.com/Iron-Ham/council/internal/record"
	"github.com/Iron-Ham/council/internal/workspace"
)

// Stage names used in requests, events, logs and errors.
const (
	StageRespond    = "stage1"
	StageReview     = "stage2"
	StageSynthesize = "stage3"
	StageTitle      = "title"
)

// titleTimeout bounds the optional title generation call.
const titleTimeout = 30 * time.Second

// Workspaces is the slice of workspace.Manager the engine needs.
type Workspaces interface {
	workspace.Lifecycle
	ValidateBaseline(ctx context.Context) (*workspace.Baseline, error)
	Diff(ctx context.Context, ws *workspace.Workspace) (*workspace.Patch, error)
	RepoDir() string
}

var _ Workspaces = (*workspace.Manager)(nil)

// Merger applies the winning proposal. merge.Coordinator implements it.
type Merger interface {
	Merge(ctx context.Context, sessionID string, rec *record.SessionRecord, opts merge.Options) (*merge.Result, error)
}

var _ Merger = (*merge.Coordinator)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithStore persists finished sessions and enables ContinueSession.
func WithStore(s record.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithWorkspaces enables code mode.
func WithWorkspaces(w Workspaces) Option {
	return func(e *Engine) { e.workspaces = w }
}

// WithMerger enables merge requests.
func WithMerger(m Merger) Option {
	return func(e *Engine) { e.merger = m }
}

// WithPublisher sets where progress events go.
func WithPublisher(p event.Publisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.bus = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTitleModel names the model that titles new conversations. Without
// one the title is the truncated query.
func WithTitleModel(model string) Option {
	return func(e *Engine) { e.titleModel = model }
}

// WithHistoryRounds bounds how many earlier rounds a follow-up replays.
// Zero or less replays the whole chain.
func WithHistoryRounds(n int) Option {
	return func(e *Engine) { e.historyRounds = n }
}

// WithSessionTimeout bounds a whole session. Zero disables it.
func WithSessionTimeout(d time.Duration) Option {
	return func(e *Engine) { e.sessionTimeout = d }
}

// WithChairmanTimeout bounds the stage 3 call. Zero uses the invoker default.
func WithChairmanTimeout(d time.Duration) Option {
	return func(e *Engine) { e.chairmanTimeout = d }
}

// WithRepoLock toggles the one-session-per-repository lock in code mode
// (default on).
func WithRepoLock(enabled bool) Option {
	return func(e *Engine) { e.repoLock = enabled }
}

// Engine runs council sessions. An Engine holds no per-session state and
// may run sessions for different repositories concurrently.
type Engine struct {
	invoker    invoker.Invoker
	store      record.Store
	workspaces Workspaces
	merger     Merger
	bus        event.Publisher
	logger     *logging.Logger

	titleModel      string
	historyRounds   int
	sessionTimeout  time.Duration
	chairmanTimeout time.Duration
	repoLock        bool
}

// New creates an Engine.
func New(inv invoker.Invoker, opts ...Option) *Engine {
	e := &Engine{
		invoker:       inv,
		bus:           nopPublisher{},
		logger:        logging.NopLogger(),
		historyRounds: 3,
		repoLock:      true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type nopPublisher struct{}

func (nopPublisher) Publish(event.Event) {}

// session is the per-run state.
type session struct {
	id      string
	req     SessionRequest
	parent  *record.SessionRecord
	history []*record.SessionRecord
	logger  *logging.Logger
	started time.Time

	mu     sync.Mutex
	phase  Phase
	pool   *workspace.Pool
	spaces map[string]*workspace.Workspace
}

// RunSession runs one deliberation. It returns a complete record, or a
// typed error when validation fails, no member answers, the chairman
// fails, or the session times out. When a merge was requested the record
// is returned even if the merge fails; the error then describes the merge.
func (e *Engine) RunSession(ctx context.Context, req SessionRequest) (*record.SessionRecord, error) {
	return e.run(ctx, req, nil, nil)
}

// ContinueSession runs a follow-up round on a stored session. The roster,
// chairman and mode are taken from the parent; prior rounds are replayed
// as context. The new record links to the parent, which is not modified.
func (e *Engine) ContinueSession(ctx context.Context, parentID uint64, query string, mergeOpts *merge.Options) (*record.SessionRecord, error) {
	if e.store == nil {
		return nil, errors.NewValidationError("continuing a session requires a record store")
	}
	parent, err := e.store.Get(ctx, parentID)
	if err != nil {
		return nil, err
	}
	history, err := record.History(ctx, e.store, parentID, e.historyRounds)
	if err != nil {
		return nil, err
	}
	req := SessionRequest{
		Query:    query,
		Roster:   slices.Clone(parent.Roster),
		Chairman: parent.Chairman,
		Mode:     parent.Mode,
		Merge:    mergeOpts,
	}
	return e.run(ctx, req, parent, history)
}

// Validate checks a request before any invocation.
func (e *Engine) Validate(req SessionRequest) error {
	if strings.TrimSpace(req.Query) == "" {
		return errors.NewValidationError("query must not be empty").WithField("query").WithCause(errors.ErrEmptyPrompt)
	}
	if len(req.Roster) == 0 {
		return errors.NewValidationError("at least one council member is required").WithField("roster")
	}
	seen := make(map[string]bool, len(req.Roster))
	for i, m := range req.Roster {
		if strings.TrimSpace(m) == "" {
			return errors.NewValidationError("member identifier must not be empty").
				WithField(fmt.Sprintf("roster[%d]", i))
		}
		if seen[m] {
			return errors.NewValidationError("duplicate council member").
				WithField(fmt.Sprintf("roster[%d]", i)).
				WithValue(m)
		}
		seen[m] = true
	}
	if strings.TrimSpace(req.Chairman) == "" {
		return errors.NewValidationError("a chairman is required").WithField("chairman")
	}
	if seen[req.Chairman] {
		return errors.NewValidationError("chairman must not also be a council member").
			WithField("chairman").
			WithValue(req.Chairman)
	}

	switch req.Mode {
	case record.ModeText:
		if req.Merge != nil {
			return errors.NewValidationError("merging requires code mode").WithField("merge")
		}
	case record.ModeCode:
		if e.workspaces == nil {
			return errors.NewValidationError("code mode requires a repository").WithField("mode").WithValue(string(req.Mode))
		}
		if req.Merge != nil {
			if e.merger == nil {
				return errors.NewValidationError("merging is not available").WithField("merge")
			}
			if err := req.Merge.Validate(); err != nil {
				return err
			}
		}
	default:
		return errors.NewValidationError("unknown mode").WithField("mode").WithValue(string(req.Mode))
	}
	return nil
}

func (e *Engine) run(ctx context.Context, req SessionRequest, parent *record.SessionRecord, history []*record.SessionRecord) (*record.SessionRecord, error) {
	if err := e.Validate(req); err != nil {
		e.logger.Warn("session rejected", "error", err)
		return nil, err
	}

	s := &session{
		id:      newSessionID(),
		req:     req,
		parent:  parent,
		history: history,
		started: time.Now(),
		phase:   PhaseInit,
		spaces:  make(map[string]*workspace.Workspace),
	}
	s.logger = e.logger.WithSession(s.id)

	if e.sessionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.sessionTimeout)
		defer cancel()
	}

	var parentID uint64
	if parent != nil {
		parentID = parent.ID
	}
	e.bus.Publish(event.NewSessionStartedEvent(s.id, req.Query, string(req.Mode), req.Roster, req.Chairman, parentID))
	s.logger.Info("session started",
		"mode", string(req.Mode),
		"members", len(req.Roster),
		"chairman", req.Chairman,
		"parent_id", parentID,
	)

	rec, err := e.deliberate(ctx, s)

	var recordID uint64
	if rec != nil {
		recordID = rec.ID
	}
	e.bus.Publish(event.NewSessionCompletedEvent(s.id, recordID, err, time.Since(s.started)))
	if err != nil {
		s.logger.Error("session finished with error",
			"error", err,
			"kind", errors.Kind(err),
			"severity", errors.GetSeverity(err).String(),
			"retryable", errors.IsRetryable(err),
		)
	} else {
		s.logger.Info("session completed", "record_id", recordID, "duration_ms", time.Since(s.started).Milliseconds())
	}
	return rec, err
}

func (e *Engine) deliberate(ctx context.Context, s *session) (*record.SessionRecord, error) {
	code := s.req.Mode == record.ModeCode
	var repoDir string

	if code {
		repoDir = e.workspaces.RepoDir()
		if e.repoLock {
			lock, err := workspace.AcquireLock(repoDir, s.id, s.logger)
			if err != nil {
				return nil, e.fail(s, errors.NewWorkspaceError("repository is busy", err).
					WithOperation("lock").
					WithPath(repoDir))
			}
			defer func() { _ = lock.Release() }()
		}

		baseline, err := e.workspaces.ValidateBaseline(ctx)
		if err != nil {
			return nil, e.fail(s, err)
		}
		s.logger.Info("baseline validated",
			"revision", baseline.Revision,
			"included", len(baseline.Included),
			"excluded", len(baseline.Excluded),
		)

		s.pool = workspace.NewPool(e.workspaces, s.logger)
		defer e.releaseWorkspaces(ctx, s)
	}

	// Stage 1
	e.setPhase(s, PhaseStage1, fmt.Sprintf("collecting responses from %d members", len(s.req.Roster)))
	responses := e.respond(ctx, s)
	if err := e.checkContext(ctx, s); err != nil {
		return nil, err
	}

	// Anonymize
	e.setPhase(s, PhaseAnonymize, "anonymizing responses")
	if code {
		e.attachDiffs(ctx, s, responses)
	}
	proj := Project(responses, s.identities())
	if proj.Len() == 0 {
		return nil, e.fail(s, errors.NewInvocationError("no council member produced a response", nil).
			WithStage(StageRespond).
			WithSeverity(errors.SeverityCritical))
	}

	// Stage 2
	e.setPhase(s, PhaseStage2, fmt.Sprintf("peer review of %d responses", proj.Len()))
	reviews := e.review(ctx, s, proj)
	if err := e.checkContext(ctx, s); err != nil {
		return nil, err
	}

	// Aggregate
	e.setPhase(s, PhaseAggregate, "aggregating rankings")
	var ballots [][]string
	for _, r := range reviews {
		if r.Success {
			ballots = append(ballots, r.Ranking)
		}
	}
	agg := ranking.Aggregate(proj.Labels(), ballots)
	e.bus.Publish(event.NewRankingEvent(s.id, agg.Labels(), agg.Scores(), agg.Ballots))
	rank := agg.WithMembers(proj.Reveal())

	// Stage 3
	e.setPhase(s, PhaseStage3, "chairman synthesis")
	synthesis, err := e.synthesize(ctx, s, responses, reviews, rank)
	if err != nil {
		if ctxErr := e.checkContext(ctx, s); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, e.fail(s, err)
	}

	// Finalize
	e.setPhase(s, PhaseFinalize, "assembling record")
	rec := &record.SessionRecord{
		Query:       s.req.Query,
		Mode:        s.req.Mode,
		Roster:      slices.Clone(s.req.Roster),
		Chairman:    s.req.Chairman,
		RepoDir:     repoDir,
		Responses:   responses,
		Reviews:     reviews,
		Ranking:     rank,
		Synthesis:   synthesis,
		Status:      record.StatusCompleted,
		StartedAt:   s.started.UTC(),
		CompletedAt: time.Now().UTC(),
	}
	if s.parent != nil {
		rec.ParentID = s.parent.ID
		rec.ConversationID = s.parent.ConversationID
	}

	var mergeErr error
	if code && s.req.Merge != nil {
		e.setPhase(s, PhaseMerging, "merging the winning proposal")
		var res *merge.Result
		res, mergeErr = e.merger.Merge(ctx, s.id, rec, *s.req.Merge)
		rec.Merge = res.Summary()
	}

	if err := e.persist(ctx, s, rec); err != nil {
		e.setPhase(s, PhaseFailed, err.Error())
		return rec, err
	}

	if mergeErr != nil {
		e.setPhase(s, PhaseFailed, "merge failed: "+mergeErr.Error())
		return rec, mergeErr
	}
	e.setPhase(s, PhaseCompleted, "session completed")
	return rec, nil
}

// respond runs stage 1. Workspaces are created one at a time before any
// member starts; the invocations then run concurrently and the WaitGroup
// is the barrier in front of anonymization.
func (e *Engine) respond(ctx context.Context, s *session) []record.Response {
	roster := s.req.Roster
	responses := make([]record.Response, len(roster))
	ready := make([]bool, len(roster))
	workDirs := make([]string, len(roster))

	for i, m := range roster {
		e.memberStatus(s, m, StageRespond, event.MemberWaiting, "", 0)
		ready[i] = true
		responses[i] = record.Response{MemberID: m}
	}

	if s.pool != nil {
		for i, m := range roster {
			ws, err := s.pool.Acquire(ctx, s.id, m)
			if err != nil {
				ready[i] = false
				responses[i].Error = err.Error()
				s.logger.Warn("workspace creation failed", "member", m, "error", err)
				e.memberStatus(s, m, StageRespond, event.MemberError, err.Error(), 0)
				continue
			}
			s.mu.Lock()
			s.spaces[m] = ws
			s.mu.Unlock()
			workDirs[i] = ws.Path
			e.bus.Publish(event.NewWorkspaceEvent(s.id, m, ws.Path, "created"))
		}
	}

	var wg sync.WaitGroup
	for i, m := range roster {
		if !ready[i] {
			continue
		}
		wg.Add(1)
		go func(i int, m string) {
			defer wg.Done()
			e.memberStatus(s, m, StageRespond, event.MemberActive, "", 0)
			res := e.invoker.Invoke(ctx, invoker.Request{
				MemberID: m,
				Prompt:   stage1Prompt(s.req.Query, s.req.Mode, workDirs[i], s.history),
				WorkDir:  workDirs[i],
				Stage:    StageRespond,
			})
			responses[i] = record.Response{
				MemberID: m,
				Content:  res.Content,
				Success:  res.Success,
				Error:    res.Error,
				TimedOut: res.TimedOut,
				Duration: res.Duration,
			}
			e.reportResult(s, m, StageRespond, res)
		}(i, m)
	}
	wg.Wait()

	ok := 0
	for _, r := range responses {
		if r.Success {
			ok++
		}
	}
	s.logger.Info("stage 1 complete", "succeeded", ok, "failed", len(responses)-ok)
	return responses
}

// attachDiffs computes each successful member's diff. A member whose diff
// cannot be computed is treated as failed.
func (e *Engine) attachDiffs(ctx context.Context, s *session, responses []record.Response) {
	for i := range responses {
		r := &responses[i]
		if !r.Success {
			continue
		}
		s.mu.Lock()
		ws := s.spaces[r.MemberID]
		s.mu.Unlock()
		if ws == nil {
			continue
		}
		patch, err := e.workspaces.Diff(ctx, ws)
		if err != nil {
			s.logger.Warn("diff failed", "member", r.MemberID, "error", err)
			r.Success = false
			r.Error = err.Error()
			e.memberStatus(s, r.MemberID, StageRespond, event.MemberError, err.Error(), r.Duration)
			continue
		}
		r.Diff = patch
		if patch == nil {
			s.logger.Info("member made no changes", "member", r.MemberID)
		}
	}
}

// identities returns the identifying strings of every workspace in use.
func (s *session) identities() map[string]workspace.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make(map[string]workspace.Identity, len(s.spaces))
	for m, ws := range s.spaces {
		ids[m] = ws.Identity()
	}
	return ids
}

// review runs stage 2. Every council member ranks every labeled response,
// its own included.
func (e *Engine) review(ctx context.Context, s *session, proj *Projection) []record.Review {
	roster := s.req.Roster
	reviews := make([]record.Review, len(roster))
	labels := proj.Labels()

	if proj.Len() < 2 {
		s.logger.Info("peer review skipped", "responses", proj.Len())
		return nil
	}

	prompt := stage2Prompt(s.req.Query, s.req.Mode, proj.Views())
	for _, m := range roster {
		e.memberStatus(s, m, StageReview, event.MemberWaiting, "", 0)
	}

	var wg sync.WaitGroup
	for i, m := range roster {
		wg.Add(1)
		go func(i int, m string) {
			defer wg.Done()
			e.memberStatus(s, m, StageReview, event.MemberActive, "", 0)
			res := e.invoker.Invoke(ctx, invoker.Request{
				MemberID: m,
				Prompt:   prompt,
				Stage:    StageReview,
			})
			rev := record.Review{
				ReviewerID: m,
				Raw:        res.Content,
				Success:    res.Success,
				Error:      res.Error,
				TimedOut:   res.TimedOut,
				Duration:   res.Duration,
			}
			if res.Success {
				order, err := ranking.ParseRanking(res.Content, labels)
				if err != nil {
					rev.Success = false
					rev.Error = err.Error()
					res.Success = false
					res.Error = "unusable ranking: " + err.Error()
				} else {
					rev.Ranking = order
					rev.Commentary = ranking.ParseCommentary(res.Content, labels)
				}
			}
			reviews[i] = rev
			e.reportResult(s, m, StageReview, res)
		}(i, m)
	}
	wg.Wait()

	ok := 0
	for _, r := range reviews {
		if r.Success {
			ok++
		}
	}
	s.logger.Info("stage 2 complete", "succeeded", ok, "failed", len(reviews)-ok)
	return reviews
}

// synthesize runs stage 3. A chairman failure is fatal and not retried.
func (e *Engine) synthesize(ctx context.Context, s *session, responses []record.Response, reviews []record.Review, rank ranking.Ranking) (*record.Synthesis, error) {
	chair := s.req.Chairman
	e.memberStatus(s, chair, StageSynthesize, event.MemberActive, "", 0)

	res := e.invoker.Invoke(ctx, invoker.Request{
		MemberID: chair,
		Prompt:   stage3Prompt(s.req.Query, s.req.Mode, responses, reviews, rank, s.history),
		Stage:    StageSynthesize,
		Timeout:  e.chairmanTimeout,
	})
	e.reportResult(s, chair, StageSynthesize, res)
	if !res.Success {
		cause := errors.ErrChairmanFailed
		if res.Err != nil {
			cause = fmt.Errorf("%w: %w", errors.ErrChairmanFailed, res.Err)
		}
		return nil, errors.NewInvocationError(res.Error, cause).
			WithMember(chair).
			WithStage(StageSynthesize).
			WithTimeout(res.TimedOut)
	}

	syn := &record.Synthesis{
		ChairmanID: chair,
		Content:    res.Content,
		Duration:   res.Duration,
		Order:      rank.OrderedMembers(),
	}
	for _, r := range responses {
		if r.Success {
			syn.Responses = append(syn.Responses, r.MemberID)
		}
	}
	for _, r := range reviews {
		if r.Success {
			syn.Reviewers = append(syn.Reviewers, r.ReviewerID)
		}
	}
	return syn, nil
}

// persist saves the record, creating the conversation for a new thread.
// It runs detached from the session deadline so a finished deliberation
// is not lost to a timeout that fires during the save.
func (e *Engine) persist(ctx context.Context, s *session, rec *record.SessionRecord) error {
	if e.store == nil {
		return nil
	}
	saveCtx := context.WithoutCancel(ctx)

	if rec.ConversationID == "" {
		conv := &record.Conversation{
			ID:    uuid.NewString(),
			Title: e.title(ctx, s.req.Query),
		}
		if err := e.store.CreateConversation(saveCtx, conv); err != nil {
			return err
		}
		rec.ConversationID = conv.ID
	}
	if err := e.store.Save(saveCtx, rec); err != nil {
		return err
	}
	s.logger.Info("record saved", "record_id", rec.ID, "conversation_id", rec.ConversationID)
	return nil
}

// title names a new conversation, falling back to the truncated query
// when no title model is configured or it fails.
func (e *Engine) title(ctx context.Context, query string) string {
	if e.titleModel == "" || ctx.Err() != nil {
		return FallbackTitle(query)
	}
	res := e.invoker.Invoke(ctx, invoker.Request{
		MemberID: e.titleModel,
		Prompt:   fmt.Sprintf(TitlePromptTemplate, query),
		Stage:    StageTitle,
		Timeout:  titleTimeout,
	})
	if t := cleanTitle(res.Content); res.Success && t != "" {
		return t
	}
	return FallbackTitle(query)
}

func (e *Engine) releaseWorkspaces(ctx context.Context, s *session) {
	if err := s.pool.ReleaseAll(ctx); err != nil {
		s.logger.Warn("workspace cleanup incomplete", "error", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.req.Roster {
		if ws, ok := s.spaces[m]; ok {
			e.bus.Publish(event.NewWorkspaceEvent(s.id, m, ws.Path, "destroyed"))
		}
	}
}

// checkContext converts a done session context into a terminal failure.
func (e *Engine) checkContext(ctx context.Context, s *session) error {
	switch ctx.Err() {
	case nil:
		return nil
	case context.DeadlineExceeded:
		return e.fail(s, errors.NewTimeoutError("council session", e.sessionTimeout).WithCause(ctx.Err()))
	default:
		e.setPhase(s, PhaseCancelled, "session cancelled")
		return fmt.Errorf("%w: %w", errors.ErrCanceled, ctx.Err())
	}
}

func (e *Engine) fail(s *session, err error) error {
	e.setPhase(s, PhaseFailed, err.Error())
	return err
}

func (e *Engine) setPhase(s *session, phase Phase, message string) {
	s.mu.Lock()
	prev := s.phase
	s.phase = phase
	s.mu.Unlock()

	s.logger.Debug("phase changed", "from", string(prev), "to", string(phase))
	e.bus.Publish(event.NewPhaseChangedEvent(s.id, string(prev), string(phase), phase.Step(), len(pipeline), message))
}

func (e *Engine) memberStatus(s *session, member, stage, status, detail string, d time.Duration) {
	e.bus.Publish(event.NewMemberStatusEvent(s.id, member, stage, status, detail, d))
}

func (e *Engine) reportResult(s *session, member, stage string, res invoker.Result) {
	if res.Success {
		e.memberStatus(s, member, stage, event.MemberCompleted, "", res.Duration)
		return
	}
	e.memberStatus(s, member, stage, event.MemberError, res.Error, res.Duration)
}

func newSessionID() string {
	return uuid.NewString()[:8]
}
