// Package lifecycle runs one deployment from source import to a running container.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/ashutoshpw/coolify/internal/buildlog"
	"github.com/ashutoshpw/coolify/internal/fingerprint"
	"github.com/ashutoshpw/coolify/internal/images"
	"github.com/ashutoshpw/coolify/internal/manifest"
	"github.com/ashutoshpw/coolify/internal/plugin"
	"github.com/ashutoshpw/coolify/internal/runtime"
	"github.com/ashutoshpw/coolify/internal/store"
	"github.com/ashutoshpw/coolify/pkg/component"
	"github.com/ashutoshpw/coolify/pkg/deployment"
	"github.com/ashutoshpw/coolify/pkg/git"
	"github.com/hashicorp/go-hclog"
)

// DefaultStaleGracePeriod is how old another active build must be before it is considered orphaned
const DefaultStaleGracePeriod = 10 * time.Second

// Build decisions and run results reported to the Observer
const (
	DecisionBuild = "build"
	DecisionSkip  = "skip"

	ResultSuccess   = "success"
	ResultFailed    = "failed"
	ResultCancelled = "cancelled"
	ResultTimedOut  = "timeout"
)

// SourceImporter fetches the repository into a directory and returns the checked out commit
type SourceImporter interface {
	Import(ctx context.Context, opts git.ImportOptions) (string, error)
}

// BuildPacks resolves build pack kinds
type BuildPacks interface {
	Has(kind deployment.BuildPackKind) bool
	Load(kind deployment.BuildPackKind) (component.BuildPack, string, error)
	Seed(ctx context.Context, kind deployment.BuildPackKind, cfg *component.BuildConfig) error
}

// Images runs the image and container operations on a destination
type Images interface {
	Exists(ctx context.Context, destination, imageRef string) bool
	StopAndRemove(ctx context.Context, destination, container string)
	ComposeUp(ctx context.Context, destination, workdir string) error
}

// Workspaces hands out the exclusive working directory of a build
type Workspaces interface {
	Prepare(repository, buildID string) (string, error)
}

// Observer is told about build decisions and run outcomes
type Observer interface {
	BuildDecision(decision string)
	DeploymentFinished(result string)
}

// Dependencies are the collaborators of a Pipeline
type Dependencies struct {
	Store      store.Store
	Importer   SourceImporter
	BuildPacks BuildPacks
	Images     Images
	Workspaces Workspaces
}

// Pipeline runs deployment requests
type Pipeline struct {
	deps     Dependencies
	hosts    runtime.HostResolver
	mirror   buildlog.Mirror
	observer Observer
	grace    time.Duration
	logger   hclog.Logger
	now      func() time.Time
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithStaleGracePeriod sets the age after which other active builds of the same application are failed
func WithStaleGracePeriod(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.grace = d
		}
	}
}

// WithHostResolver points build tools at the destination's container engine
func WithHostResolver(r runtime.HostResolver) Option {
	return func(p *Pipeline) { p.hosts = r }
}

// WithMirror streams build logs and status changes live
func WithMirror(m buildlog.Mirror) Option {
	return func(p *Pipeline) { p.mirror = m }
}

// WithObserver reports decisions and results, typically to metrics
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// NewPipeline creates a pipeline over deps
func NewPipeline(deps Dependencies, logger hclog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	p := &Pipeline{
		deps:   deps,
		grace:  DefaultStaleGracePeriod,
		logger: logger.Named("pipeline"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// run carries the state of one execution
type run struct {
	req       deployment.Request
	submitted deployment.Request
	session   store.Session
	reporter  *buildlog.Reporter
	logger    hclog.Logger

	// ctx is only consulted for cancellation at step boundaries. work carries
	// record store writes and is never cancelled. steps is passed to collaborators:
	// it keeps the caller's deadline but not its cancellation, so a step that
	// already started runs to completion unless the run times out.
	ctx   context.Context
	work  context.Context
	steps context.Context

	dir    string
	commit string
	tag    string
}

// Run executes one deployment. The store session is released on every path; any
// error leaves the build failed with the cause in its log. Cancelling ctx stops the
// run at the next step boundary; a deadline on ctx also interrupts the running step.
func (p *Pipeline) Run(ctx context.Context, req deployment.Request) (err error) {
	logger := p.logger.With("buildId", req.BuildID, "application", req.ApplicationID)
	work := hclog.WithContext(context.WithoutCancel(ctx), logger)

	session, err := p.deps.Store.Acquire(work)
	if err != nil {
		p.finished(ResultFailed)
		return stepError("acquire", fmt.Errorf("acquire record store session: %w", err))
	}
	defer func() {
		if rerr := session.Release(); rerr != nil {
			logger.Warn("failed to release record store session", "error", rerr)
		}
	}()

	steps, cancelSteps := stepContext(ctx, work)
	defer cancelSteps()

	opts := []buildlog.Option{buildlog.WithRedaction(req.GitSource.Token)}
	if p.mirror != nil {
		opts = append(opts, buildlog.WithMirror(p.mirror))
	}
	r := &run{
		req:       deployment.ApplyDefaults(req),
		submitted: req,
		session:   session,
		reporter:  buildlog.New(session, req.BuildID, req.ApplicationID, logger, opts...),
		logger:    logger,
		ctx:       ctx,
		work:      work,
		steps:     steps,
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("deployment panicked", "panic", rec, "stack", string(debug.Stack()))
			err = stepError("panic", fmt.Errorf("unexpected failure: %v", rec))
		}
		if err == nil {
			p.finished(ResultSuccess)
			return
		}
		p.fail(r, err)
	}()

	return p.execute(r)
}

func (p *Pipeline) fail(r *run, err error) {
	result := ResultFailed
	var cause error = err
	var se *StepError
	if errors.As(err, &se) {
		cause = se.Err
		if se.logged {
			cause = nil
		}
	}
	switch {
	case errors.Is(err, ErrTimedOut) || errors.Is(r.ctx.Err(), context.DeadlineExceeded):
		result = ResultTimedOut
		r.reporter.Log(r.work, "Deployment timed out.")
		cause = nil
	case errors.Is(err, ErrCancelled):
		result = ResultCancelled
		r.reporter.Log(r.work, "Deployment cancelled.")
		cause = nil
	}

	r.logger.Error("deployment failed", "error", err)
	r.reporter.Fail(r.work, cause)
	p.finished(result)
}

func (p *Pipeline) finished(result string) {
	if p.observer != nil {
		p.observer.DeploymentFinished(result)
	}
}

// checkpoint stops the run when it has been cancelled or its deadline has passed
func (r *run) checkpoint(next string) error {
	switch r.ctx.Err() {
	case nil:
		return nil
	case context.DeadlineExceeded:
		return stepError(next, ErrTimedOut)
	}
	return stepError(next, ErrCancelled)
}

// stepContext derives the collaborator context from work, bounded by the deadline of ctx
func stepContext(ctx, work context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(work, deadline)
	}
	return work, func() {}
}

func (p *Pipeline) execute(r *run) error {
	req := &r.req

	if !req.IsPreview() {
		p.reconcile(r)
	}
	if err := r.checkpoint("start"); err != nil {
		return err
	}

	if err := r.reporter.SetStatus(r.work, deployment.StatusRunning); err != nil {
		return stepError("start", err)
	}
	if err := r.checkpoint("import"); err != nil {
		return err
	}

	if err := p.importSource(r); err != nil {
		return err
	}
	r.tag = Tag(r.commit, req)

	if err := r.session.SetBuildCommit(r.work, req.BuildID, r.commit); err != nil {
		r.logger.Warn("failed to store build commit", "commit", r.commit, "error", err)
	}

	hash := fingerprint.Compute(&r.submitted)
	configChanged := fingerprint.Changed(&r.submitted)
	changed := req.IsPreview() || configChanged
	if req.ConfigHash != "" && configChanged {
		r.reporter.Log(r.work, "Configuration changed.")
	}

	imageRef := req.ImageName() + ":" + r.tag
	exists := p.deps.Images.Exists(r.steps, req.Destination.ID, imageRef)

	cfg, err := p.buildConfig(r)
	if err != nil {
		return stepError("build", err)
	}
	if err := r.checkpoint("seed"); err != nil {
		return err
	}
	if err := p.deps.BuildPacks.Seed(r.steps, req.BuildPack, cfg); err != nil {
		return stepError("seed", err)
	}
	if err := r.checkpoint("build"); err != nil {
		return err
	}

	if req.ForceRebuild || images.NeedsBuild(changed, req.IsPreview(), req.ForceRebuild, exists) {
		p.decided(DecisionBuild)
		if err := p.build(r, cfg); err != nil {
			return err
		}
	} else {
		p.decided(DecisionSkip)
		r.reporter.Log(r.work, "Build image already available - no rebuild required.")
	}
	if err := r.checkpoint("deploy"); err != nil {
		return err
	}

	r.reporter.SetPhase("deploy")
	p.deps.Images.StopAndRemove(r.steps, req.Destination.ID, req.InstanceID())

	envPath, err := manifest.WriteEnvFile(r.dir, manifest.EnvLines(req))
	if err != nil {
		return stepError("env", err)
	}

	m := manifest.Build(req, r.tag, manifest.EnvFileExists(envPath), manifest.Labels(req, r.commit))
	if _, err := m.Write(r.dir); err != nil {
		return stepError("manifest", err)
	}
	r.reporter.Log(r.work, "Deployment started.")
	if err := r.checkpoint("deploy"); err != nil {
		return err
	}

	if err := p.deps.Images.ComposeUp(r.steps, req.Destination.ID, r.dir); err != nil {
		return stepError("deploy", err)
	}

	r.reporter.Log(r.work, "Deployment successful!")
	r.reporter.Log(r.work, "Proxy will be updated shortly.")
	if err := r.reporter.SetStatus(r.work, deployment.StatusSuccess); err != nil {
		return stepError("finalize", err)
	}

	if !req.IsPreview() {
		if err := r.session.SetApplicationConfigHash(r.work, req.ApplicationID, hash); err != nil {
			r.logger.Warn("failed to store configuration hash", "error", err)
		}
	}
	r.logger.Info("deployment finished", "image", imageRef)
	return nil
}

// reconcile fails orphaned builds of the same application left behind by a crashed worker
func (p *Pipeline) reconcile(r *run) {
	cutoff := p.now().Add(-p.grace)
	n, err := r.session.FailStaleBuilds(r.work, r.req.ApplicationID, r.req.BuildID, cutoff)
	if err != nil {
		r.logger.Warn("failed to reconcile stale builds", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("failed stale builds", "count", n)
	}
}

func (p *Pipeline) importSource(r *run) error {
	req := &r.req

	dir, err := p.deps.Workspaces.Prepare(req.Repository, req.BuildID)
	if err != nil {
		return stepError("import", err)
	}
	r.dir = dir

	r.reporter.SetPhase("import")
	out := r.reporter.Writer(r.work)
	commit, err := p.deps.Importer.Import(r.steps, git.ImportOptions{
		Repository:     req.Repository,
		Branch:         req.EffectiveBranch(),
		Source:         req.GitSource,
		DestinationDir: dir,
		OutputWriter:   out,
	})
	closeQuietly(out)
	if err != nil {
		return stepError("import", err)
	}
	if commit == "" {
		return stepError("import", ErrNoCommit)
	}
	r.commit = commit
	r.logger.Debug("source imported", "commit", commit, "dir", dir)
	return nil
}

func (p *Pipeline) build(r *run, cfg *component.BuildConfig) error {
	kind := r.req.BuildPack
	if !p.deps.BuildPacks.Has(kind) {
		r.reporter.Logf(r.work, "Build pack %s not found", kind)
		return &StepError{Step: "build", Err: fmt.Errorf("%w: %s", plugin.ErrUnknownBuildPack, kind), logged: true}
	}
	pack, name, err := p.deps.BuildPacks.Load(kind)
	if err != nil {
		return stepError("build", err)
	}

	r.reporter.SetPhase("build")
	out := r.reporter.Writer(r.work)
	defer closeQuietly(out)
	cfg.Stdout = out
	cfg.Stderr = out

	r.logger.Info("building image", "image", cfg.ImageRef(), "buildPack", kind, "plugin", name)
	if _, err := pack.Build(r.steps, cfg); err != nil {
		return stepError("build", err)
	}
	return nil
}

func (p *Pipeline) buildConfig(r *run) (*component.BuildConfig, error) {
	cfg := &component.BuildConfig{
		Request:  &r.req,
		WorkDir:  r.dir,
		Image:    r.req.ImageName(),
		Tag:      r.tag,
		BuildEnv: BuildEnv(&r.req),
	}
	if p.hosts != nil {
		env, err := p.hosts.Environ(r.req.Destination.ID)
		if err != nil {
			return nil, err
		}
		cfg.Env = env
	}
	return cfg, nil
}

func (p *Pipeline) decided(decision string) {
	if p.observer != nil {
		p.observer.BuildDecision(decision)
	}
}

// Tag is the image tag of a deployment: the short commit, suffixed with the preview id for previews
func Tag(commit string, req *deployment.Request) string {
	tag := commit
	if len(tag) > 7 {
		tag = tag[:7]
	}
	if req.IsPreview() {
		tag += "-" + req.PullRequestID
	}
	return tag
}

// BuildEnv returns the variables visible to the build: PORT and the secrets in the request's scope
func BuildEnv(req *deployment.Request) map[string]string {
	env := map[string]string{"PORT": strconv.Itoa(req.Port)}
	preview := req.IsPreview()
	for _, s := range req.Secrets {
		if s.IsPreview == preview {
			env[s.Name] = s.Value
		}
	}
	return env
}

func closeQuietly(c io.Closer) {
	_ = c.Close()
}
