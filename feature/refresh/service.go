package refresh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"geo-refresh/core/database"
	"geo-refresh/core/dataset"
	"geo-refresh/core/featureservice"
	"geo-refresh/core/logger"
	"geo-refresh/core/reconcile"
	"geo-refresh/core/storage"
	"geo-refresh/core/utils"
	"geo-refresh/core/workspace"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	messageSuccess  = "Data successfully refreshed"
	messageMismatch = "Refresh data finished but counts do not match. Source count: %d Target count: %d"
)

// Result is the outcome of one refresh.
type Result struct {
	RunID         string                 `json:"run_id"`
	Method        Method                 `json:"method"`
	SourceDataset string                 `json:"source_dataset"`
	TargetDataset string                 `json:"target_dataset"`
	Success       bool                   `json:"success"`
	RecordCount   int64                  `json:"record_count"`
	SourceCount   int64                  `json:"source_count"`
	Adds          int64                  `json:"adds"`
	Updates       int64                  `json:"updates"`
	Deletes       int64                  `json:"deletes"`
	Elapsed       time.Duration          `json:"elapsed"`
	Message       string                 `json:"message"`
	Maintenance   string                 `json:"maintenance,omitempty"`
	Artifact      string                 `json:"artifact,omitempty"`
	Apply         *reconcile.ApplyReport `json:"apply,omitempty"`
}

// Opener resolves a dataset path to a handle. session is nil for anonymous access.
type Opener interface {
	Open(ctx context.Context, path string, session *featureservice.Session) (dataset.Dataset, error)
}

type defaultOpener struct {
	db     database.Config
	client *featureservice.Client
}

func (o defaultOpener) Open(_ context.Context, path string, session *featureservice.Session) (dataset.Dataset, error) {
	if dataset.IsRemote(path) {
		token := ""
		if session != nil {
			token = session.Token
		}
		return o.client.Layer(path, token), nil
	}
	return workspace.Open(path, o.db)
}

// Service runs refreshes. It keeps no state between calls and is safe for
// concurrent use.
type Service struct {
	logger  *zap.Logger
	cfg     reconcile.Config
	opener  Opener
	tokens  *featureservice.TokenCache
	jobs    *Jobs
	fs      afero.Fs
	archive *storage.Archive
}

// NewService creates a refresh service. jobs supplies credential profiles and
// named jobs and may be nil.
func NewService(logger *zap.Logger, cfg reconcile.Config, dbCfg database.Config, client *featureservice.Client, jobs *Jobs) *Service {
	if jobs == nil {
		jobs = &Jobs{Profiles: map[string]featureservice.Credentials{}}
	}
	return &Service{
		logger: logger,
		cfg:    cfg,
		opener: defaultOpener{db: dbCfg, client: client},
		tokens: featureservice.NewTokenCache(client),
		jobs:   jobs,
		fs:     afero.NewOsFs(),
	}
}

// WithOpener replaces how dataset paths are opened.
func (s *Service) WithOpener(o Opener) *Service {
	s.opener = o
	return s
}

// WithArchive uploads every changeset artifact to a.
func (s *Service) WithArchive(a *storage.Archive) *Service {
	s.archive = a
	return s
}

// WithFs sets the filesystem used for changeset artifacts.
func (s *Service) WithFs(fs afero.Fs) *Service {
	s.fs = fs
	return s
}

// Jobs returns the configured jobs.
func (s *Service) Jobs() *Jobs {
	return s.jobs
}

// RunJob refreshes the named job.
func (s *Service) RunJob(ctx context.Context, name string) (*Result, error) {
	job, err := s.jobs.Job(name)
	if err != nil {
		return nil, err
	}
	req, err := job.Request()
	if err != nil {
		return nil, err
	}
	return s.Refresh(ctx, req)
}

// run carries the handles opened during one refresh. base carries the run id
// and source for engine components; log adds the refresh topic and target.
type run struct {
	req     Request
	base    *zap.Logger
	log     *zap.Logger
	session *featureservice.Session
	source  dataset.Dataset
	target  dataset.Dataset
	sdesc   *dataset.Description
	tdesc   *dataset.Description
	closers []io.Closer
}

func (r *run) close() {
	for _, c := range r.closers {
		_ = c.Close()
	}
}

// Refresh synchronizes req.Target from req.Source. It returns a Result and a
// nil error once the refresh reached its report, with Result.Success telling
// whether the row counts matched. Fatal preconditions and failed flows are
// returned as *AbortError.
func (s *Service) Refresh(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()
	res := &Result{
		RunID:         uuid.NewString(),
		Method:        req.Method,
		SourceDataset: req.Source,
		TargetDataset: req.Target,
	}
	base := s.logger.With(logger.RunID(res.RunID), logger.SourceDataset(req.Source))
	log := base.With(logger.Topic(logger.TopicRefresh), logger.TargetDataset(req.Target))

	r := &run{req: req, base: base, log: log}
	defer r.close()

	err := s.refresh(ctx, r, res)
	res.Elapsed = time.Since(started)
	if err != nil {
		res.Success = false
		res.Message = utils.FlattenError(err)
		log.Error(res.Message, s.reportFields(res, logger.CodeFailure)...)
		return res, err
	}

	code := logger.CodeSuccess
	if !res.Success {
		code = logger.CodeWarning
		log.Error(res.Message, s.reportFields(res, code)...)
	} else {
		log.Info(res.Message, s.reportFields(res, code)...)
	}
	return res, nil
}

func (s *Service) reportFields(res *Result, code string) []zap.Field {
	return []zap.Field{
		logger.Code(code),
		logger.Metric(res.Elapsed.Seconds()),
		zap.String("method", string(res.Method)),
		zap.Bool("success", res.Success),
		zap.Int64("record_count", res.RecordCount),
		zap.Int64("adds", res.Adds),
		zap.Int64("updates", res.Updates),
		zap.Int64("deletes", res.Deletes),
	}
}

func (s *Service) refresh(ctx context.Context, r *run, res *Result) error {
	if err := r.req.Validate(); err != nil {
		return abort(StageRequest, err)
	}
	r.log.Debug("refresh started", zap.String("method", string(r.req.Method)))

	if err := s.validateSource(ctx, r); err != nil {
		return abort(StageValidateSource, err)
	}
	if err := s.validateTarget(ctx, r); err != nil {
		return abort(StageValidateTarget, err)
	}

	check := reconcile.CompareSchemas(r.sdesc, r.tdesc)
	if !check.Match {
		r.base.Error("schema mismatch", logger.Topic(logger.TopicSchema), logger.TargetDataset(r.req.Target), logger.Code(logger.CodeFailure),
			zap.String("details", check.Message))
		return abort(StageSchemaCheck, fmt.Errorf("%w: %s", ErrSchemaMismatch, check.Message))
	}
	r.base.Debug("schema check passed", logger.Topic(logger.TopicSchema), logger.TargetDataset(r.req.Target), logger.Code(logger.CodeSuccess))

	switch r.req.Method {
	case MethodTruncate:
		if r.tdesc.IsVersioned {
			return abort(StageTruncate, ErrVersionedTruncate)
		}
		if err := s.truncate(ctx, r, res); err != nil {
			return abort(StageTruncate, err)
		}
	default:
		if err := s.compare(ctx, r, res); err != nil {
			return abort(StageCompare, err)
		}
	}

	if err := s.verifyCounts(ctx, r, res); err != nil {
		return abort(StageRowCount, err)
	}
	return nil
}

// authenticate signs in once per refresh with the request credentials.
func (s *Service) authenticate(ctx context.Context, r *run) error {
	if r.session != nil {
		return nil
	}
	creds := r.req.Credentials
	portal := creds.portal()
	if creds.Profile != "" {
		p, ok := s.jobs.Profiles[creds.Profile]
		if !ok {
			return fmt.Errorf("%w: unknown profile %q", ErrCredentials, creds.Profile)
		}
		portal = p
	}
	if err := portal.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrCredentials, err)
	}

	sess, err := s.tokens.Session(ctx, portal)
	if err != nil {
		r.base.Error("portal login failed", logger.Topic(logger.TopicAuth), logger.Code(logger.CodeFailure),
			zap.String("portal", portal.PortalURL), zap.String("error", utils.FlattenError(err)))
		return fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	r.session = sess
	r.base.Debug("logged into target portal", logger.Topic(logger.TopicAuth), logger.Code(logger.CodeSuccess),
		zap.String("portal", portal.PortalURL), zap.String("username", portal.Username))
	return nil
}

func (s *Service) open(ctx context.Context, r *run, path string, missing error) (dataset.Dataset, *dataset.Description, error) {
	ds, err := s.opener.Open(ctx, path, r.session)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", missing, path, err)
	}
	if c, ok := ds.(io.Closer); ok {
		r.closers = append(r.closers, c)
	}

	ok, err := ds.Exists(ctx)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", missing, path)
	}
	desc, err := ds.Describe(ctx)
	if err != nil {
		return nil, nil, err
	}
	return ds, desc, nil
}

func (s *Service) validateSource(ctx context.Context, r *run) error {
	if dataset.IsRemote(r.req.Source) && !r.req.Credentials.IsZero() {
		if err := s.authenticate(ctx, r); err != nil {
			return err
		}
	}
	ds, desc, err := s.open(ctx, r, r.req.Source, ErrSourceNotFound)
	if err != nil {
		return err
	}
	r.source, r.sdesc = ds, desc
	return nil
}

func (s *Service) validateTarget(ctx context.Context, r *run) error {
	if dataset.IsRemote(r.req.Target) {
		if err := s.authenticate(ctx, r); err != nil {
			return err
		}
	}
	ds, desc, err := s.open(ctx, r, r.req.Target, ErrTargetNotFound)
	if err != nil {
		return err
	}
	r.target, r.tdesc = ds, desc
	return nil
}

func (s *Service) chunkSize(r *run) int {
	if r.req.ChunkSize > 0 {
		return r.req.ChunkSize
	}
	return s.cfg.ChunkSize
}

func (s *Service) truncate(ctx context.Context, r *run, res *Result) error {
	fields := reconcile.CopyFields(r.tdesc, r.sdesc)
	log := r.base.With(logger.Topic(logger.TopicTruncate), logger.TargetDataset(r.req.Target))

	switch t := r.target.(type) {
	case dataset.Layer:
		oidField, ids, err := t.QueryIDs(ctx, "1=1")
		if err != nil {
			return err
		}
		if oidField == "" {
			oidField = r.tdesc.OIDField
		}

		cs := reconcile.NewChangeSet("", oidField)
		cs.Fields = append([]string{oidField}, fields...)
		for _, id := range ids {
			cs.Deletes[id] = nil
		}
		err = r.source.Scan(ctx, fields, func(rec dataset.Record) error {
			cs.Adds = append(cs.Adds, rec)
			return nil
		})
		if err != nil {
			return err
		}

		if r.session != nil && r.session.IsPortal && strings.Contains(strings.ToLower(r.req.Target), "hosted") {
			log.Debug("target is a hosted feature layer, converting field names to lowercase")
			lowercaseFields(cs)
		}

		report, err := reconcile.NewApplier(r.base, s.chunkSize(r)).Apply(ctx, t, cs)
		if err != nil {
			return err
		}
		res.Apply = report
		res.Adds, res.Deletes = int64(report.Adds.Applied), int64(report.Deletes.Applied)
		return nil

	case dataset.Editable:
		if err := t.Truncate(ctx); err != nil {
			return err
		}
		n, err := t.Append(ctx, r.source, fields)
		if err != nil {
			return err
		}
		res.Adds = n
		log.Debug("target truncated and reloaded", zap.Int64("rows", n))
		return s.maintain(ctx, r, res)
	}
	return fmt.Errorf("dataset %s cannot be truncated", r.req.Target)
}

// lowercaseFields renames every attribute of the adds to lower case.
func lowercaseFields(cs *reconcile.ChangeSet) {
	for i, f := range cs.Fields {
		if f != dataset.ShapeToken {
			cs.Fields[i] = strings.ToLower(f)
		}
	}
	cs.ObjectIDField = strings.ToLower(cs.ObjectIDField)
	for i, rec := range cs.Adds {
		out := make(dataset.Record, len(rec))
		for k, v := range rec {
			if k == dataset.ShapeToken {
				out[k] = v
				continue
			}
			out[strings.ToLower(k)] = v
		}
		cs.Adds[i] = out
	}
}

func (s *Service) compare(ctx context.Context, r *run, res *Result) error {
	opts := reconcile.OptionsFromConfig(s.cfg)
	opts.Fs = s.fs
	opts.Archive = s.archive

	cs, err := reconcile.NewBuilder(r.base, opts).Compare(ctx, r.target, r.source, r.req.IDField)
	if err != nil {
		return err
	}
	res.Artifact = cs.Artifact

	report, err := reconcile.NewApplier(r.base, s.chunkSize(r)).Apply(ctx, r.target, cs)
	if err != nil {
		return err
	}
	res.Apply = report
	res.Adds, res.Updates, res.Deletes = int64(len(cs.Adds)), int64(len(cs.Updates)), int64(len(cs.Deletes))
	return s.maintain(ctx, r, res)
}

func (s *Service) maintain(ctx context.Context, r *run, res *Result) error {
	t, ok := r.target.(dataset.Editable)
	if !ok || !s.cfg.Maintenance {
		return nil
	}
	action, err := t.Maintain(ctx)
	if err != nil {
		return err
	}
	res.Maintenance = action
	if action != "" {
		r.base.Debug("target workspace maintained", logger.Topic(logger.TopicMaintain), logger.TargetDataset(r.req.Target), zap.String("action", action))
	}
	return nil
}

func (s *Service) verifyCounts(ctx context.Context, r *run, res *Result) error {
	sourceCount, err := r.source.Count(ctx)
	if err != nil {
		return err
	}
	targetCount, err := r.target.Count(ctx)
	if err != nil {
		return err
	}
	res.SourceCount, res.RecordCount = sourceCount, targetCount

	if sourceCount == targetCount {
		res.Success = true
		res.Message = messageSuccess
		return nil
	}
	res.Message = fmt.Sprintf(messageMismatch, sourceCount, targetCount)
	return nil
}

// CheckSchema opens both datasets of req and compares their schemas. Nothing
// is written.
func (s *Service) CheckSchema(ctx context.Context, req Request) (*reconcile.SchemaCheck, error) {
	base := s.logger.With(logger.SourceDataset(req.Source), logger.TargetDataset(req.Target))
	r := &run{req: req, base: base, log: base}
	defer r.close()

	if err := s.validateSource(ctx, r); err != nil {
		return nil, abort(StageValidateSource, err)
	}
	if err := s.validateTarget(ctx, r); err != nil {
		return nil, abort(StageValidateTarget, err)
	}
	check := reconcile.CompareSchemas(r.sdesc, r.tdesc)
	return &check, nil
}

// IsAbort reports whether err stopped a refresh before its report.
func IsAbort(err error) bool {
	var ae *AbortError
	return errors.As(err, &ae)
}
