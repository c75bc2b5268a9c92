package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/control/pkg/actions"
	"github.com/openfroyo/control/pkg/providers"
	"github.com/openfroyo/control/pkg/stores"
	"github.com/openfroyo/control/pkg/telemetry"
	"github.com/openfroyo/control/pkg/transports"
	"github.com/openfroyo/control/pkg/transports/debug"
)

// Options configures a Manager. Zero values fall back to defaults.
type Options struct {
	// Dialer opens the session. Defaults to NewDialer(DefaultSSHSettings()).
	Dialer Dialer

	// Credentials answers prompt sentinels in the script.
	Credentials CredentialResolver

	// Retry bounds connection retries.
	Retry RetryPolicy

	// Provider tunes provider behaviour such as lock polling.
	Provider providers.Options

	// Journal, when set, records every run and action.
	Journal stores.Journal

	// Telemetry receives metrics and spans.
	Telemetry *telemetry.Telemetry

	// DryRun replaces the session with a recording debug transport.
	DryRun bool
}

// Manager drives script runs. A Manager runs one script at a time.
type Manager struct {
	dial         Dialer
	credentials  CredentialResolver
	retry        RetryPolicy
	providerOpts providers.Options
	journal      stores.Journal
	telemetry    *telemetry.Telemetry
	dryRun       bool
}

// NewManager creates a Manager from opts.
func NewManager(opts Options) *Manager {
	m := &Manager{
		dial:         opts.Dialer,
		credentials:  opts.Credentials,
		retry:        opts.Retry,
		providerOpts: opts.Provider,
		journal:      opts.Journal,
		telemetry:    opts.Telemetry,
		dryRun:       opts.DryRun,
	}
	if m.dial == nil {
		m.dial = NewDialer(DefaultSSHSettings())
	}
	if m.telemetry == nil {
		m.telemetry = &telemetry.Telemetry{}
	}
	return m
}

// Run executes script. The returned report is never nil; the error is a
// *RunError describing the stage that stopped the run.
func (m *Manager) Run(ctx context.Context, script *actions.Script) (*Report, error) {
	report := &Report{
		RunID:      uuid.NewString(),
		ScriptPath: script.Path,
		Host:       script.Address(),
		Provider:   script.Provider,
		DryRun:     m.dryRun,
		StartedAt:  time.Now(),
		Total:      len(script.Actions),
	}

	provider, err := providers.New(script.Provider, m.providerOpts)
	if err != nil {
		report.Err = newStageError(StageLoad, "", err)
		return report, report.Err
	}
	report.Provider = provider.Name()

	resolved, err := resolveCredentials(script, m.credentials)
	if err != nil {
		report.Err = newStageError(StageLoad, "resolving credentials", err)
		return report, report.Err
	}
	report.Host = resolved.Address()

	logger := log.With().Str("run_id", report.RunID).Str("host", report.Host).Logger()
	ctx = logger.WithContext(ctx)

	ctx, span := m.telemetry.Tracer.StartRunSpan(ctx, report.RunID, report.Host, report.Provider)
	defer span.End()

	m.telemetry.Metrics.RecordRunStarted(report.Provider)
	m.journalStart(ctx, report)

	logger.Info().
		Str("provider", report.Provider).
		Int("actions", report.Total).
		Bool("dry_run", m.dryRun).
		Msg("Starting run")

	report.Err = m.execute(ctx, resolved, provider, report)
	report.Duration = time.Since(report.StartedAt)
	m.finish(ctx, report, span)

	return report, report.Err
}

func (m *Manager) execute(ctx context.Context, s *actions.Script, provider providers.Provider, report *Report) error {
	logger := zerolog.Ctx(ctx)

	dial := m.dial
	var recorder *debug.Transport
	if m.dryRun {
		recorder = debug.New()
		recorder.Permissive = true
		dial = func(context.Context, *actions.Script) (transports.Transport, error) { return recorder, nil }
		defer func() {
			report.Commands = append([]string(nil), recorder.Commands...)
			for _, w := range recorder.Writes {
				report.Writes = append(report.Writes, FileWrite{Path: w.Path, Mode: w.Mode, Contents: w.Contents})
			}
		}()
	}

	t, err := m.connect(ctx, s, dial)
	if err != nil {
		msg := "connection failed"
		if transports.IsAuthError(err) {
			msg = "authentication failed"
		}
		return newStageError(StageConnect, msg, err)
	}

	session := &transports.RemoteSession{
		Transport:   t,
		Host:        s.Host,
		Port:        s.Port,
		User:        s.Auth.Username,
		Elevate:     s.Sudo,
		HideHistory: s.HideHistory,
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close session")
		}
	}()

	if s.Validation != nil && s.Validation.NeedsChecking() {
		if m.dryRun {
			logger.Info().Str("constraint", s.Validation.String()).Msg("Skipping system validation in dry run")
		} else if err := m.validate(ctx, s, provider, session); err != nil {
			return err
		}
	}

	for i, a := range s.Actions {
		if err := ctx.Err(); err != nil {
			return &RunError{Stage: StageAction, Index: i, Kind: a.Kind, Message: "run cancelled", Err: err}
		}

		outcome := m.runAction(ctx, provider, session, report.RunID, i, a)
		report.Actions = append(report.Actions, outcome)
		if outcome.Err != nil {
			return &RunError{Stage: StageAction, Index: i, Kind: a.Kind, Err: outcome.Err}
		}
	}

	return nil
}

func (m *Manager) validate(ctx context.Context, s *actions.Script, provider providers.Provider, session *transports.RemoteSession) error {
	ctx, span := m.telemetry.Tracer.Start(ctx, "control.validate")
	defer span.End()

	id, release, err := provider.DistroDetails(ctx, session)
	if err != nil {
		telemetry.RecordError(span, err)
		return newStageError(StageValidation, "querying distro details", err)
	}

	zerolog.Ctx(ctx).Info().
		Str("distro", id).
		Str("release", release).
		Str("constraint", s.Validation.String()).
		Msg("Detected distro")

	if !s.Validation.CheckActualDistroValues(id, release) {
		err := newStageError(StageValidation,
			fmt.Sprintf("host reports %s %s which does not satisfy %s", id, release, s.Validation), nil)
		telemetry.RecordError(span, err)
		return err
	}

	telemetry.RecordSuccess(span)
	return nil
}

func (m *Manager) runAction(ctx context.Context, provider providers.Provider, session *transports.RemoteSession, runID string, index int, a actions.Action) ActionOutcome {
	kind := a.Kind.String()
	ctx, span := m.telemetry.Tracer.StartActionSpan(ctx, index, kind)
	defer span.End()

	logger := zerolog.Ctx(ctx).With().Int("index", index).Str("kind", kind).Logger()
	logger.Info().Msg("Running action")

	timer := telemetry.NewTimer()
	err := providers.Dispatch(ctx, provider, session, a)
	outcome := ActionOutcome{Index: index, Kind: a.Kind, Duration: timer.Duration(), Err: err}

	status := stores.ActionStatusSucceeded
	if err != nil {
		status = stores.ActionStatusFailed
		telemetry.RecordError(span, err)
		m.telemetry.Metrics.RecordError(errorKind(err))
		logActionFailure(logger, err)
	} else {
		telemetry.RecordSuccess(span)
		logger.Debug().Dur("duration", outcome.Duration).Msg("Action completed")
	}
	m.telemetry.Metrics.RecordAction(kind, string(status), outcome.Duration)

	if m.journal != nil {
		rec := &stores.ActionRecord{
			RunID:    runID,
			Index:    index,
			Kind:     kind,
			Status:   status,
			Duration: outcome.Duration,
			Error:    errString(err),
		}
		if jerr := m.journal.RecordAction(ctx, rec); jerr != nil {
			logger.Warn().Err(jerr).Msg("Failed to journal action")
		}
	}

	return outcome
}

func errorKind(err error) string {
	if k, ok := providers.KindOf(err); ok {
		return string(k)
	}
	return string(providers.FailedOther)
}

func logActionFailure(logger zerolog.Logger, err error) {
	msg := "Action failed"
	ev := logger.Error().Err(err)
	var ae *providers.ActionError
	if errors.As(err, &ae) {
		switch ae.Kind {
		case providers.NotImplemented:
			msg = "Action is not implemented by this provider"
		case providers.InvalidParams:
			msg = "Action has invalid parameters"
		case providers.CantConnect:
			msg = "Lost connection while running action"
		case providers.AuthenticationIssue:
			msg = "Authentication failed while running action"
		case providers.FailedCommand:
			msg = "Remote command failed"
		}
		if ae.Command != "" {
			ev = ev.Str("command", ae.Command)
		}
		if ae.Stderr != "" {
			ev = ev.Str("stderr", ae.Stderr)
		}
	}
	ev.Msg(msg)
}

func (m *Manager) journalStart(ctx context.Context, report *Report) {
	if m.journal == nil {
		return
	}
	run := &stores.Run{
		ID:         report.RunID,
		ScriptPath: report.ScriptPath,
		Host:       report.Host,
		Provider:   report.Provider,
		Status:     stores.RunStatusRunning,
		StartedAt:  report.StartedAt,
	}
	if err := m.journal.StartRun(ctx, run); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to journal run start")
	}
}

func (m *Manager) finish(ctx context.Context, report *Report, span trace.Span) {
	logger := zerolog.Ctx(ctx)
	status := stores.RunStatusSucceeded
	if report.Err != nil {
		status = stores.RunStatusFailed
		telemetry.RecordError(span, report.Err)
		logger.Error().
			Err(report.Err).
			Int("completed", report.Completed()).
			Int("total", report.Total).
			Dur("duration", report.Duration).
			Msg("Run failed")
	} else {
		telemetry.RecordSuccess(span)
		logger.Info().
			Int("completed", report.Completed()).
			Dur("duration", report.Duration).
			Msg("Run succeeded")
	}
	m.telemetry.Metrics.RecordRunCompleted(string(status), report.Duration)

	if m.journal != nil {
		err := m.journal.FinishRun(ctx, report.RunID, status, report.ExitCode(), errString(report.Err))
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to journal run result")
		}
	}
}

func errString(err error) *string {
	if err == nil {
		return nil
	}
	s := err.Error()
	return &s
}

// Exec connects to the script's target and runs one command through the
// provider's command post-processing. Script actions and validation are
// ignored. The result carries the remote exit code.
func (m *Manager) Exec(ctx context.Context, script *actions.Script, command string) (*transports.CommandResult, error) {
	provider, err := providers.New(script.Provider, m.providerOpts)
	if err != nil {
		return nil, newStageError(StageLoad, "", err)
	}

	resolved, err := resolveCredentials(script, m.credentials)
	if err != nil {
		return nil, newStageError(StageLoad, "resolving credentials", err)
	}

	dial := m.dial
	if m.dryRun {
		dial = func(context.Context, *actions.Script) (transports.Transport, error) { return debug.New(), nil }
	}

	t, err := m.connect(ctx, resolved, dial)
	if err != nil {
		return nil, newStageError(StageConnect, "connection failed", err)
	}
	session := &transports.RemoteSession{
		Transport:   t,
		Host:        resolved.Host,
		Port:        resolved.Port,
		User:        resolved.Auth.Username,
		Elevate:     resolved.Sudo,
		HideHistory: resolved.HideHistory,
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close session")
		}
	}()

	result, err := providers.RunCommand(ctx, provider, session, command)
	if err != nil {
		return nil, &RunError{Stage: StageAction, Index: 0, Kind: actions.KindGenericCommand, Err: err}
	}
	return result, nil
}
