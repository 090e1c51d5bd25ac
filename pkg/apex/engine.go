// Package apex is the judgment orchestrator. It wires the reflex table,
// classifier, floor registry, weighting, routing, witness, explanation,
// ledger, cooling, and receipt stages into a single RenderVerdict call.
// The kernel never executes anything; it only judges.
package apex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/apexgov/core/pkg/canonicalize"
	"github.com/apexgov/core/pkg/classify"
	"github.com/apexgov/core/pkg/contracts"
	"github.com/apexgov/core/pkg/cooling"
	"github.com/apexgov/core/pkg/explain"
	"github.com/apexgov/core/pkg/floors"
	"github.com/apexgov/core/pkg/identity"
	"github.com/apexgov/core/pkg/ledger"
	"github.com/apexgov/core/pkg/receipt"
	"github.com/apexgov/core/pkg/redpat"
	"github.com/apexgov/core/pkg/route"
	"github.com/apexgov/core/pkg/rules"
	"github.com/apexgov/core/pkg/waw"
	"github.com/apexgov/core/pkg/witness"
)

// ReasonEmptyTask is emitted when a request carries no task at all.
const ReasonEmptyTask = "EMPTY_TASK"

// DefaultDeadline bounds one judgment end to end.
const DefaultDeadline = 30 * time.Second

// Options configures an Engine. Ledger is mandatory; every other field
// has a working default.
type Options struct {
	Patterns         *redpat.Table
	Classifier       *classify.Classifier
	Registry         *floors.Registry
	Rules            *rules.Engine
	Critical         map[string]bool
	Weights          *waw.Weights
	Router           *route.Router
	Ledger           ledger.Store
	Cooling          *cooling.Engine
	Receipts         *receipt.Generator
	ConstitutionHash string
	Deadline         time.Duration
	Logger           *slog.Logger
	Tracer           trace.Tracer
}

// Engine renders verdicts.
type Engine struct {
	patterns         *redpat.Table
	classifier       *classify.Classifier
	registry         *floors.Registry
	critical         map[string]bool
	weights          waw.Weights
	router           *route.Router
	ledger           ledger.Store
	cooling          *cooling.Engine
	receipts         *receipt.Generator
	constitutionHash string
	deadline         time.Duration
	logger           *slog.Logger
	tracer           trace.Tracer
	now              func() time.Time
}

// New builds an Engine, filling defaults for everything Options leaves
// nil. The ledger store is required: a kernel that cannot record cannot
// judge.
func New(opts Options) (*Engine, error) {
	if opts.Ledger == nil {
		return nil, errors.New("apex: ledger store is required")
	}
	e := &Engine{
		patterns:         opts.Patterns,
		classifier:       opts.Classifier,
		registry:         opts.Registry,
		critical:         opts.Critical,
		router:           opts.Router,
		ledger:           opts.Ledger,
		cooling:          opts.Cooling,
		receipts:         opts.Receipts,
		constitutionHash: opts.ConstitutionHash,
		deadline:         opts.Deadline,
		logger:           opts.Logger,
		tracer:           opts.Tracer,
		now:              func() time.Time { return time.Now().UTC() },
	}
	if e.patterns == nil {
		e.patterns = redpat.MustCompile()
	}
	if e.classifier == nil {
		e.classifier = classify.New(classify.DefaultKeywords())
	}
	if e.critical == nil {
		e.critical = floors.DefaultCritical()
	}
	if e.registry == nil {
		e.registry = floors.NewRegistry(floors.DefaultConfig())
	}
	if opts.Rules != nil && opts.Rules.Len() > 0 {
		// Custom deny rules join the registry as a non-critical floor.
		e.registry.Register(opts.Rules.AsFloor())
	}
	if opts.Weights != nil {
		e.weights = *opts.Weights
	} else {
		e.weights = waw.DefaultWeights(e.critical)
	}
	if e.router == nil {
		e.router = route.New(route.ModeBlackBox, e.critical)
	}
	if e.deadline <= 0 {
		e.deadline = DefaultDeadline
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer("apexgov/apex")
	}
	return e, nil
}

// RenderVerdict judges one request. It always returns a response; any
// internal failure collapses to VOID. The returned error is reserved for
// context cancellation of the caller's own context.
func (e *Engine) RenderVerdict(ctx context.Context, req *contracts.Request) (resp *contracts.Response) {
	ctx, cancel := context.WithTimeout(ctx, e.deadline)
	defer cancel()

	ctx, span := e.tracer.Start(ctx, "apex.render_verdict")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("judgment panic", "panic", r)
			resp = e.failClosed(req, contracts.ReasonInternalFailure)
		}
		span.SetAttributes(
			attribute.String("verdict", string(resp.Verdict)),
			attribute.Float64("apex_pulse", resp.ApexPulse),
			attribute.String("action_class", string(resp.ActionClass)),
		)
	}()

	if req == nil || req.Task == "" {
		return e.finish(ctx, req, judgment{
			verdict:     contracts.VerdictVoid,
			pulse:       0,
			reasonCodes: []string{ReasonEmptyTask},
			class:       contracts.ClassReadOnly,
			caller:      identity.ExtractCaller(nil),
		})
	}

	caller := identity.ExtractCaller(req.Context)
	if req.Caller != nil {
		caller = *req.Caller
	}
	class := e.classifier.Classify(req.Task, req.Params, req.Context)

	// Reflex layer: a red pattern short-circuits everything downstream.
	if redCodes := e.patterns.Check(req.Task, req.Params); len(redCodes) > 0 {
		codes := make([]string, 0, len(redCodes))
		for _, c := range redCodes {
			codes = append(codes, "RED::"+c)
		}
		return e.finish(ctx, req, judgment{
			verdict:        contracts.VerdictVoid,
			pulse:          0,
			reasonCodes:    codes,
			floorTriggered: []string{floors.F1Amanah, floors.F9AntiHantu},
			class:          class,
			caller:         caller,
			redReflex:      true,
		})
	}

	floorResult := e.registry.Evaluate(ctx, req, caller, class)
	if ctx.Err() != nil {
		return e.finish(ctx, req, judgment{
			verdict:     contracts.VerdictVoid,
			pulse:       0,
			reasonCodes: []string{contracts.ReasonDeadlineExceeded},
			class:       class,
			caller:      caller,
		})
	}

	weights := waw.Compute(e.weights, floorResult, caller, class)
	verdict, pulse, reasonCodes := e.router.Route(floorResult, weights)

	return e.finish(ctx, req, judgment{
		verdict:        verdict,
		pulse:          pulse,
		reasonCodes:    reasonCodes,
		floorTriggered: floorResult.Triggered,
		warnings:       floorResult.Warnings(e.critical),
		class:          class,
		caller:         caller,
	})
}

// judgment carries the routed outcome into the recording stages.
type judgment struct {
	verdict        contracts.Verdict
	pulse          float64
	reasonCodes    []string
	floorTriggered []string
	warnings       int
	class          contracts.ActionClass
	caller         contracts.Caller
	redReflex      bool
}

// finish runs witness, constraints, explanation, receipt, ledger, and
// cooling, downgrading a permissive verdict to VOID when the ledger
// cannot record it.
func (e *Engine) finish(ctx context.Context, req *contracts.Request, j judgment) *contracts.Response {
	evidence := witness.RequiredEvidence(j.verdict, j.class, j.floorTriggered)
	constraints := e.constraintsFor(j)
	timestamp := e.now().Format(time.RFC3339Nano)

	var task string
	var params, reqContext map[string]any
	if req != nil {
		task = req.Task
		params = req.Params
		reqContext = req.Context
	}
	paramsHash := mustHash(params)
	contextHash := mustHash(reqContext)

	receiptID := e.mintReceipt(task, paramsHash, contextHash, timestamp, j)

	ledgerID, err := e.ledger.AppendAtomic(ctx, ledger.Record{
		Timestamp:        timestamp,
		Task:             task,
		ParamsHash:       paramsHash,
		ContextHash:      contextHash,
		Verdict:          j.verdict,
		ReasonCodes:      j.reasonCodes,
		FloorTriggered:   j.floorTriggered,
		RequiredEvidence: evidence,
		Constraints:      constraints,
		Caller:           j.caller,
		ActionClass:      j.class,
		ZKPCReceipt:      receiptID,
	})
	if err != nil {
		e.logger.Error("ledger append failed", "error", err, "verdict", j.verdict)
		if j.verdict == contracts.VerdictSeal || j.verdict == contracts.VerdictPartial {
			// Fail closed: a permission that cannot be recorded is no
			// permission at all.
			j.verdict = contracts.VerdictVoid
			j.pulse = 0
		}
		j.reasonCodes = append(j.reasonCodes, contracts.ReasonLedgerDown)
		evidence = witness.RequiredEvidence(j.verdict, j.class, j.floorTriggered)
		constraints = e.constraintsFor(j)
		receiptID = e.mintReceipt(task, paramsHash, contextHash, timestamp, j)
	}

	coolingID := ""
	if e.cooling != nil && err == nil {
		session := "anon"
		if req != nil {
			if s := req.ContextString("session_id"); s != "" {
				session = s
			}
		}
		amendment := j.class == contracts.ClassSelfModify
		if req != nil && req.ContextBool("amendment") {
			amendment = true
		}
		entry, coolErr := e.cooling.EnforceTier(session, ledgerID, j.verdict, j.warnings, amendment)
		if coolErr != nil {
			e.logger.Error("cooling enforcement failed", "error", coolErr)
		} else {
			coolingID = entry.EntryID
		}
	}

	resp := &contracts.Response{
		Verdict:          j.verdict,
		ApexPulse:        j.pulse,
		ReasonCodes:      j.reasonCodes,
		RequiredEvidence: evidence,
		Constraints:      constraints,
		FloorTriggered:   j.floorTriggered,
		ActionClass:      j.class,
		Caller:           j.caller,
		Explanation:      explain.Build(j.verdict, j.reasonCodes, evidence, constraints, j.floorTriggered),
		CoolingLedgerID:  coolingID,
		ZKPCReceipt:      receiptID,
		Timestamp:        timestamp,
	}
	e.logger.Info("verdict rendered",
		"verdict", resp.Verdict,
		"apex_pulse", resp.ApexPulse,
		"action_class", resp.ActionClass,
		"reason_codes", resp.ReasonCodes,
		"ledger_id", ledgerID,
	)
	return resp
}

func (e *Engine) mintReceipt(task, paramsHash, contextHash, timestamp string, j judgment) string {
	if e.receipts == nil {
		return ""
	}
	r, err := e.receipts.Generate(receipt.Snapshot{
		Task:             task,
		ParamsHash:       paramsHash,
		ContextHash:      contextHash,
		Verdict:          j.verdict,
		ApexPulse:        j.pulse,
		ReasonCodes:      j.reasonCodes,
		FloorTriggered:   j.floorTriggered,
		ActionClass:      j.class,
		ConstitutionHash: e.constitutionHash,
		Timestamp:        timestamp,
	})
	if err != nil {
		e.logger.Error("receipt generation failed", "error", err)
		return ""
	}
	return r.ReceiptID
}

// constraintsFor builds the execution constraint set. Order is fixed so
// responses and ledger entries are byte-stable.
func (e *Engine) constraintsFor(j judgment) []string {
	constraints := []string{contracts.ConstraintMaxExecTime, contracts.ConstraintNoSelfModify}
	if j.verdict != contracts.VerdictSeal {
		constraints = append(constraints, contracts.ConstraintNoExecution)
	}
	if j.redReflex {
		constraints = append(constraints, contracts.ConstraintNoExternalCalls)
	}
	switch j.class {
	case contracts.ClassDelete, contracts.ClassPay, contracts.ClassSelfModify:
		constraints = append(constraints, contracts.ConstraintHumanConfirmation)
	}
	return constraints
}

// failClosed produces the VOID response used for panics inside the
// pipeline. It bypasses the ledger deliberately: recording is retried by
// the caller, judgment safety comes first.
func (e *Engine) failClosed(req *contracts.Request, code string) *contracts.Response {
	caller := identity.ExtractCaller(nil)
	if req != nil {
		caller = identity.ExtractCaller(req.Context)
		if req.Caller != nil {
			caller = *req.Caller
		}
	}
	constraints := []string{
		contracts.ConstraintMaxExecTime,
		contracts.ConstraintNoSelfModify,
		contracts.ConstraintNoExecution,
	}
	return &contracts.Response{
		Verdict:     contracts.VerdictVoid,
		ApexPulse:   0,
		ReasonCodes: []string{code},
		Constraints: constraints,
		ActionClass: contracts.ClassReadOnly,
		Caller:      caller,
		Explanation: explain.Build(contracts.VerdictVoid, []string{code}, nil, constraints, nil),
		Timestamp:   e.now().Format(time.RFC3339Nano),
	}
}

func mustHash(v map[string]any) string {
	h, err := canonicalize.CanonicalHash(v)
	if err != nil {
		// Maps that defeat canonicalization still need a stable marker.
		return canonicalize.HashBytes([]byte(fmt.Sprintf("%v", v)))
	}
	return h
}
