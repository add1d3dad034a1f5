package intake

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/chainledger/musicgraph/domain/bundle"
	"github.com/chainledger/musicgraph/domain/claim"
	"github.com/chainledger/musicgraph/domain/graph"
	"github.com/chainledger/musicgraph/domain/merge"
	"github.com/chainledger/musicgraph/domain/project"
	"github.com/chainledger/musicgraph/domain/role"
	"github.com/chainledger/musicgraph/infrastructure/eventstore"
	"github.com/chainledger/musicgraph/infrastructure/graphstore"
	"github.com/chainledger/musicgraph/infrastructure/metrics"
	"github.com/chainledger/musicgraph/internal/apperr"
	"github.com/chainledger/musicgraph/internal/logging"
)

// Payload "type" values of the "put" class of anchored events: dispatch
// within that class is by the payload's own "type" field (spec §4.8 step
// 2: "put → CREATE_RELEASE_BUNDLE | ADD_CLAIM | EDIT_CLAIM | MERGE_ENTITY
// (discriminated by the payload type/shape)").
const (
	TypeCreateReleaseBundle = "CREATE_RELEASE_BUNDLE"
	TypeAddClaim            = "ADD_CLAIM"
	TypeEditClaim           = "EDIT_CLAIM"
	TypeMergeEntity         = "MERGE_ENTITY"
)

const (
	actionNamePut      = "put"
	actionNameVote     = "vote"
	actionNameFinalize = "finalize"
)

// Status is the outcome of one Handle call.
type Status string

const (
	StatusOK        Status = "ok"
	StatusDuplicate Status = "duplicate"
	StatusStored    Status = "stored" // governance: stored, not projected
)

// Outcome is returned by Handle.
type Outcome struct {
	Status    Status
	EventHash string
	ReleaseID string // set only for CREATE_RELEASE_BUNDLE
}

// mergeEntityPayload/addClaimPayload/editClaimPayload are the decoded
// shapes of the three non-bundle "put" payloads.
type addClaimPayload struct {
	Target struct {
		Kind string `json:"kind"`
		ID   string `json:"id"`
	} `json:"target"`
	Field  string `json:"field"`
	Value  any    `json:"value"`
	Source string `json:"source"`
	Author string `json:"author"`
}

type editClaimPayload struct {
	ClaimID string `json:"claim_id"`
	Value   any    `json:"value"`
	Source  string `json:"source"`
	Author  string `json:"author"`
}

type mergeEntityPayload struct {
	SurvivorID  string   `json:"survivor_id"`
	AbsorbedIDs []string `json:"absorbed_ids"`
	Kind        string   `json:"kind"`
}

// Intake is the Anchored-Event Intake component (spec §4.8).
type Intake struct {
	store     graphstore.Store
	events    eventstore.Store
	dedup     dedupCache
	projector *project.Projector
	claims    *claim.Engine
	merges    *merge.Engine
	roleTable role.Table
	metrics   *metrics.Metrics
	log       *logging.Logger
}

// dedupCache is the narrow interface intake needs from
// infrastructure/dedupcache, so tests can swap in a fake without an import
// cycle.
type dedupCache interface {
	Seen(hash string) bool
	Mark(hash string)
}

// New builds an Intake component.
func New(store graphstore.Store, events eventstore.Store, dedup dedupCache, roleTable role.Table, m *metrics.Metrics) *Intake {
	return &Intake{
		store:     store,
		events:    events,
		dedup:     dedup,
		projector: project.New(store, roleTable),
		claims:    claim.New(),
		merges:    merge.New(),
		roleTable: roleTable,
		metrics:   m,
		log:       logging.NewFromEnv("intake"),
	}
}

// Handle implements intake(event) (spec §4.8). It is idempotent:
// intake(intake(E)) == intake(E), and the second call returns
// StatusDuplicate.
func (in *Intake) Handle(ctx context.Context, ev AnchoredEvent) (Outcome, error) {
	if in.dedup.Seen(ev.ContentHash) {
		return Outcome{Status: StatusDuplicate}, nil
	}
	if stored, found, err := in.events.GetEvent(ctx, ev.ContentHash); err != nil {
		return Outcome{}, apperr.Wrap(apperr.CodeTransientGraph, "failed to read event store", err)
	} else if found && stored.Status != eventstore.StatusFailed {
		in.dedup.Mark(ev.ContentHash)
		return Outcome{Status: StatusDuplicate}, nil
	}

	eventHash, err := ComputeEventHash(ev)
	if err != nil {
		return Outcome{}, apperr.Wrap(apperr.CodeValidation, "failed to compute event hash", err)
	}

	switch ev.ActionName {
	case actionNameVote, actionNameFinalize:
		return in.recordGovernance(ctx, ev, eventHash)
	case actionNamePut:
		return in.handlePut(ctx, ev, eventHash)
	default:
		return in.fail(ctx, ev, eventHash, apperr.New(apperr.CodeValidation, "unknown action_name: "+ev.ActionName))
	}
}

func (in *Intake) handlePut(ctx context.Context, ev AnchoredEvent, eventHash string) (Outcome, error) {
	opType := strings.ToUpper(strings.TrimSpace(gjson.Get(ev.Payload, "type").String()))

	start := time.Now()
	var out Outcome
	var err error

	switch opType {
	case TypeCreateReleaseBundle:
		out, err = in.dispatchCreateReleaseBundle(ctx, ev, eventHash)
	case TypeAddClaim:
		out, err = in.dispatchAddClaim(ctx, ev, eventHash)
	case TypeEditClaim:
		out, err = in.dispatchEditClaim(ctx, ev, eventHash)
	case TypeMergeEntity:
		out, err = in.dispatchMergeEntity(ctx, ev, eventHash)
	default:
		err = apperr.New(apperr.CodeValidation, "unrecognized payload type: "+opType)
	}

	duration := time.Since(start)
	if err != nil {
		return in.fail(ctx, ev, eventHash, err)
	}

	if putErr := in.events.PutEvent(ctx, eventstore.Event{
		ContentHash:        ev.ContentHash,
		Payload:            ev.Payload,
		BlockNum:           ev.BlockNum,
		BlockID:            ev.BlockID,
		TrxID:              ev.TrxID,
		ActionOrdinal:      ev.ActionOrdinal,
		Timestamp:          time.Unix(ev.Timestamp, 0).UTC(),
		Source:             ev.Source,
		ContractAccount:    ev.ContractAccount,
		ActionName:         ev.ActionName,
		EventHash:          eventHash,
		BlockchainVerified: true,
		Status:             eventstore.StatusProcessed,
		ProcessedAt:        time.Now().UTC(),
	}); putErr != nil {
		return Outcome{}, apperr.Wrap(apperr.CodeTransientGraph, "failed to persist processed event", putErr)
	}

	in.dedup.Mark(ev.ContentHash)
	if in.metrics != nil {
		in.metrics.RecordEventProcessed(ev.ActionName, duration)
	}
	out.Status = StatusOK
	out.EventHash = eventHash
	return out, nil
}

func (in *Intake) dispatchCreateReleaseBundle(ctx context.Context, ev AnchoredEvent, eventHash string) (Outcome, error) {
	b, err := bundle.Normalize([]byte(ev.Payload), in.roleTable)
	if err != nil {
		return Outcome{}, err
	}
	if err := bundle.Validate([]byte(ev.Payload), b); err != nil {
		return Outcome{}, err
	}
	result, err := in.projector.ProjectBundle(ctx, eventHash, b, ev.Source, ev.Timestamp)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{ReleaseID: result.ReleaseID}, nil
}

func (in *Intake) dispatchAddClaim(ctx context.Context, ev AnchoredEvent, eventHash string) (Outcome, error) {
	var p addClaimPayload
	if err := json.Unmarshal([]byte(ev.Payload), &p); err != nil {
		return Outcome{}, apperr.Wrap(apperr.CodeValidation, "failed to decode ADD_CLAIM payload", err)
	}
	kind, ok := graph.ParseKind(p.Target.Kind)
	if !ok {
		return Outcome{}, apperr.New(apperr.CodeUnknownKind, "unknown claim target kind: "+p.Target.Kind)
	}

	tx, err := in.store.Begin(ctx)
	if err != nil {
		return Outcome{}, apperr.Wrap(apperr.CodeTransientGraph, "failed to open transaction", err)
	}
	if _, err := in.claims.AddClaim(ctx, tx, eventHash, claim.AddInput{
		Target: claim.Target{Kind: kind, ID: p.Target.ID},
		Field:  p.Field, Value: p.Value, Source: p.Source, Author: p.Author,
	}); err != nil {
		_ = tx.Rollback(ctx)
		return Outcome{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Outcome{}, apperr.Wrap(apperr.CodeTransientGraph, "failed to commit claim", err)
	}
	if in.metrics != nil {
		in.metrics.RecordClaim("add")
	}
	return Outcome{}, nil
}

func (in *Intake) dispatchEditClaim(ctx context.Context, ev AnchoredEvent, eventHash string) (Outcome, error) {
	var p editClaimPayload
	if err := json.Unmarshal([]byte(ev.Payload), &p); err != nil {
		return Outcome{}, apperr.Wrap(apperr.CodeValidation, "failed to decode EDIT_CLAIM payload", err)
	}

	tx, err := in.store.Begin(ctx)
	if err != nil {
		return Outcome{}, apperr.Wrap(apperr.CodeTransientGraph, "failed to open transaction", err)
	}
	if _, err := in.claims.EditClaim(ctx, tx, eventHash, claim.EditInput{
		ClaimID: p.ClaimID, Value: p.Value, Source: p.Source, Author: p.Author,
	}); err != nil {
		_ = tx.Rollback(ctx)
		return Outcome{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Outcome{}, apperr.Wrap(apperr.CodeTransientGraph, "failed to commit claim edit", err)
	}
	if in.metrics != nil {
		in.metrics.RecordClaim("edit")
	}
	return Outcome{}, nil
}

func (in *Intake) dispatchMergeEntity(ctx context.Context, ev AnchoredEvent, eventHash string) (Outcome, error) {
	var p mergeEntityPayload
	if err := json.Unmarshal([]byte(ev.Payload), &p); err != nil {
		return Outcome{}, apperr.Wrap(apperr.CodeValidation, "failed to decode MERGE_ENTITY payload", err)
	}
	kind, ok := graph.ParseKind(p.Kind)
	if !ok {
		return Outcome{}, apperr.New(apperr.CodeUnknownKind, "unknown merge target kind: "+p.Kind)
	}

	tx, err := in.store.Begin(ctx)
	if err != nil {
		return Outcome{}, apperr.Wrap(apperr.CodeTransientGraph, "failed to open transaction", err)
	}
	records, err := in.merges.MergeEntities(ctx, tx, eventHash, merge.Input{
		SurvivorID: p.SurvivorID, AbsorbedIDs: p.AbsorbedIDs, Kind: kind,
	})
	if err != nil {
		_ = tx.Rollback(ctx)
		return Outcome{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Outcome{}, apperr.Wrap(apperr.CodeTransientGraph, "failed to commit merge", err)
	}
	if in.metrics != nil {
		for range records {
			in.metrics.MergesTotal.Inc()
		}
	}
	return Outcome{}, nil
}

// fail marks ev failed in the event store with its error code, whatever that
// code is; the event is stored but not projected. No error code is treated
// as permanent here: the reconciliation sweep re-submits every failed event,
// transient or not.
func (in *Intake) fail(ctx context.Context, ev AnchoredEvent, eventHash string, cause error) (Outcome, error) {
	status := eventstore.StatusFailed
	code := "unknown"
	if ge, ok := cause.(*apperr.GraphError); ok {
		code = string(ge.Code)
	}

	_ = in.events.PutEvent(ctx, eventstore.Event{
		ContentHash:        ev.ContentHash,
		Payload:            ev.Payload,
		BlockNum:           ev.BlockNum,
		BlockID:            ev.BlockID,
		TrxID:              ev.TrxID,
		ActionOrdinal:      ev.ActionOrdinal,
		Timestamp:          time.Unix(ev.Timestamp, 0).UTC(),
		Source:             ev.Source,
		ContractAccount:    ev.ContractAccount,
		ActionName:         ev.ActionName,
		EventHash:          eventHash,
		BlockchainVerified: true,
		Status:             status,
		LastError:          cause.Error(),
	})

	if in.metrics != nil {
		in.metrics.RecordEventFailed(code)
	}
	in.log.WithContext(ctx).WithError(cause).Warn("anchored event failed")
	return Outcome{}, cause
}
