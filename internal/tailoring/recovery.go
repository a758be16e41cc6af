package tailoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"jobtailor/internal/shared/storage/session"
	"jobtailor/internal/shared/telemetry"
)

// Route is a step of the tailoring flow.
type Route string

const (
	RouteNone       Route = ""
	RouteApp        Route = "app"
	RouteUpload     Route = "upload"
	RouteJobDetails Route = "job-details"
	RouteResults    Route = "results"
	RouteProfile    Route = "profile"
)

// ParseRoute accepts a bare step name or an /app/... path.
func ParseRoute(raw string) Route {
	raw = strings.Trim(strings.ToLower(strings.TrimSpace(raw)), "/")
	raw = strings.TrimPrefix(raw, "app/")
	switch raw {
	case "", "app":
		return RouteApp
	case "upload":
		return RouteUpload
	case "job-details", "job-description":
		return RouteJobDetails
	case "results":
		return RouteResults
	case "profile":
		return RouteProfile
	default:
		return Route(raw)
	}
}

// Keys are the two persisted snapshot keys for one origin namespace.
type Keys struct {
	Resume string
	Result string
}

// NewKeys derives the snapshot keys for namespace.
func NewKeys(namespace string) Keys {
	return Keys{
		Resume: namespace + ":currentResumeFile",
		Result: namespace + ":currentResult",
	}
}

// MemoryState is what the caller currently holds in memory.
type MemoryState struct {
	Resume  *ResumePayload
	Result  *TailoringResult
	Polling bool
}

// Snapshot is the reconciled state after a route entry.
type Snapshot struct {
	Resume     *ResumePayload
	Result     *TailoringResult
	Redirect   Route
	DiscardJob bool
}

// Recovery reconciles in-memory state with the persistent store.
type Recovery struct {
	store session.Store
	keys  Keys
}

// NewRecovery constructs a Recovery over store.
func NewRecovery(store session.Store, namespace string) *Recovery {
	return &Recovery{store: store, keys: NewKeys(namespace)}
}

// Reconcile runs once per route entry.
func (r *Recovery) Reconcile(ctx context.Context, route Route, mem MemoryState) (Snapshot, error) {
	snap := Snapshot{Resume: mem.Resume, Result: mem.Result}

	switch route {
	case RouteApp, RouteUpload:
		if err := r.ClearAll(ctx); err != nil {
			return Snapshot{}, err
		}
		return Snapshot{DiscardJob: true}, nil

	case RouteJobDetails:
		if err := r.store.Clear(ctx, r.keys.Result); err != nil {
			return Snapshot{}, fmt.Errorf("clear result: %w", err)
		}
		snap.Result = nil
		snap.DiscardJob = true
		if snap.Resume == nil {
			resume, ok := r.restoreResume(ctx)
			if !ok {
				snap.Redirect = RouteUpload
			}
			snap.Resume = resume
		}

	case RouteResults:
		if snap.Result == nil && !mem.Polling {
			result, ok := r.restoreResult(ctx)
			if !ok {
				snap.Redirect = RouteUpload
			}
			snap.Result = result
		}

	case RouteProfile:
		if snap.Result != nil {
			if err := r.SaveResult(ctx, snap.Result); err != nil {
				return Snapshot{}, err
			}
		}

	default:
		if snap.Resume == nil {
			snap.Resume, _ = r.restoreResume(ctx)
		}
	}
	return snap, nil
}

// SaveResume persists the resume snapshot.
func (r *Recovery) SaveResume(ctx context.Context, p *ResumePayload) error {
	data, err := p.MarshalSnapshot()
	if err != nil {
		return fmt.Errorf("encode resume snapshot: %w", err)
	}
	if err := r.store.Save(ctx, r.keys.Resume, data); err != nil {
		return fmt.Errorf("save resume: %w", err)
	}
	return nil
}

// SaveResult persists the result snapshot.
func (r *Recovery) SaveResult(ctx context.Context, result *TailoringResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result snapshot: %w", err)
	}
	if err := r.store.Save(ctx, r.keys.Result, data); err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

// ClearResult removes the result snapshot.
func (r *Recovery) ClearResult(ctx context.Context) error {
	if err := r.store.Clear(ctx, r.keys.Result); err != nil {
		return fmt.Errorf("clear result: %w", err)
	}
	return nil
}

// ClearAll removes both snapshots.
func (r *Recovery) ClearAll(ctx context.Context) error {
	if err := r.store.Clear(ctx, r.keys.Resume); err != nil {
		return fmt.Errorf("clear resume: %w", err)
	}
	return r.ClearResult(ctx)
}

func (r *Recovery) restoreResume(ctx context.Context) (*ResumePayload, bool) {
	data, err := r.store.Load(ctx, r.keys.Resume)
	if err != nil {
		r.logLoadFailure(r.keys.Resume, err)
		return nil, false
	}
	payload, err := UnmarshalResumeSnapshot(data)
	if err != nil {
		telemetry.Warn("session.resume_corrupt", map[string]any{"key": r.keys.Resume, "err": err.Error()})
		r.discard(ctx, r.keys.Resume)
		return nil, false
	}
	return payload, true
}

func (r *Recovery) restoreResult(ctx context.Context) (*TailoringResult, bool) {
	data, err := r.store.Load(ctx, r.keys.Result)
	if err != nil {
		r.logLoadFailure(r.keys.Result, err)
		return nil, false
	}
	var result TailoringResult
	if err := json.Unmarshal(data, &result); err != nil {
		telemetry.Warn("session.result_corrupt", map[string]any{"key": r.keys.Result, "err": err.Error()})
		r.discard(ctx, r.keys.Result)
		return nil, false
	}
	return &result, true
}

func (r *Recovery) logLoadFailure(key string, err error) {
	if errors.Is(err, session.ErrNotFound) {
		return
	}
	telemetry.Error("session.load_failed", map[string]any{"key": key, "err": err.Error()})
}

func (r *Recovery) discard(ctx context.Context, key string) {
	if err := r.store.Clear(ctx, key); err != nil {
		telemetry.Error("session.clear_failed", map[string]any{"key": key, "err": err.Error()})
	}
}
