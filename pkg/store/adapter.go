package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/regions/internal/logging"
	"github.com/aretw0/regions/pkg/domain"
	"github.com/aretw0/regions/pkg/identity"
	"github.com/aretw0/regions/pkg/ports"
	"github.com/cespare/xxhash/v2"
	"github.com/mitchellh/mapstructure"
)

// Match is a record located in the store together with its derived uid.
type Match struct {
	Index  int
	UID    string
	Record domain.Record
}

// Adapter addresses the records of one tool on one surface by uid.
type Adapter struct {
	records  ports.RecordStore
	redrawer ports.Redrawer
	surface  string
	tool     string

	fields       []string
	legacy       bool
	redrawPasses int
	generator    identity.Generator
	logger       *slog.Logger
	hooks        domain.LifecycleHooks

	mu   sync.Mutex
	side map[int]sideEntry
}

// sideEntry is a uid the store refused to persist, pinned to the record
// contents it was assigned to.
type sideEntry struct {
	uid         string
	fingerprint uint64
}

func fingerprint(rec domain.Record) uint64 {
	b, err := json.Marshal(rec.Data)
	if err != nil {
		b = []byte(fmt.Sprint(rec.Data))
	}
	return xxhash.Sum64(b)
}

// Option configures the Adapter.
type Option func(*Adapter)

// WithIdentityFields sets the ordered list of record fields probed for a uid.
// Dotted names address nested maps. The canonical field is always probed first.
func WithIdentityFields(fields ...string) Option {
	return func(a *Adapter) {
		a.fields = normalizeFields(fields)
	}
}

// WithLegacyRemoval enables or disables the single-record and rebuild removal tiers.
func WithLegacyRemoval(enabled bool) Option {
	return func(a *Adapter) {
		a.legacy = enabled
	}
}

// WithRedrawPasses sets how many redraw requests are issued per commit.
// Engines that need more than one pass to converge are handled here and
// nowhere else.
func WithRedrawPasses(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.redrawPasses = n
		}
	}
}

// WithGenerator sets the generator used for synthetic uids.
func WithGenerator(g identity.Generator) Option {
	return func(a *Adapter) {
		a.generator = g
	}
}

// WithLogger configures a logger for the Adapter.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(a *Adapter) {
		a.hooks = hooks
	}
}

// New creates an adapter for the tool's records on surface.
// redrawer may be nil when no repaint is needed.
func New(records ports.RecordStore, redrawer ports.Redrawer, surface, tool string, opts ...Option) *Adapter {
	a := &Adapter{
		records:      records,
		redrawer:     redrawer,
		surface:      surface,
		tool:         tool,
		fields:       normalizeFields(domain.DefaultIdentityFields),
		legacy:       true,
		redrawPasses: 1,
		generator:    identity.NewGenerator(),
		logger:       logging.NewNop(),
		side:         make(map[int]sideEntry),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// IdentityOf returns the first identity field present on rec.
func (a *Adapter) IdentityOf(rec domain.Record) (string, bool) {
	for _, field := range a.fields {
		v, ok := lookup(rec.Data, field)
		if !ok || v == nil {
			continue
		}
		var uid string
		if err := mapstructure.WeakDecode(v, &uid); err != nil || uid == "" {
			continue
		}
		return uid, true
	}
	return "", false
}

// Records returns the current store contents. Side table entries are
// realigned with what the store now holds, so records removed or moved by
// the engine itself do not pass their uid on to a neighbour.
func (a *Adapter) Records(ctx context.Context) ([]domain.Record, error) {
	recs, err := a.records.Records(ctx, a.surface, a.tool)
	if err != nil {
		return nil, fmt.Errorf("failed to read store records: %w", err)
	}
	a.realignSide(recs)
	return recs, nil
}

// FindByUID returns the first record whose identity is uid.
func (a *Adapter) FindByUID(ctx context.Context, uid string) (Match, bool, error) {
	recs, err := a.Records(ctx)
	if err != nil {
		return Match{}, false, err
	}
	idx := a.indicesOf(recs, uid)
	if len(idx) == 0 {
		return Match{}, false, nil
	}
	return Match{Index: idx[0], UID: uid, Record: recs[idx[0]]}, true, nil
}

// Count returns how many records carry uid.
func (a *Adapter) Count(ctx context.Context, uid string) (int, error) {
	recs, err := a.Records(ctx)
	if err != nil {
		return 0, err
	}
	return len(a.indicesOf(recs, uid)), nil
}

// Append adds rec to the store and returns its index.
func (a *Adapter) Append(ctx context.Context, rec domain.Record) (int, error) {
	recs, err := a.Records(ctx)
	if err != nil {
		return -1, err
	}
	if err := a.records.AddRecord(ctx, a.surface, a.tool, rec); err != nil {
		return -1, fmt.Errorf("failed to add store record: %w", err)
	}
	return len(recs), nil
}

// Stamp writes uid into the canonical identity field of the record at index.
// If the store refuses the write, uid is kept in the side table instead.
func (a *Adapter) Stamp(ctx context.Context, index int, uid string) error {
	recs, err := a.Records(ctx)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(recs) {
		return fmt.Errorf("stamp %s at %d: %w", uid, index, domain.ErrIndexOutOfRange)
	}

	rec := recs[index].Clone()
	rec.Data[domain.FieldUID] = uid
	if err := a.records.ReplaceRecord(ctx, a.surface, a.tool, index, rec); err != nil {
		a.logger.Debug("Store rejected uid stamp, using side table",
			"uid", uid,
			"index", index,
			"err", err,
		)
		a.mu.Lock()
		a.side[index] = sideEntry{uid: uid, fingerprint: fingerprint(recs[index])}
		a.mu.Unlock()
	}
	return nil
}

// Entries returns every record with its derived uid, in store order. Records
// without any identity get a synthetic uid that is stamped so later calls see
// the same value.
func (a *Adapter) Entries(ctx context.Context) ([]Match, error) {
	recs, err := a.Records(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(recs))
	for i, rec := range recs {
		if uid, ok := a.IdentityAt(i, rec); ok {
			seen[uid] = struct{}{}
		}
	}

	stamped := false
	for i, rec := range recs {
		if _, ok := a.IdentityAt(i, rec); ok {
			continue
		}
		uid := identity.Fresh(a.generator, func(s string) bool {
			_, taken := seen[s]
			return taken
		})
		seen[uid] = struct{}{}
		if err := a.Stamp(ctx, i, uid); err != nil {
			return nil, err
		}
		stamped = true
		a.logger.Debug("Assigned synthetic uid", "uid", uid, "index", i)
	}
	if stamped {
		if recs, err = a.Records(ctx); err != nil {
			return nil, err
		}
	}

	out := make([]Match, 0, len(recs))
	for i, rec := range recs {
		uid, ok := a.IdentityAt(i, rec)
		if !ok {
			// Appended by the engine between the two reads; picked up next pass.
			continue
		}
		out = append(out, Match{Index: i, UID: uid, Record: rec})
	}
	return out, nil
}

// RemoveByUID removes uid from the store. It returns false when the store is
// empty or no tier could confirm the removal.
func (a *Adapter) RemoveByUID(ctx context.Context, uid string) (bool, error) {
	recs, err := a.Records(ctx)
	if err != nil {
		return false, err
	}
	if len(recs) == 0 {
		return false, nil
	}

	matches := a.indicesOf(recs, uid)
	if len(matches) > 0 {
		if ok, err := a.removeExact(ctx, uid, matches); err != nil {
			return false, err
		} else if ok {
			return a.commitRemoval(ctx, uid, domain.TierExact)
		}
		if !a.legacy {
			return false, nil
		}
		ok, err := a.rebuildExcluding(ctx, uid)
		if err != nil || !ok {
			return false, err
		}
		return a.commitRemoval(ctx, uid, domain.TierRebuild)
	}

	if a.legacy && len(recs) == 1 {
		if _, has := a.IdentityAt(0, recs[0]); !has {
			if err := a.clear(ctx); err != nil {
				return false, err
			}
			rest, err := a.Records(ctx)
			if err != nil {
				return false, err
			}
			if len(rest) == 0 {
				return a.commitRemoval(ctx, uid, domain.TierSingleRecord)
			}
		}
	}

	a.logger.Debug("Identity miss on remove", "uid", uid, "records", len(recs))
	return false, nil
}

// ActivateByUID marks the matching record active and visible and every other
// record inactive, then redraws. It returns false when no record matches.
func (a *Adapter) ActivateByUID(ctx context.Context, uid string) (bool, error) {
	recs, err := a.Records(ctx)
	if err != nil {
		return false, err
	}
	matches := a.indicesOf(recs, uid)
	if len(matches) == 0 {
		a.logger.Debug("Identity miss on activate", "uid", uid, "records", len(recs))
		return false, nil
	}

	target := matches[0]
	err = a.update(ctx, recs, func(i int, rec *domain.Record) {
		rec.Active = i == target
		if rec.Active {
			rec.Visible = true
		}
	})
	if err != nil {
		return false, err
	}
	return true, a.Redraw()
}

// SetAllVisible restores the visible flag on every record, then redraws.
// Some engines hide sibling annotations as a side effect of mutating one of
// them. RemoveByUID already does this before its own redraw.
func (a *Adapter) SetAllVisible(ctx context.Context) error {
	if err := a.showAll(ctx); err != nil {
		return err
	}
	return a.Redraw()
}

func (a *Adapter) showAll(ctx context.Context) error {
	recs, err := a.Records(ctx)
	if err != nil {
		return err
	}
	return a.update(ctx, recs, func(_ int, rec *domain.Record) {
		rec.Visible = true
	})
}

// Passivate makes every record visible and inactive, then redraws.
func (a *Adapter) Passivate(ctx context.Context) error {
	recs, err := a.Records(ctx)
	if err != nil {
		return err
	}
	err = a.update(ctx, recs, func(_ int, rec *domain.Record) {
		rec.Visible = true
		rec.Active = false
	})
	if err != nil {
		return err
	}
	return a.Redraw()
}

// Clear empties the store.
func (a *Adapter) Clear(ctx context.Context) error {
	return a.clear(ctx)
}

// Redraw issues the configured number of redraw requests.
func (a *Adapter) Redraw() error {
	if a.redrawer == nil {
		return nil
	}
	for i := 0; i < a.redrawPasses; i++ {
		if err := a.redrawer.Redraw(a.surface); err != nil {
			return fmt.Errorf("redraw failed: %w", err)
		}
	}
	return nil
}

func (a *Adapter) removeExact(ctx context.Context, uid string, matches []int) (bool, error) {
	splicer, ok := a.records.(ports.Splicer)
	if !ok {
		return false, nil
	}

	a.mu.Lock()
	saved := maps.Clone(a.side)
	a.mu.Unlock()

	desc := append([]int(nil), matches...)
	sort.Sort(sort.Reverse(sort.IntSlice(desc)))
	for _, i := range desc {
		if err := splicer.RemoveRecordAt(ctx, a.surface, a.tool, i); err != nil {
			a.logger.Debug("Splice failed", "uid", uid, "index", i, "err", err)
			a.restoreSide(saved)
			return false, nil
		}
		a.shiftSide(i)
	}

	gone, err := a.confirmGone(ctx, uid)
	if err != nil || !gone {
		a.restoreSide(saved)
	}
	return gone, err
}

func (a *Adapter) restoreSide(saved map[int]sideEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.side = saved
}

func (a *Adapter) rebuildExcluding(ctx context.Context, uid string) (bool, error) {
	recs, err := a.Records(ctx)
	if err != nil {
		return false, err
	}

	keep := make([]domain.Record, 0, len(recs))
	keepSide := make(map[int]sideEntry)
	for i, rec := range recs {
		if id, ok := a.IdentityAt(i, rec); ok && id == uid {
			continue
		}
		a.mu.Lock()
		if e, ok := a.side[i]; ok {
			keepSide[len(keep)] = e
		}
		a.mu.Unlock()
		keep = append(keep, rec)
	}
	if len(keep) == len(recs) {
		return true, nil
	}

	if err := a.clear(ctx); err != nil {
		return false, err
	}
	for _, rec := range keep {
		if err := a.records.AddRecord(ctx, a.surface, a.tool, rec); err != nil {
			return false, fmt.Errorf("failed to restore store record: %w", err)
		}
	}
	a.mu.Lock()
	a.side = keepSide
	a.mu.Unlock()

	return a.confirmGone(ctx, uid)
}

func (a *Adapter) commitRemoval(ctx context.Context, uid string, tier domain.RemovalTier) (bool, error) {
	if a.hooks.OnRemovalTier != nil {
		a.hooks.OnRemovalTier(ctx, &domain.RemovalEvent{
			EventBase: domain.NewEventBase(domain.EventRemovalTier, a.surface),
			UID:       uid,
			Tier:      tier,
		})
	}
	a.logger.Debug("Removed record", "uid", uid, "tier", tier.String())
	if err := a.showAll(ctx); err != nil {
		a.logger.Warn("Failed to restore visibility after removal", "uid", uid, "err", err)
	}
	return true, a.Redraw()
}

func (a *Adapter) confirmGone(ctx context.Context, uid string) (bool, error) {
	n, err := a.Count(ctx, uid)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

func (a *Adapter) clear(ctx context.Context) error {
	if err := a.records.ClearStore(ctx, a.surface, a.tool); err != nil {
		return fmt.Errorf("failed to clear store: %w", err)
	}
	a.mu.Lock()
	a.side = make(map[int]sideEntry)
	a.mu.Unlock()
	return nil
}

// update applies fn to each record and writes back only the ones that changed.
func (a *Adapter) update(ctx context.Context, recs []domain.Record, fn func(int, *domain.Record)) error {
	for i, rec := range recs {
		next := rec
		fn(i, &next)
		if next.Active == rec.Active && next.Visible == rec.Visible {
			continue
		}
		if err := a.records.ReplaceRecord(ctx, a.surface, a.tool, i, next); err != nil {
			return fmt.Errorf("failed to update store record %d: %w", i, err)
		}
	}
	return nil
}

// IdentityAt returns the uid of rec read from position i, consulting the side
// table when no identity field is present.
func (a *Adapter) IdentityAt(i int, rec domain.Record) (string, bool) {
	if uid, ok := a.IdentityOf(rec); ok {
		return uid, true
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.side[i]
	if !ok || e.fingerprint != fingerprint(rec) {
		return "", false
	}
	return e.uid, true
}

func (a *Adapter) indicesOf(recs []domain.Record, uid string) []int {
	var out []int
	for i, rec := range recs {
		if id, ok := a.IdentityAt(i, rec); ok && id == uid {
			out = append(out, i)
		}
	}
	return out
}

func (a *Adapter) shiftSide(removed int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	next := make(map[int]sideEntry, len(a.side))
	for i, e := range a.side {
		switch {
		case i < removed:
			next[i] = e
		case i > removed:
			next[i-1] = e
		}
	}
	a.side = next
}

// realignSide keeps each side entry on the record it was assigned to. An
// entry whose record moved is followed towards the front of the store, the
// only direction an external removal shifts records. Entries whose record is
// gone are dropped.
func (a *Adapter) realignSide(recs []domain.Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.side) == 0 {
		return
	}

	prints := make([]uint64, len(recs))
	for i, rec := range recs {
		prints[i] = fingerprint(rec)
	}

	indices := make([]int, 0, len(a.side))
	for i := range a.side {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	next := make(map[int]sideEntry, len(a.side))
	floor := 0
	for _, i := range indices {
		e := a.side[i]
		found := false
		for j := min(i, len(recs)-1); j >= floor; j-- {
			if prints[j] != e.fingerprint {
				continue
			}
			if _, has := a.IdentityOf(recs[j]); has {
				continue
			}
			next[j] = e
			floor = j + 1
			found = true
			break
		}
		if !found {
			a.logger.Debug("Dropped side table uid for vanished record", "uid", e.uid, "index", i)
		}
	}
	a.side = next
}

func normalizeFields(fields []string) []string {
	out := []string{domain.FieldUID}
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" || f == domain.FieldUID {
			continue
		}
		out = append(out, f)
	}
	return out
}

func lookup(data map[string]any, path string) (any, bool) {
	var cur any = data
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
