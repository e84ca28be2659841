// Package draft persists in-progress form aggregates between edit sessions.
// A record's draft lives under "<namespace>:<form>:<recordID>"; when no draft
// exists the caller falls back to the backend record or the form defaults.
package draft

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"lims-forms/internal/form"
)

const DefaultNamespace = "lims"

// Drafts saves and restores aggregates in a Store.
type Drafts struct {
	store     Store
	namespace string
	logger    *zap.Logger
}

func New(s Store, namespace string, logger *zap.Logger) *Drafts {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Drafts{store: s, namespace: namespace, logger: logger}
}

// Key returns the storage key of a record's draft.
func (d *Drafts) Key(formName, recordID string) string {
	return strings.Join([]string{d.namespace, formName, recordID}, ":")
}

// Load returns the saved draft of a record. A missing or unreadable draft
// reports false; unreadable drafts are logged and otherwise ignored.
func (d *Drafts) Load(ctx context.Context, formName, recordID string) (*form.Aggregate, bool) {
	key := d.Key(formName, recordID)
	raw, ok, err := d.store.Get(ctx, key)
	if err != nil {
		d.logger.Warn("draft read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var agg form.Aggregate
	if err := json.Unmarshal(raw, &agg); err != nil {
		d.logger.Warn("draft corrupt, ignoring", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if agg.Form != "" && agg.Form != formName {
		d.logger.Warn("draft belongs to another form, ignoring",
			zap.String("key", key), zap.String("form", agg.Form))
		return nil, false
	}
	return &agg, true
}

// Save stores agg under the record's key.
func (d *Drafts) Save(ctx context.Context, recordID string, agg *form.Aggregate) error {
	data, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	return d.store.Put(ctx, d.Key(agg.Form, recordID), data)
}

// Discard removes a record's draft.
func (d *Drafts) Discard(ctx context.Context, formName, recordID string) error {
	return d.store.Delete(ctx, d.Key(formName, recordID))
}
