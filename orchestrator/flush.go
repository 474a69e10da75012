package orchestrator

import (
	"context"
	"fmt"

	"github.com/pragnyanramtha/longmem/core"
)

// Flush runs the flush procedure: gather the current window's turns, distill
// a delta, apply it, reset the context window keeping its tail, and advance
// segment_start_turn. It is identical whether triggered by the context
// window crossing its threshold or invoked directly as a manual-flush
// command.
//
// Flushing an empty window (segment_start_turn > current_turn_id) is a
// no-op: GetTurnRange returns nothing, the distiller is not called, and no
// state changes except total_flushes, which is also left untouched so a
// repeated manual flush of an already-flushed segment is truly inert.
func (o *Orchestrator) Flush(ctx context.Context) error {
	if o.segmentStartTurn > o.currentTurnID {
		return nil
	}

	window, err := o.store.GetTurnRange(ctx, o.segmentStartTurn, o.currentTurnID)
	if err != nil {
		return fmt.Errorf("orchestrator: flush: gather window: %w", err)
	}

	active, err := o.store.GetActive(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: flush: get active: %w", err)
	}

	delta, err := o.distill.Distill(ctx, window, active)
	if err != nil {
		// DistillParseError is logged by the distiller itself and treated
		// as an empty delta; the context is still reset below to avoid
		// runaway growth, per the error taxonomy.
		o.log.Warn().Err(err).Msg("orchestrator: flush: distillation degraded to empty delta")
	}

	if err := o.applyDelta(ctx, delta); err != nil {
		return fmt.Errorf("orchestrator: flush: apply delta: %w", err)
	}

	if err := o.window.FlushToTail(); err != nil {
		return fmt.Errorf("orchestrator: flush: reset context window: %w", err)
	}
	o.segmentStartTurn = o.currentTurnID + 1
	o.totalFlushes++
	return nil
}

// applyDelta applies each distilled action in order. A duplicate-key error
// on add is converted to an update of the existing active row, per the
// error taxonomy. Preference-typed adds/updates also upsert the profile
// projection.
func (o *Orchestrator) applyDelta(ctx context.Context, delta core.Delta) error {
	for _, action := range delta.Actions {
		switch action.Action {
		case core.ActionAdd:
			if err := o.applyAdd(ctx, action); err != nil {
				return err
			}
		case core.ActionUpdate:
			if err := o.applyUpdate(ctx, action); err != nil {
				return err
			}
		case core.ActionExpire:
			if err := o.store.Expire(ctx, action.TargetID); err != nil {
				return fmt.Errorf("expire %s: %w", action.TargetID, err)
			}
		case core.ActionKeep:
			// No mutation; keep means the memory remains as-is.
		}
	}
	return nil
}

func (o *Orchestrator) applyAdd(ctx context.Context, action core.DistilledMemory) error {
	embedding, err := o.embed.Embed(ctx, action.Value)
	if err != nil {
		o.log.Warn().Err(err).Msg("orchestrator: flush: embed add failed, storing without a vector")
		embedding = nil
	}

	mem := core.Memory{
		Type:       action.Type,
		Category:   action.Category,
		Key:        action.Key,
		Value:      action.Value,
		SourceTurn: o.currentTurnID,
		Confidence: action.Confidence,
		IsActive:   true,
	}

	id, err := o.store.Add(ctx, mem, embedding)
	if err != nil {
		if existing, lookupErr := o.findActiveByKey(ctx, action.Key); lookupErr == nil && existing != nil {
			return o.applyUpdate(ctx, core.DistilledMemory{
				TargetID:   existing.ID,
				Value:      action.Value,
				Confidence: action.Confidence,
			})
		}
		return fmt.Errorf("add %q: %w", action.Key, err)
	}

	if action.Type == core.MemoryTypePreference {
		if err := o.store.ProfileUpsert(ctx, action.Key, action.Value, o.currentTurnID); err != nil {
			return fmt.Errorf("profile upsert %q: %w", action.Key, err)
		}
	}
	o.log.Debug().Str("id", id).Str("key", action.Key).Msg("orchestrator: flush: memory added")
	return nil
}

func (o *Orchestrator) applyUpdate(ctx context.Context, action core.DistilledMemory) error {
	target, err := o.store.GetByID(ctx, action.TargetID)
	if err != nil {
		return fmt.Errorf("update %s: %w", action.TargetID, err)
	}

	var fields core.UpdateFields
	var newEmbedding []float32
	if action.Value != "" {
		fields.Value = &action.Value
		embedding, err := o.embed.Embed(ctx, action.Value)
		if err != nil {
			o.log.Warn().Err(err).Msg("orchestrator: flush: embed update failed, keeping prior vector")
		} else {
			newEmbedding = embedding
		}
	}
	if action.Confidence > 0 {
		fields.Confidence = &action.Confidence
	}

	if err := o.store.Update(ctx, action.TargetID, fields, newEmbedding); err != nil {
		return fmt.Errorf("update %s: %w", action.TargetID, err)
	}
	o.log.Debug().Str("id", action.TargetID).Str("key", target.Key).Msg("orchestrator: flush: memory coalesced by update")

	if target.Type == core.MemoryTypePreference && action.Value != "" {
		if err := o.store.ProfileUpsert(ctx, target.Key, action.Value, o.currentTurnID); err != nil {
			return fmt.Errorf("profile upsert %q: %w", target.Key, err)
		}
	}
	return nil
}

func (o *Orchestrator) findActiveByKey(ctx context.Context, key string) (*core.Memory, error) {
	active, err := o.store.GetActive(ctx)
	if err != nil {
		return nil, err
	}
	for i := range active {
		if active[i].Key == key {
			return &active[i], nil
		}
	}
	return nil, core.ErrNotFound
}
