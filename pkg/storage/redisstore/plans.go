package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/modgraph/pkg/impact"
	"github.com/platinummonkey/modgraph/pkg/modules"
)

const maxTransitionAttempts = 5

// PlanStore persists propagation plans as JSON values, with a sorted set
// indexing them by creation time. Transitions use WATCH/MULTI so concurrent
// callers cannot both move a plan out of the same state.
type PlanStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewPlanStore(client *redis.Client) *PlanStore {
	return &PlanStore{client: client, now: time.Now}
}

func planKey(id string) string {
	return keyPrefix + "plan:" + id
}

const planIndexKey = keyPrefix + "plans"

// SavePlan implements impact.Store
func (s *PlanStore) SavePlan(ctx context.Context, plan *impact.Plan) error {
	data, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, planKey(plan.ID), data, 0)
		pipe.ZAdd(ctx, planIndexKey, &redis.Z{Score: float64(plan.CreatedAt.UnixNano()), Member: plan.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save plan failed: %w", err)
	}
	return nil
}

func decodePlan(id, data string) (*impact.Plan, error) {
	var plan impact.Plan
	if err := json.Unmarshal([]byte(data), &plan); err != nil {
		return nil, fmt.Errorf("failed to unmarshal plan %s: %w", id, err)
	}
	return &plan, nil
}

// GetPlan implements impact.Store
func (s *PlanStore) GetPlan(ctx context.Context, id string) (*impact.Plan, error) {
	data, err := s.client.Get(ctx, planKey(id)).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", modules.ErrPlanNotFound, id)
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return decodePlan(id, data)
}

// ListPlans implements impact.Store, oldest first
func (s *PlanStore) ListPlans(ctx context.Context) ([]*impact.Plan, error) {
	ids, err := s.client.ZRange(ctx, planIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list plans failed: %w", err)
	}
	if len(ids) == 0 {
		return []*impact.Plan{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = planKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget failed: %w", err)
	}

	plans := make([]*impact.Plan, 0, len(values))
	for i, v := range values {
		data, ok := v.(string)
		if !ok {
			continue
		}
		plan, err := decodePlan(ids[i], data)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

// Transition implements impact.Store
func (s *PlanStore) Transition(ctx context.Context, id string, to impact.PlanStatus, reason string) (*impact.Plan, error) {
	key := planKey(id)

	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		var result *impact.Plan
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Result()
			if err == redis.Nil {
				return fmt.Errorf("%w: %s", modules.ErrPlanNotFound, id)
			} else if err != nil {
				return fmt.Errorf("redis get failed: %w", err)
			}

			plan, err := decodePlan(id, data)
			if err != nil {
				return err
			}
			if err := plan.Transition(to, s.now()); err != nil {
				return err
			}
			if reason != "" {
				plan.FailureReason = reason
			}

			updated, err := json.Marshal(plan)
			if err != nil {
				return fmt.Errorf("failed to marshal plan: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, 0)
				return nil
			})
			if err != nil {
				return err
			}
			result = plan
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}

	// Lost every race. Report the state the winner left behind.
	current, err := s.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, &modules.InvalidTransitionError{PlanID: id, From: string(current.Status), To: string(to)}
}
