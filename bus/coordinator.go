package bus

import "context"

// Validator inspects a candidate decision and either allows it through or
// blocks it with a reason. Validators run in registration order; the first
// to block short-circuits the rest.
type Validator func(ctx context.Context, event DecisionMadeEvent) (allow bool, reason string, err error)

// DecisionCoordinator is the allow/deny middleware of §4.11: it subscribes
// to every DecisionMadeEvent, runs its Validators, and republishes the event
// as either DecisionValidatedEvent (all validators allow) or
// DecisionRejectedEvent (the first validator to block).
type DecisionCoordinator struct {
	bus        *Bus
	validators []Validator
}

// NewDecisionCoordinator attaches a coordinator with the given validators to
// bus. The coordinator begins observing DecisionMadeEvent immediately.
func NewDecisionCoordinator(b *Bus, validators ...Validator) *DecisionCoordinator {
	c := &DecisionCoordinator{bus: b, validators: validators}
	Subscribe(b, c.onDecisionMade)
	return c
}

func (c *DecisionCoordinator) onDecisionMade(ctx context.Context, event DecisionMadeEvent) error {
	for _, validate := range c.validators {
		allow, reason, err := validate(ctx, event)
		if err != nil {
			return err
		}
		if !allow {
			return c.bus.Publish(ctx, DecisionRejectedEvent{DecisionMadeEvent: event, Reason: reason})
		}
	}
	return c.bus.Publish(ctx, DecisionValidatedEvent{DecisionMadeEvent: event})
}
