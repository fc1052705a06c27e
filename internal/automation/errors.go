package automation

import "errors"

// Domain errors for the automation package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, automation.ErrRuleNotFound) {
//	    // handle not found case
//	}
var (
	// ErrRuleNotFound is returned when a rule ID does not exist.
	ErrRuleNotFound = errors.New("rule: not found")

	// ErrRuleExists is returned when creating a rule with an ID that already exists.
	ErrRuleExists = errors.New("rule: already exists")

	// ErrInvalidRule is returned when rule validation fails.
	ErrInvalidRule = errors.New("rule: invalid")

	// ErrInvalidName is returned when a rule name is empty or too long.
	ErrInvalidName = errors.New("rule: invalid name")

	// ErrInvalidTrigger is returned when a trigger is missing required fields
	// or carries a non-finite threshold.
	ErrInvalidTrigger = errors.New("rule: invalid trigger")

	// ErrInvalidOperator is returned when a trigger uses an unknown operator.
	ErrInvalidOperator = errors.New("rule: invalid operator")

	// ErrInvalidAction is returned when an action is malformed for its kind.
	ErrInvalidAction = errors.New("rule: invalid action")

	// ErrInvalidActionKind is returned when an action names an unknown kind.
	ErrInvalidActionKind = errors.New("rule: invalid action kind")

	// ErrInvalidCooldown is returned when a cooldown is negative.
	ErrInvalidCooldown = errors.New("rule: invalid cooldown")

	// ErrDispatchFailed is returned when executing a fired rule's action fails.
	ErrDispatchFailed = errors.New("rule: dispatch failed")
)
