package services

import "errors"

// Engine error taxonomy. Handlers map these to HTTP statuses; the event
// integration treats them as per-rule failures and keeps going.
var (
	ErrRuleNotFound      = errors.New("automation rule not found")
	ErrRuleInactive      = errors.New("automation rule is inactive")
	ErrConditionsNotMet  = errors.New("rule conditions not met")
	ErrUnknownActionType = errors.New("unknown action type")
	ErrLeadNotFound      = errors.New("lead not found")
)
