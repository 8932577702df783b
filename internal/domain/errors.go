package domain

import "errors"

// Sentinel errors surfaced by the repository layer and matched with errors.Is by callers.
var (
	ErrTemplateNotFound = errors.New("domain: template not found")
	ErrSessionHeld      = errors.New("domain: scheduler session already held")
	ErrInstanceNotFound = errors.New("domain: instance not found")
)
