package errors

import "errors"

var (
	ErrMissingParent            = errors.New("route definition has no parent type")
	ErrUnrecognizedIDFieldShape = errors.New("id_field must be absent, a string, or a list of strings")
	ErrResolverIDCollision      = errors.New("resolver logical ID collision")
	ErrStackNotFound            = errors.New("stack not found")
	ErrPolicyViolation          = errors.New("template violates deployment policy")
	ErrSubnetsNotFound          = errors.New("no subnets found for VPC")
	ErrConfigRequired           = errors.New("required configuration value missing")
	ErrDeployLocked             = errors.New("another deploy holds the lock")
)
