package domain

import "errors"

// Domain errors returned by repository implementations.

var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrJobNotFound indicates the queue job does not exist.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotCancellable indicates the job is no longer pending and cannot
	// be cancelled; running jobs are superseded by the execution timeout.
	ErrJobNotCancellable = errors.New("job not cancellable")

	// ErrDuplicateJob indicates an in-flight job of the same type already
	// exists for the same entity; idempotent enqueue refuses the insert.
	ErrDuplicateJob = errors.New("duplicate in-flight job")

	// ErrArticleNotFound indicates the referenced article does not exist.
	ErrArticleNotFound = errors.New("article not found")

	// ErrDomainNotFound indicates the referenced domain does not exist.
	ErrDomainNotFound = errors.New("domain not found")

	// ErrCampaignNotFound indicates the promotion campaign does not exist.
	ErrCampaignNotFound = errors.New("campaign not found")

	// ErrResearchNotFound indicates the domain research row does not exist.
	ErrResearchNotFound = errors.New("domain research not found")

	// ErrAssetNotFound indicates no usable media asset could be resolved.
	ErrAssetNotFound = errors.New("media asset not found")

	// ErrInvalidID indicates the provided ID format is invalid.
	ErrInvalidID = errors.New("invalid ID format")
)
