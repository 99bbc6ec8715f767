package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dosada05/tournament-progression/rankings"
	"github.com/Dosada05/tournament-progression/repositories"
)

// Таксономия ошибок, общая для сервисов и маппинга HTTP.
var (
	ErrValidation             = errors.New("validation failed")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrConcurrencyConflict    = errors.New("concurrent update conflict, try again")
	ErrLockTimeout            = fmt.Errorf("%w: lock wait timed out", ErrConcurrencyConflict)
	ErrUnsupportedScoringType = rankings.ErrUnsupportedScoringType
	ErrDatabase               = errors.New("database error")

	ErrAlreadyRegistered  = fmt.Errorf("%w: user is already registered for this tournament", ErrValidation)
	ErrAdvancementBlocked = fmt.Errorf("%w: skill assessments do not permit advancement", ErrValidation)
)

// Ошибки "не найдено" для конкретных сущностей
var (
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrSessionNotFound    = errors.New("session not found")
	ErrProgressNotFound   = errors.New("progress not found")
	ErrLicenseNotFound    = errors.New("license not found")
	ErrAssessmentNotFound = errors.New("skill assessment not found")
	ErrUserNotFound       = errors.New("user not found")
)

var notFoundErrors = []error{
	ErrTournamentNotFound, ErrSessionNotFound, ErrProgressNotFound,
	ErrLicenseNotFound, ErrAssessmentNotFound, ErrUserNotFound,
}

func IsNotFound(err error) bool {
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsRetryable reports whether repeating the operation may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

type ErrorType string

const (
	ErrorTypeValidation         ErrorType = "validation_error"
	ErrorTypeInvalidTransition  ErrorType = "invalid_state_transition"
	ErrorTypeLockTimeout        ErrorType = "lock_timeout"
	ErrorTypeConcurrency        ErrorType = "concurrency_conflict"
	ErrorTypeNotFound           ErrorType = "not_found"
	ErrorTypeUnsupportedScoring ErrorType = "unsupported_scoring_type"
	ErrorTypeDatabase           ErrorType = "database_error"
)

// ClassifyError maps any error to the structured error_type reported to callers.
func ClassifyError(err error) ErrorType {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return ErrorTypeValidation
	case errors.Is(err, ErrInvalidStateTransition):
		return ErrorTypeInvalidTransition
	case errors.Is(err, ErrLockTimeout):
		return ErrorTypeLockTimeout
	case errors.Is(err, ErrConcurrencyConflict):
		return ErrorTypeConcurrency
	case IsNotFound(err):
		return ErrorTypeNotFound
	case errors.Is(err, ErrUnsupportedScoringType):
		return ErrorTypeUnsupportedScoring
	}
	return ErrorTypeDatabase
}

var repoNotFound = map[error]error{
	repositories.ErrTournamentNotFound: ErrTournamentNotFound,
	repositories.ErrSessionNotFound:    ErrSessionNotFound,
	repositories.ErrProgressNotFound:   ErrProgressNotFound,
	repositories.ErrLicenseNotFound:    ErrLicenseNotFound,
	repositories.ErrAssessmentNotFound: ErrAssessmentNotFound,
	repositories.ErrUserNotFound:       ErrUserNotFound,
}

// translateRepoError converts repository failures into the service taxonomy.
// Errors that already belong to the taxonomy pass through unchanged.
func translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrInvalidStateTransition) ||
		errors.Is(err, ErrConcurrencyConflict) || errors.Is(err, ErrUnsupportedScoringType) ||
		errors.Is(err, ErrDatabase) || IsNotFound(err) {
		return err
	}
	for repoErr, svcErr := range repoNotFound {
		if errors.Is(err, repoErr) {
			return svcErr
		}
	}
	switch {
	case errors.Is(err, repositories.ErrLockNotAvailable):
		return fmt.Errorf("%w: %w", ErrLockTimeout, err)
	case errors.Is(err, repositories.ErrTournamentStatusConflict),
		errors.Is(err, repositories.ErrUniqueViolation):
		return fmt.Errorf("%w: %w", ErrConcurrencyConflict, err)
	case errors.Is(err, repositories.ErrParticipantAlreadyRegistered):
		return ErrAlreadyRegistered
	}
	return fmt.Errorf("%w: %w", ErrDatabase, err)
}
