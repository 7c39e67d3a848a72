package rag

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindIndexUnavailable
	KindRetrieval
	KindGeneration
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindIndexUnavailable:
		return "index unavailable"
	case KindRetrieval:
		return "retrieval failure"
	case KindGeneration:
		return "generation failure"
	}
	return "unknown"
}

// UnavailableMessage is returned to clients while the guide index cannot be loaded.
const UnavailableMessage = "The guide index is unavailable. Please try again later."

// UserMessage is the stable text shown to users for a failure of this kind.
// The underlying error is logged, never shown.
func (k Kind) UserMessage() string {
	switch k {
	case KindConfig:
		return "The assistant is misconfigured."
	case KindIndexUnavailable:
		return UnavailableMessage
	case KindRetrieval:
		return "Failed to search the guide."
	case KindGeneration:
		return "Failed to generate an answer."
	}
	return "Internal error."
}

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func ConfigError(op string, err error) error {
	return &Error{Kind: KindConfig, Op: op, Err: err}
}

func IndexUnavailableError(op string, err error) error {
	return &Error{Kind: KindIndexUnavailable, Op: op, Err: err}
}

func RetrievalError(op string, err error) error {
	return &Error{Kind: KindRetrieval, Op: op, Err: err}
}

func GenerationError(op string, err error) error {
	return &Error{Kind: KindGeneration, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
