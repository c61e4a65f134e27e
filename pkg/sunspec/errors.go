package sunspec

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidType                 = errors.New("sunspec: invalid type")
	ErrBufferTooShort              = errors.New("sunspec: buffer too short")
	ErrBufferTooSmall              = errors.New("sunspec: buffer too small")
	ErrPayloadMismatch             = errors.New("sunspec: payload does not match type")
	ErrUnknownDid                  = errors.New("sunspec: unknown did")
	ErrInvalidScaleFactorReference = errors.New("sunspec: invalid scale factor reference")
	ErrRepeatingBlockNotLast       = errors.New("sunspec: repeating block is not the last block")
	ErrDuplicateDid                = errors.New("sunspec: duplicate did")
)

type UnknownDidError struct {
	Did uint16
}

func (e *UnknownDidError) Error() string {
	return fmt.Sprintf("sunspec: unknown did %d", e.Did)
}

func (e *UnknownDidError) Is(target error) bool {
	return target == ErrUnknownDid
}

// ScaleFactorReferenceError reports a point whose scale factor name resolves
// to a value that is not a scale factor.
type ScaleFactorReferenceError struct {
	Point string
	Ref   string
	Type  Type
}

func (e *ScaleFactorReferenceError) Error() string {
	return fmt.Sprintf("sunspec: point %s references %s of type %s as scale factor", e.Point, e.Ref, e.Type)
}

func (e *ScaleFactorReferenceError) Is(target error) bool {
	return target == ErrInvalidScaleFactorReference
}

func errTooShort(what string, got, need int) error {
	return fmt.Errorf("%w: %s needs %d bytes, got %d", ErrBufferTooShort, what, need, got)
}

func errTooSmall(what string, got, need int) error {
	return fmt.Errorf("%w: %s needs %d bytes, got %d", ErrBufferTooSmall, what, need, got)
}
