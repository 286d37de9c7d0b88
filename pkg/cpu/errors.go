package cpu

import "github.com/pkg/errors"

// Kind tags why execute or run stopped, per the DecodeError{ illegal_opcode
// | illegal_funct | bus_error | halt } taxonomy the reference source
// suggests but never actually implements as a tagged variant.
type Kind int

const (
	// KindIllegalOpcode: the major opcode field has no defined meaning.
	KindIllegalOpcode Kind = iota
	// KindIllegalFunct: the opcode is known but (funct3, funct7) is not.
	KindIllegalFunct
	// KindBusError: a load/store propagated a fault from the bus.
	KindBusError
	// KindHalt: pc reached zero after a retired instruction.
	KindHalt
	// KindFetchEOF: the bus load of the instruction word at pc failed.
	KindFetchEOF
)

func (k Kind) String() string {
	switch k {
	case KindIllegalOpcode:
		return "illegal_opcode"
	case KindIllegalFunct:
		return "illegal_funct"
	case KindBusError:
		return "bus_error"
	case KindHalt:
		return "halt"
	case KindFetchEOF:
		return "fetch_eof"
	default:
		return "unknown"
	}
}

// The following sentinel errors classify why the instruction loop
// stopped. All four are terminal: the instruction loop never resumes
// after one is returned, and Run treats every one of them as a clean stop
// rather than propagating it to the caller (spec §7).
var (
	// ErrDecodeFailure covers an illegal opcode, an illegal (funct3,
	// funct7) combination, or a zero-valued instruction word.
	ErrDecodeFailure = errors.New("cpu: decode failure")

	// ErrMemoryFault covers a load/store that the bus rejected.
	ErrMemoryFault = errors.New("cpu: memory fault")

	// ErrHaltSentinel indicates pc became zero after a retired
	// instruction, the pragmatic stop condition test images rely on.
	ErrHaltSentinel = errors.New("cpu: halted (pc == 0)")

	// ErrFetchEOF indicates the instruction fetch itself failed.
	ErrFetchEOF = errors.New("cpu: fetch failed")
)

// DecodeError wraps one of the sentinel errors above with the Kind that
// produced it, so callers can errors.As it instead of string-matching.
type DecodeError struct {
	Kind Kind
	Err  error
}

func (e *DecodeError) Error() string {
	return e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func illegalOpcode(inst uint32) error {
	return &DecodeError{Kind: KindIllegalOpcode, Err: errors.Wrapf(ErrDecodeFailure, "opcode=0x%02x inst=0x%08x", inst&0x7f, inst)}
}

func illegalFunct(opcode, funct3, funct7 uint32) error {
	return &DecodeError{Kind: KindIllegalFunct, Err: errors.Wrapf(ErrDecodeFailure, "opcode=0x%02x funct3=0x%x funct7=0x%x", opcode, funct3, funct7)}
}

func busError(err error) error {
	return &DecodeError{Kind: KindBusError, Err: errors.Wrap(ErrMemoryFault, err.Error())}
}

func halt() error {
	return &DecodeError{Kind: KindHalt, Err: ErrHaltSentinel}
}

func fetchEOF(err error) error {
	return &DecodeError{Kind: KindFetchEOF, Err: errors.Wrap(ErrFetchEOF, err.Error())}
}
