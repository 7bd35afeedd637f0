package common

import "fmt"

// StatusCode classifies the outcome of an engine operation.
type StatusCode uint8

const (
	CodeOk StatusCode = iota
	CodeError
	CodeNotFound
	CodeAlreadyExists
	CodeInvalidArgument
	CodeIOError
	CodeCorruption
	CodeNotSupported
	CodeOutOfMemory
	CodeBusy
	CodeTimeout
	CodeAborted
	CodeInternal
)

func (c StatusCode) String() string {
	switch c {
	case CodeOk:
		return "OK"
	case CodeError:
		return "Error"
	case CodeNotFound:
		return "NotFound"
	case CodeAlreadyExists:
		return "AlreadyExists"
	case CodeInvalidArgument:
		return "InvalidArgument"
	case CodeIOError:
		return "IOError"
	case CodeCorruption:
		return "Corruption"
	case CodeNotSupported:
		return "NotSupported"
	case CodeOutOfMemory:
		return "OutOfMemory"
	case CodeBusy:
		return "Busy"
	case CodeTimeout:
		return "Timeout"
	case CodeAborted:
		return "Aborted"
	case CodeInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Status is the explicit result value every fallible engine operation
// returns. The zero value is OK.
type Status struct {
	Code    StatusCode
	Message string
}

func OkStatus() Status { return Status{} }

func ErrorStatus(format string, args ...any) Status {
	return Status{Code: CodeError, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) Status {
	return Status{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func AlreadyExists(format string, args ...any) Status {
	return Status{Code: CodeAlreadyExists, Message: fmt.Sprintf(format, args...)}
}

func InvalidArgument(format string, args ...any) Status {
	return Status{Code: CodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

func IOError(format string, args ...any) Status {
	return Status{Code: CodeIOError, Message: fmt.Sprintf(format, args...)}
}

func Corruption(format string, args ...any) Status {
	return Status{Code: CodeCorruption, Message: fmt.Sprintf(format, args...)}
}

func NotSupported(format string, args ...any) Status {
	return Status{Code: CodeNotSupported, Message: fmt.Sprintf(format, args...)}
}

func OutOfMemory(format string, args ...any) Status {
	return Status{Code: CodeOutOfMemory, Message: fmt.Sprintf(format, args...)}
}

func Busy(format string, args ...any) Status {
	return Status{Code: CodeBusy, Message: fmt.Sprintf(format, args...)}
}

func Timeout(format string, args ...any) Status {
	return Status{Code: CodeTimeout, Message: fmt.Sprintf(format, args...)}
}

func Aborted(format string, args ...any) Status {
	return Status{Code: CodeAborted, Message: fmt.Sprintf(format, args...)}
}

func Internal(format string, args ...any) Status {
	return Status{Code: CodeInternal, Message: fmt.Sprintf(format, args...)}
}

// OK reports whether the status carries no error.
func (s Status) OK() bool { return s.Code == CodeOk }

// String renders "Code: message", omitting the colon for empty messages.
func (s Status) String() string {
	if s.Message == "" {
		return s.Code.String()
	}
	return s.Code.String() + ": " + s.Message
}
