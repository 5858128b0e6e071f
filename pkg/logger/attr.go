package logger

import (
	"log/slog"
	"strconv"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// MachineID records the state machine identifier under the key "machine_id".
// Empty ids produce an empty Attr.
func MachineID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("machine_id", id)
}

// State records a state name under the key "state".
func State(name string) slog.Attr {
	return slog.String("state", name)
}

// FromState records the source state of a transition under the key "from".
func FromState(name string) slog.Attr {
	return slog.String("from", name)
}

// ToState records the target state of a transition under the key "to".
func ToState(name string) slog.Attr {
	return slog.String("to", name)
}

// Event records the event name under the key "event".
func Event(name string) slog.Attr {
	return slog.String("event", name)
}

// Occurrence records the occurrence kind under the key "occurrence".
func Occurrence(kind string) slog.Attr {
	return slog.String("occurrence", kind)
}

// Reason records why an event was rejected under the key "reason".
func Reason(reason string) slog.Attr {
	return slog.String("reason", reason)
}

// Sequence records an occurrence sequence number under the key "seq".
func Sequence(seq uint64) slog.Attr {
	return slog.Uint64("seq", seq)
}

// SubscriptionID records the observer subscription identifier under the key "subscription_id".
// If id is nil, it returns an empty Attr.
func SubscriptionID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("subscription_id", id)
}

// RequestID records the request identifier under the key "request_id".
// If id is nil, it returns an empty Attr.
func RequestID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("request_id", id)
}

// Duration records a duration under the key "duration".
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}
