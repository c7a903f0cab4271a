package version

// Verdict is the outcome of inspecting one inbound text message.
type Verdict uint8

const (
	// VerdictData means the message is application data for the sink.
	VerdictData Verdict = iota

	// VerdictAccepted means a VERSION message matched the local version.
	VerdictAccepted

	// VerdictRejected means a VERSION message announced another version.
	VerdictRejected
)

// String returns the verdict name.
func (v Verdict) String() string {
	switch v {
	case VerdictData:
		return "DATA"
	case VerdictAccepted:
		return "ACCEPTED"
	case VerdictRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// Validator gates sessions on the device's announced version.
type Validator struct {
	// Local is the client version (Current when empty).
	Local string
}

// NewValidator returns a validator for the current version.
func NewValidator() *Validator {
	return &Validator{Local: Current}
}

// Inspect classifies an inbound text message. For VerdictRejected the
// returned error is a *MismatchError wrapping ErrIncompatible.
func (v *Validator) Inspect(msg string) (Verdict, error) {
	remote, ok := ParseControl(msg)
	if !ok {
		return VerdictData, nil
	}
	if err := Check(v.local(), remote); err != nil {
		return VerdictRejected, err
	}
	return VerdictAccepted, nil
}

func (v *Validator) local() string {
	if v == nil || v.Local == "" {
		return Current
	}
	return v.Local
}
