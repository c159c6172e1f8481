package domain

// CallStatus represents the verification state of a token call.
type CallStatus string

const (
	CallStatusPending         CallStatus = "PENDING"
	CallStatusVerifiedSuccess CallStatus = "VERIFIED_SUCCESS"
	CallStatusVerifiedFail    CallStatus = "VERIFIED_FAIL"
	CallStatusError           CallStatus = "ERROR"
)

// String returns the string representation of CallStatus.
func (s CallStatus) String() string {
	return string(s)
}

// IsValid checks if the status is a valid value.
func (s CallStatus) IsValid() bool {
	switch s {
	case CallStatusPending, CallStatusVerifiedSuccess, CallStatusVerifiedFail, CallStatusError:
		return true
	}
	return false
}

// IsTerminal reports whether the status can no longer change.
// ERROR is terminal but is not a verification outcome.
func (s CallStatus) IsTerminal() bool {
	return s == CallStatusVerifiedSuccess || s == CallStatusVerifiedFail || s == CallStatusError
}

// IsVerified reports whether the status is a business outcome
// (VERIFIED_SUCCESS or VERIFIED_FAIL).
func (s CallStatus) IsVerified() bool {
	return s == CallStatusVerifiedSuccess || s == CallStatusVerifiedFail
}
