package packet

import "fmt"

// BGPError is a protocol-level decode failure: exactly the
// NOTIFICATION error-code/subcode pair RFC 4271 assigns to the
// violation, plus whatever diagnostic data accompanies it on the
// wire. The FSM switches on ErrorCode/ErrorSubCode to pick the right
// event (21/22/28) and, where the state allows, echoes the pair back
// to the peer in its own NOTIFICATION.
type BGPError struct {
	ErrorCode    uint8
	ErrorSubCode uint8
	Data         []byte
	Reason       string
}

func (e *BGPError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("bgp error %d/%d: %s", e.ErrorCode, e.ErrorSubCode, e.Reason)
	}
	return fmt.Sprintf("bgp error %d/%d", e.ErrorCode, e.ErrorSubCode)
}

// ErrPartialFrame means buf does not yet contain a full message;
// Expected is the number of bytes the caller needs before retrying
// (19 if even the header is incomplete, otherwise the header's own
// Length field).
type ErrPartialFrame struct {
	Expected int
}

func (e *ErrPartialFrame) Error() string {
	return fmt.Sprintf("partial frame: need %d bytes", e.Expected)
}
