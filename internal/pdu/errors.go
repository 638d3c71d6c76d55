package pdu

import "errors"

// Sentinel errors for the PDU decode error taxonomy. Use errors.Is to
// check these against an error returned by ParsePDU; wrapped context is
// added with fmt.Errorf("%w: ...", ...).
var (
	// ErrMalformedHex means the PDU line was not a valid hex string.
	ErrMalformedHex = errors.New("pdu: malformed hex")
	// ErrTruncatedPDU means the buffer ended before a required field.
	ErrTruncatedPDU = errors.New("pdu: truncated pdu")
	// ErrUnsupportedDCS means the data coding scheme byte was neither
	// 0x00 (GSM 7-bit default) nor 0x08 (UCS-2).
	ErrUnsupportedDCS = errors.New("pdu: unsupported data coding scheme")
	// ErrNotDeliver means the TPDU's message type indicator was not
	// SMS-DELIVER; this decoder handles no other mobile-terminated type.
	ErrNotDeliver = errors.New("pdu: not an sms-deliver tpdu")
)
