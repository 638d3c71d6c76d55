package pdu

import "time"

// MessageTypeFlags is the first octet of an SMS-DELIVER TPDU.
type MessageTypeFlags byte

// UDHI reports whether a User Data Header is present in the user data (bit 6).
func (f MessageTypeFlags) UDHI() bool { return f&0x40 != 0 }

// MoreMessagesToSend reports whether the SC has more messages queued for
// this MS (bit 2 clear means more messages to send).
func (f MessageTypeFlags) MoreMessagesToSend() bool { return f&0x04 == 0 }

// InformationElement is one (iei, iedl, ied) triple from a User Data Header.
type InformationElement struct {
	IEI byte
	IED []byte
}

// Record is the decoded form of one SMS-DELIVER PDU line.
type Record struct {
	SMSC      string
	Flags     MessageTypeFlags
	Sender    string
	PID       byte
	DCS       byte
	Timestamp time.Time
	UDH       []InformationElement
	Body      string
}

// ConcatKey identifies one segment's place in a concatenated SMS group.
type ConcatKey struct {
	Reference int
	Total     int
	Seq       int
}

// ConcatInfo extracts concatenation info from a User Data Header, if
// present. The reference width is determined by the IEI (0x00: 1 byte,
// 0x08: 2 bytes) rather than by the IED's length alone, since the two
// forms cannot otherwise be told apart.
func ConcatInfo(udh []InformationElement) (ConcatKey, bool) {
	for _, ie := range udh {
		switch ie.IEI {
		case 0x00:
			if len(ie.IED) >= 3 {
				return ConcatKey{
					Reference: int(ie.IED[0]),
					Total:     int(ie.IED[1]),
					Seq:       int(ie.IED[2]),
				}, true
			}
		case 0x08:
			if len(ie.IED) >= 4 {
				return ConcatKey{
					Reference: int(ie.IED[0])<<8 | int(ie.IED[1]),
					Total:     int(ie.IED[2]),
					Seq:       int(ie.IED[3]),
				}, true
			}
		}
	}
	return ConcatKey{}, false
}
