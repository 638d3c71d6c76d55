package pdu

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/davecgh/go-spew/spew"
)

// ParsePDU decodes one hex-encoded SMS-DELIVER PDU line (3GPP TS 23.040
// §9.2) as returned by AT+CMGL in PDU mode (state 0). It is the only
// message type this decoder handles; SMS-SUBMIT, status-report, and
// command TPDUs are out of scope.
func ParsePDU(hexLine string) (Record, error) {
	data, err := hex.DecodeString(hexLine)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformedHex, err)
	}

	pos := 0
	var rec Record

	// SMSC (Service Centre Address).
	smscLen, err := readByte(data, &pos)
	if err != nil {
		return Record{}, err
	}
	if smscLen > 0 {
		if pos+int(smscLen) > len(data) {
			return Record{}, fmt.Errorf("%w: smsc length exceeds pdu", ErrTruncatedPDU)
		}
		pos++ // type-of-address octet
		rec.SMSC = DigitsFromSemiOctets(data[pos : pos+int(smscLen)-1])
		pos += int(smscLen) - 1
	}

	flagsByte, err := readByte(data, &pos)
	if err != nil {
		return Record{}, err
	}
	rec.Flags = MessageTypeFlags(flagsByte)
	if mti := flagsByte & 0x03; mti != 0x00 {
		return Record{}, fmt.Errorf("%w: mti=%d", ErrNotDeliver, mti)
	}

	// Originating Address (sender).
	oaLenDigits, err := readByte(data, &pos)
	if err != nil {
		return Record{}, err
	}
	if _, err := readByte(data, &pos); err != nil { // type-of-address octet, unused
		return Record{}, err
	}
	oaBytes := (int(oaLenDigits) + 1) / 2
	if pos+oaBytes > len(data) {
		return Record{}, fmt.Errorf("%w: sender address exceeds pdu", ErrTruncatedPDU)
	}
	sender := DigitsFromSemiOctets(data[pos : pos+oaBytes])
	if len(sender) > int(oaLenDigits) {
		sender = sender[:oaLenDigits]
	}
	rec.Sender = sender
	pos += oaBytes

	rec.PID, err = readByte(data, &pos)
	if err != nil {
		return Record{}, err
	}
	rec.DCS, err = readByte(data, &pos)
	if err != nil {
		return Record{}, err
	}
	if rec.DCS != 0x00 && rec.DCS != 0x08 {
		return Record{}, fmt.Errorf("%w: dcs=0x%02x", ErrUnsupportedDCS, rec.DCS)
	}

	if pos+7 > len(data) {
		return Record{}, fmt.Errorf("%w: scts exceeds pdu", ErrTruncatedPDU)
	}
	rec.Timestamp, err = DecodeTimestamp(data[pos : pos+7])
	if err != nil {
		return Record{}, err
	}
	pos += 7

	udl, err := readByte(data, &pos)
	if err != nil {
		return Record{}, err
	}

	// User data: read to the end of the hex-decoded buffer rather than
	// recomputing a length from udl/DCS, trusting the modem-reported
	// framing.
	userData := data[pos:]

	udhOctetLen := 0
	if rec.Flags.UDHI() {
		if len(userData) == 0 {
			return Record{}, fmt.Errorf("%w: udhi set but no user data", ErrTruncatedPDU)
		}
		udhl := int(userData[0])
		udhOctetLen = 1 + udhl
		if udhOctetLen > len(userData) {
			return Record{}, fmt.Errorf("%w: udh length exceeds user data", ErrTruncatedPDU)
		}
		rec.UDH = parseUDH(userData[1:udhOctetLen])
		userData = userData[udhOctetLen:]
	}

	switch rec.DCS {
	case 0x00:
		skipBits := 0
		septetCount := int(udl)
		if udhOctetLen > 0 {
			headerSeptets := (udhOctetLen*8 + 6) / 7
			septetCount -= headerSeptets
			skipBits = (7 - (udhOctetLen*8)%7) % 7
		}
		if septetCount < 0 {
			septetCount = 0
		}
		rec.Body = Decode7Bit(userData, septetCount, skipBits)
	case 0x08:
		rec.Body = DecodeUCS2(userData)
	}

	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		slog.Debug("decoded pdu", "record", spew.Sdump(rec))
	}

	return rec, nil
}

func readByte(data []byte, pos *int) (byte, error) {
	if *pos >= len(data) {
		return 0, fmt.Errorf("%w: unexpected end of pdu at offset %d", ErrTruncatedPDU, *pos)
	}
	b := data[*pos]
	*pos++
	return b, nil
}

// parseUDH parses a sequence of (iei, iedl, ied) triples from the raw
// User Data Header bytes (excluding the UDHL length byte itself). A
// trailing truncated element is dropped rather than treated as a hard
// decode failure; the body still decodes using the header length that
// was actually advertised.
func parseUDH(raw []byte) []InformationElement {
	var out []InformationElement
	pos := 0
	for pos+1 < len(raw) {
		iei := raw[pos]
		iedl := int(raw[pos+1])
		pos += 2
		if pos+iedl > len(raw) {
			break
		}
		ied := append([]byte(nil), raw[pos:pos+iedl]...)
		out = append(out, InformationElement{IEI: iei, IED: ied})
		pos += iedl
	}
	return out
}
