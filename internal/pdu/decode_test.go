package pdu

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePDU_SeedScenario1(t *testing.T) {
	// spec.md §8 seed scenario 1: single-segment GSM-7, no UDH. The sender
	// address is eleven zero digits (oaLen=11, all-zero semi-octets apart
	// from the 0xf0 filler byte) and the body is a one-time-passcode
	// notice, not literal greeting text.
	hexLine := "0891180945123451F4040B800000000000F00000229082110255631BE13A1D5D76D3D3E3303DFD7683C66F72591193CD6835DB0D"

	rec, err := ParsePDU(hexLine)
	require.NoError(t, err)

	assert.Equal(t, "00000000000", rec.Sender)
	assert.Equal(t, "2022-09-28 11:20:55", rec.Timestamp.Format("2006-01-02 15:04:05"))
	assert.Equal(t, "authentication code\n1234567", rec.Body)
	assert.Empty(t, rec.UDH)
}

func TestParsePDU_SeedScenario2_ConcatenatedParts(t *testing.T) {
	// spec.md §8 seed scenario 2: the first two segments of a 3-part
	// Japanese concatenated message sharing 16-bit reference 0xDCEB (IEI 0x08).
	part1 := "0891180945123481F44012D04E2A15447C0E9FCD270008229072013503638B060804DCEB0301301030C930B330E2304B3089306E304A77E53089305B3011000D000A672C30E130FC30EB306F682A5F0F4F1A793E004E0054005430C930B330E2304B3089901A4FE16599712165993067914D4FE1305730663044307E30593002000D000A000D000A30C930B330E2304B3089306E91CD8981306A304A77E53089305B3084006430DD30A4"
	part2 := "0891180945123481F44012D04E2A15447C0E9FCD270008229072013503638B060804DCEB030230F330C830923054522975283044305F3060304F305F3081306B306F521D671F8A2D5B9A304C5FC589813068306A308A307E30593002000D000A4EE54E0B306E00550052004C306E51855BB9306B5F933063306630C930B330E230B530FC30D330B9306E8A2D5B9A3092304A985830443044305F3057307E30593002FF08901A4FE16599"

	r1, err := ParsePDU(part1)
	require.NoError(t, err)
	r2, err := ParsePDU(part2)
	require.NoError(t, err)

	require.NotEmpty(t, r1.UDH)
	key1, ok := ConcatInfo(r1.UDH)
	require.True(t, ok)
	key2, ok := ConcatInfo(r2.UDH)
	require.True(t, ok)

	assert.Equal(t, key1.Reference, key2.Reference)
	assert.Equal(t, 1, key1.Seq)
	assert.Equal(t, 2, key2.Seq)
	assert.Equal(t, "2022-09-27 10:53:30", r2.Timestamp.Format("2006-01-02 15:04:05"))
	assert.NotEmpty(t, r1.Body)
	assert.NotEmpty(t, r2.Body)
}

func TestParsePDU_UnsupportedDCS(t *testing.T) {
	// spec.md §8 seed scenario 3: tp_dcs=0x04 must raise UnsupportedDcs.
	hexLine := "0891180945123451f4040b800000000000f00004229082110255631be13a1d5d76d3d3e3303dfd7683c66f72591193cd6835db0d"

	_, err := ParsePDU(hexLine)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedDCS))
}

func TestParsePDU_MalformedHex(t *testing.T) {
	_, err := ParsePDU("not-hex")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedHex))
}

func TestParsePDU_OddLengthHex(t *testing.T) {
	_, err := ParsePDU("0891180")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedHex))
}

func TestParsePDU_Truncated(t *testing.T) {
	_, err := ParsePDU("00")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTruncatedPDU))
}

func TestParsePDU_ZeroLengthAddressAndSMSC(t *testing.T) {
	// smsc_length=0, address_length=0, tp_udl=0: boundary case from spec.md §8.
	// flags=0x00 (no UDHI), oaLen=0, oaType=0x81, pid=0, dcs=0x00, 7-byte scts, udl=0.
	hexLine := "00" + "00" + "00" + "81" + "00" + "00" + "22908211025563" + "00"
	rec, err := ParsePDU(hexLine)
	require.NoError(t, err)
	assert.Equal(t, "", rec.Sender)
	assert.Equal(t, "", rec.SMSC)
	assert.Equal(t, "", rec.Body)
}

func TestConcatInfo_SwitchesOnIEI(t *testing.T) {
	// iei=0x00: 1-byte reference, 3-byte IED.
	udh00 := []InformationElement{{IEI: 0x00, IED: []byte{0x2a, 0x03, 0x01}}}
	key, ok := ConcatInfo(udh00)
	require.True(t, ok)
	assert.Equal(t, ConcatKey{Reference: 0x2a, Total: 3, Seq: 1}, key)

	// iei=0x08: 2-byte reference, 4-byte IED.
	udh08 := []InformationElement{{IEI: 0x08, IED: []byte{0x04, 0xdc, 0x03, 0x02}}}
	key, ok = ConcatInfo(udh08)
	require.True(t, ok)
	assert.Equal(t, ConcatKey{Reference: 0x04dc, Total: 3, Seq: 2}, key)
}

func TestConcatInfo_NoConcatenationElement(t *testing.T) {
	// Port-addressing-only UDH (IEI 0x04): not a concatenation element.
	udh := []InformationElement{{IEI: 0x04, IED: []byte{0x00, 0x00, 0x00, 0x00}}}
	_, ok := ConcatInfo(udh)
	assert.False(t, ok)
}

func TestDecodeTimestamp_RoundTrip(t *testing.T) {
	b := []byte{0x22, 0x90, 0x82, 0x11, 0x02, 0x55, 0x63}
	ts, err := DecodeTimestamp(b)
	require.NoError(t, err)
	assert.Equal(t, "2022-09-28 11:20:55", ts.Format("2006-01-02 15:04:05"))
	_, offset := ts.Zone()
	assert.Equal(t, 9*3600, offset) // 36 quarter-hours = +9:00
}

func TestDecodeTimestamp_NegativeZone(t *testing.T) {
	b := []byte{0x42, 0x21, 0x11, 0x51, 0x03, 0x54, 0x2c} // tz byte 0x2c -> sign bit set, 42 quarters
	ts, err := DecodeTimestamp(b)
	require.NoError(t, err)
	_, offset := ts.Zone()
	assert.Equal(t, -42*15*60, offset)
}

func TestDecodeTimestamp_OutOfRange(t *testing.T) {
	b := []byte{0x22, 0x31, 0x82, 0x11, 0x02, 0x55, 0x63} // month digits "13"
	_, err := DecodeTimestamp(b)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadTimestamp))
}

func TestDecodeTimestamp_WrongLength(t *testing.T) {
	_, err := DecodeTimestamp([]byte{0x22, 0x90})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadTimestamp))
}

func TestSemiOctetRoundTrip(t *testing.T) {
	tests := []string{"1234567890", "123456789", "0", "", "42"}
	for _, d := range tests {
		encoded := EncodeSemiOctets(d)
		decoded := DigitsFromSemiOctets(encoded)
		assert.Equal(t, d, decoded, "round trip for %q", d)
	}
}

func TestUnpackPackSeptetsRoundTrip(t *testing.T) {
	septets := []byte{0x48, 0x65, 0x6c, 0x6c, 0x6f} // arbitrary 7-bit values < 0x80
	packed := PackSeptets(septets)
	unpacked := UnpackSeptets(packed, len(septets), 0)
	assert.Equal(t, septets, unpacked)
}

func TestDecodeGSM7Bit_Hello(t *testing.T) {
	data := []byte{0xC8, 0x32, 0x9B, 0xFD, 0x06} // "Hello"
	got := Decode7Bit(data, 5, 0)
	assert.Equal(t, "Hello", got)
}

func TestDecodeGSM7Bit_Max160Septets(t *testing.T) {
	packed := PackSeptets(repeatSeptet('A'-0x40+0x41, 160)) // arbitrary valid septets
	got := Decode7Bit(packed, 160, 0)
	assert.Len(t, []rune(got), 160)
}

func repeatSeptet(v byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = v & 0x7f
	}
	return out
}

func TestDecodeUCS2_SurrogatePair(t *testing.T) {
	// U+1F600 GRINNING FACE, UTF-16BE surrogate pair D83D DE00.
	data := []byte{0xD8, 0x3D, 0xDE, 0x00}
	got := DecodeUCS2(data)
	assert.Equal(t, "😀", got)
}

func TestDecodeUCS2_Cyrillic(t *testing.T) {
	data := []byte{0x04, 0x1f, 0x04, 0x40, 0x04, 0x38, 0x04, 0x32, 0x04, 0x35, 0x04, 0x42}
	got := DecodeUCS2(data)
	assert.Equal(t, "Привет", got)
}

func TestMessageTypeFlags(t *testing.T) {
	f := MessageTypeFlags(0x40) // UDHI set, bit2 clear -> more messages to send
	assert.True(t, f.UDHI())
	assert.True(t, f.MoreMessagesToSend())

	f2 := MessageTypeFlags(0x04) // no UDHI, bit2 set -> no more messages
	assert.False(t, f2.UDHI())
	assert.False(t, f2.MoreMessagesToSend())
}

func TestRecordImmutableAfterConstruction(t *testing.T) {
	// PduRecord has no exported mutation methods; copying by value is the
	// only way callers can hold one, which keeps it effectively immutable.
	rec := Record{Sender: "123", Timestamp: time.Now()}
	copyRec := rec
	copyRec.Sender = "456"
	assert.Equal(t, "123", rec.Sender)
}
