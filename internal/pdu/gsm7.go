package pdu

// gsm7Default is the GSM 03.38 default alphabet, indexed by septet value.
var gsm7Default = []rune{
	'@', '£', '$', '¥', 'è', 'é', 'ù', 'ì', 'ò', 'Ç', '\n', 'Ø', 'ø', '\r', 'Å', 'å',
	'Δ', '_', 'Φ', 'Γ', 'Λ', 'Ω', 'Π', 'Ψ', 'Σ', 'Θ', 'Ξ', escapeSeptet, 'Æ', 'æ', 'ß', 'É',
	' ', '!', '"', '#', '¤', '%', '&', '\'', '(', ')', '*', '+', ',', '-', '.', '/',
	'0', '1', '2', '3', '4', '5', '6', '7', '8', '9', ':', ';', '<', '=', '>', '?',
	'¡', 'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H', 'I', 'J', 'K', 'L', 'M', 'N', 'O',
	'P', 'Q', 'R', 'S', 'T', 'U', 'V', 'W', 'X', 'Y', 'Z', 'Ä', 'Ö', 'Ñ', 'Ü', '§',
	'¿', 'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h', 'i', 'j', 'k', 'l', 'm', 'n', 'o',
	'p', 'q', 'r', 's', 't', 'u', 'v', 'w', 'x', 'y', 'z', 'ä', 'ö', 'ñ', 'ü', 'à',
}

// escapeSeptet (0x1B) shifts the following septet into the extension table.
const escapeSeptet = '\x1b'

// gsm7Extension is the GSM 03.38 extension table reached via escapeSeptet.
var gsm7Extension = map[byte]rune{
	0x0a: '\f',
	0x0d: '\n',
	0x14: '^',
	0x28: '{',
	0x29: '}',
	0x2f: '\\',
	0x3c: '[',
	0x3d: '~',
	0x3e: ']',
	0x40: '|',
	0x65: '€',
}

// UnpackSeptets unpacks septetCount 7-bit values from octet-packed data in
// little-endian septet order, discarding skipBits padding bits at the
// start (inserted by the sender to align the first septet on a septet
// boundary after a User Data Header).
func UnpackSeptets(packed []byte, septetCount int, skipBits int) []byte {
	septets := make([]byte, 0, septetCount)
	bitPos := skipBits
	for len(septets) < septetCount {
		byteIdx := bitPos / 8
		if byteIdx >= len(packed) {
			break
		}
		bitOffset := bitPos % 8

		cur := int(packed[byteIdx]) >> bitOffset
		bitsAvail := 8 - bitOffset
		if bitsAvail < 7 && byteIdx+1 < len(packed) {
			cur |= int(packed[byteIdx+1]) << bitsAvail
		}

		septets = append(septets, byte(cur&0x7f))
		bitPos += 7
	}
	return septets
}

// PackSeptets is the inverse of UnpackSeptets with no skip bits: it packs
// septets back into the minimal number of octets. Used for round-trip
// testing of UnpackSeptets.
func PackSeptets(septets []byte) []byte {
	var out []byte
	var acc int
	var bits int
	for _, s := range septets {
		acc |= int(s&0x7f) << bits
		bits += 7
		for bits >= 8 {
			out = append(out, byte(acc&0xff))
			acc >>= 8
			bits -= 8
		}
	}
	if bits > 0 {
		out = append(out, byte(acc&0xff))
	}
	return out
}

// DecodeDefaultAlphabet maps GSM 03.38 default-alphabet septets to runes,
// following escapeSeptet into the extension table. An extension escape
// with no matching entry decodes to a space, per the GSM recommendation
// for unrecognised extension codes.
func DecodeDefaultAlphabet(septets []byte) string {
	result := make([]rune, 0, len(septets))
	escaped := false
	for _, s := range septets {
		if s == 0x1b {
			escaped = true
			continue
		}
		if escaped {
			if r, ok := gsm7Extension[s]; ok {
				result = append(result, r)
			} else {
				result = append(result, ' ')
			}
			escaped = false
			continue
		}
		if int(s) < len(gsm7Default) {
			result = append(result, gsm7Default[s])
		} else {
			result = append(result, '?')
		}
	}
	return string(result)
}

// Decode7Bit unpacks septetCount GSM-7 characters from packed data,
// skipping skipBits alignment padding, and maps them through the default
// alphabet (and its extension table).
func Decode7Bit(packed []byte, septetCount int, skipBits int) string {
	return DecodeDefaultAlphabet(UnpackSeptets(packed, septetCount, skipBits))
}
