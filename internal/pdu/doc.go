// Package pdu decodes SMS-DELIVER Protocol Data Units (3GPP TS 23.040 §9.2)
// as received from a modem in AT+CMGL PDU-mode listing: semi-octet and
// GSM 03.38 7-bit codecs, UCS-2 decoding, timestamp decoding, and the
// User Data Header. It does not encode PDUs and does not handle
// SMS-SUBMIT, status-report, or command TPDUs.
package pdu
