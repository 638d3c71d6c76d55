package diag

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kogeler/smsbridge/internal/atsession"
)

// scriptedPort replies with one canned response per command, in order,
// ignoring what was actually written (tests only need request/response
// pairing, not wire-format verification -- that's atsession's job).
type scriptedPort struct {
	responses [][]byte
	idx       int
	buf       bytes.Buffer
}

func (p *scriptedPort) Write(b []byte) (int, error) {
	if p.buf.Len() == 0 && p.idx < len(p.responses) {
		p.buf.Write(p.responses[p.idx])
		p.idx++
	}
	return len(b), nil
}

func (p *scriptedPort) Read(b []byte) (int, error) {
	if p.buf.Len() == 0 {
		return 0, io.EOF
	}
	return p.buf.Read(b)
}

func newSession(t *testing.T, responses ...string) *atsession.Session {
	t.Helper()
	raw := make([][]byte, 0, len(responses)+1)
	raw = append(raw, []byte("OK\r\n")) // ATE0 drain on Open
	for _, r := range responses {
		raw = append(raw, []byte(r))
	}
	sess, err := atsession.Open(&scriptedPort{responses: raw}, time.Second, nil)
	require.NoError(t, err)
	return sess
}

func TestRun_ModemNotResponding(t *testing.T) {
	sess := newSession(t, "ERROR\r\n")
	err := Run(context.Background(), sess, time.Now(), 0, nil)
	require.NotNil(t, err)
	assert.Equal(t, ErrTypeModemNotResponding, err.Type)
}

func TestRun_SimNotInserted(t *testing.T) {
	sess := newSession(t,
		"OK\r\n",                    // AT
		"OK\r\n",                    // ATE0
		"+CPIN: NOT INSERTED\r\nOK\r\n", // AT+CPIN?
	)
	err := Run(context.Background(), sess, time.Now(), 0, nil)
	require.NotNil(t, err)
	assert.Equal(t, ErrTypeSimNotDetected, err.Type)
}

func TestRun_RegistrationDenied(t *testing.T) {
	sess := newSession(t,
		"OK\r\n",
		"OK\r\n",
		"+CPIN: READY\r\nOK\r\n",
		"+CSQ: 20,0\r\nOK\r\n",
		"+CREG: 0,3\r\nOK\r\n",
	)
	err := Run(context.Background(), sess, time.Now(), 0, nil)
	require.NotNil(t, err)
	assert.Equal(t, ErrTypeNetworkDenied, err.Type)
}

func TestRun_HealthyModemReturnsNil(t *testing.T) {
	sess := newSession(t,
		"OK\r\n",
		"OK\r\n",
		"+CPIN: READY\r\nOK\r\n",
		"+CSQ: 20,0\r\nOK\r\n",
		"+CREG: 0,1\r\nOK\r\n",
	)
	err := Run(context.Background(), sess, time.Now(), 0, nil)
	assert.Nil(t, err)
}

type fakeSink struct {
	delivered []string
}

func (f *fakeSink) Deliver(_ context.Context, text string) error {
	f.delivered = append(f.delivered, text)
	return nil
}

func TestNotifier_DedupesSameErrorType(t *testing.T) {
	fs := &fakeSink{}
	n := NewNotifier(fs, "host1")

	sent := n.NotifyError(context.Background(), &Error{Type: ErrTypeNoSignal, Message: "no signal"})
	assert.True(t, sent)

	sentAgain := n.NotifyError(context.Background(), &Error{Type: ErrTypeNoSignal, Message: "no signal"})
	assert.False(t, sentAgain)
	assert.Len(t, fs.delivered, 1)
}

func TestNotifier_RecoveryAfterError(t *testing.T) {
	fs := &fakeSink{}
	n := NewNotifier(fs, "host1")

	n.NotifyError(context.Background(), &Error{Type: ErrTypeNoSignal, Message: "no signal"})
	assert.True(t, n.HasError())

	recovered := n.NotifyRecovery(context.Background())
	assert.True(t, recovered)
	assert.False(t, n.HasError())
	assert.Len(t, fs.delivered, 2)
}

func TestNotifier_NoRecoveryWithoutPriorError(t *testing.T) {
	fs := &fakeSink{}
	n := NewNotifier(fs, "host1")
	assert.False(t, n.NotifyRecovery(context.Background()))
	assert.Empty(t, fs.delivered)
}
