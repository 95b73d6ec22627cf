package pop3

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerRedactsUserPass(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, nil, nil)

	l.LogClient([]byte("USER someone@example.com"))
	l.LogClient([]byte("PASS hunter2"))

	got := buf.String()
	if !strings.Contains(got, "C: USER ********") {
		t.Errorf("expected redacted USER line, got %q", got)
	}
	if !strings.Contains(got, "C: PASS ********") {
		t.Errorf("expected redacted PASS line, got %q", got)
	}
	if strings.Contains(got, "hunter2") || strings.Contains(got, "someone@example.com") {
		t.Errorf("secret leaked into log: %q", got)
	}
}

// TestLoggerRedactsAPOP matches scenario S6 exactly.
func TestLoggerRedactsAPOP(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, nil, nil)

	l.LogClient([]byte("APOP username d99894e8445daf54c4ce781ef21331b7"))

	want := "C: APOP ******** ********\n"
	if buf.String() != want {
		t.Fatalf("got %q want %q", buf.String(), want)
	}
}

// TestLoggerRedactsSASLContinuations matches scenario S7: every client
// line after AUTH LOGIN is redacted wholesale, since it carries base64
// credentials with no recognizable verb of its own.
func TestLoggerRedactsSASLContinuations(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, nil, nil)

	l.LogClient([]byte("AUTH LOGIN"))
	l.LogClient([]byte("dXNlcm5hbWU="))
	l.LogClient([]byte("cGFzc3dvcmQ="))
	l.LogServer([]byte("+OK"))
	l.LogClient([]byte("STAT"))

	got := buf.String()
	for _, want := range []string{
		"C: AUTH LOGIN\n",
		"C: ********\n",
		"S: +OK\n",
		"C: STAT\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in log, got %q", want, got)
		}
	}
	if strings.Contains(got, "dXNlcm5hbWU=") || strings.Contains(got, "cGFzc3dvcmQ=") {
		t.Errorf("base64 credentials leaked into log: %q", got)
	}
}

func TestLoggerRedactOffPassesThrough(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, nil, nil)
	l.Redact = false

	l.LogClient([]byte("USER someone"))
	if !strings.Contains(buf.String(), "C: USER someone\n") {
		t.Errorf("expected unredacted line with Redact=false, got %q", buf.String())
	}
}

func TestLoggerResetsSecretModeOnKnownVerb(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, nil, nil)

	l.LogClient([]byte("PASS secret"))
	l.LogClient([]byte("STAT"))

	got := buf.String()
	if !strings.Contains(got, "C: STAT\n") {
		t.Errorf("expected STAT to leave secret mode, got %q", got)
	}
}
