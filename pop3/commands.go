package pop3

import (
	"fmt"
	"strings"
)

const crlf = "\r\n"

// sanitizeCRLF strips CR and LF from a caller-supplied argument before
// it is embedded in a command line, so that a malicious or malformed
// username/password cannot inject an extra command.
func sanitizeCRLF(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	return strings.ReplaceAll(s, "\n", "")
}

func cmdUSER(username string) *Command {
	line := fmt.Sprintf("USER %s%s", sanitizeCRLF(username), crlf)
	return &Command{Verb: "USER", Raw: []byte(line), Secret: true}
}

func cmdPASS(password string) *Command {
	line := fmt.Sprintf("PASS %s%s", sanitizeCRLF(password), crlf)
	return &Command{Verb: "PASS", Raw: []byte(line), Secret: true}
}

func cmdAPOP(username, digest string) *Command {
	line := fmt.Sprintf("APOP %s %s%s", sanitizeCRLF(username), digest, crlf)
	return &Command{Verb: "APOP", Raw: []byte(line), Secret: true}
}

func cmdSTAT() *Command {
	return &Command{Verb: "STAT", Raw: []byte("STAT" + crlf)}
}

func cmdLIST(msg int) *Command {
	if msg > 0 {
		return &Command{Verb: "LIST", Raw: []byte(fmt.Sprintf("LIST %d%s", msg, crlf))}
	}
	return &Command{Verb: "LIST", Raw: []byte("LIST" + crlf)}
}

func cmdUIDL(msg int) *Command {
	if msg > 0 {
		return &Command{Verb: "UIDL", Raw: []byte(fmt.Sprintf("UIDL %d%s", msg, crlf))}
	}
	return &Command{Verb: "UIDL", Raw: []byte("UIDL" + crlf)}
}

func cmdRETR(msg int) *Command {
	return &Command{Verb: "RETR", Raw: []byte(fmt.Sprintf("RETR %d%s", msg, crlf))}
}

func cmdDELE(msg int) *Command {
	return &Command{Verb: "DELE", Raw: []byte(fmt.Sprintf("DELE %d%s", msg, crlf))}
}

func cmdTOP(msg, lines int) *Command {
	return &Command{Verb: "TOP", Raw: []byte(fmt.Sprintf("TOP %d %d%s", msg, lines, crlf))}
}

func cmdNOOP() *Command {
	return &Command{Verb: "NOOP", Raw: []byte("NOOP" + crlf)}
}

func cmdRSET() *Command {
	return &Command{Verb: "RSET", Raw: []byte("RSET" + crlf)}
}

func cmdQUIT() *Command {
	return &Command{Verb: "QUIT", Raw: []byte("QUIT" + crlf)}
}

func cmdLANG(code string) *Command {
	if code == "" {
		return &Command{Verb: "LANG", Raw: []byte("LANG" + crlf)}
	}
	return &Command{Verb: "LANG", Raw: []byte(fmt.Sprintf("LANG %s%s", sanitizeCRLF(code), crlf))}
}

func cmdUTF8() *Command {
	return &Command{Verb: "UTF8", Raw: []byte("UTF8" + crlf)}
}
