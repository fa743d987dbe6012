package audioscrobbler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// handshakeURL builds the handshake request. Parameter order is fixed.
func (s *Session) handshakeURL(timestamp int64) string {
	sep := "?"
	if strings.Contains(s.url, "?") {
		sep = "&"
	}

	var b strings.Builder
	b.WriteString(s.url)
	b.WriteString(sep)
	b.WriteString("hs=true&p=")
	b.WriteString(ProtocolVersion)
	b.WriteString("&c=")
	b.WriteString(escape(s.clientID))
	b.WriteString("&v=")
	b.WriteString(escape(s.clientVersion))
	b.WriteString("&u=")
	b.WriteString(escape(s.username))
	b.WriteString("&t=")
	b.WriteString(strconv.FormatInt(timestamp, 10))
	b.WriteString("&a=")
	b.WriteString(AuthToken(s.passwordHash, timestamp))
	return b.String()
}

func (s *Session) handshake() {
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
	if s.handshaking {
		return
	}

	if s.webServiceEnabled() {
		if s.sessionKey == "" {
			s.wsAuth()
		} else {
			s.apiProblems = false
			s.drainLoves()
		}
	}

	s.handshaking = true
	s.generation++
	generation := s.generation
	s.state = StateHandshaking
	s.logger.Debugf("audioscrobbler: handshake with %s as %q", s.url, s.username)
	s.send(Request{URL: s.handshakeURL(s.clock.Now().Unix())}, func(r Response) event {
		return handshakeResult{resp: r, generation: generation}
	})
}

// handshakeReply is a parsed OK handshake body.
type handshakeReply struct {
	sessionID     string
	nowPlayingURL string
	submitURL     string
}

func parseHandshake(r Response) (handshakeReply, error) {
	lines, err := responseLines(r)
	if err != nil {
		return handshakeReply{}, err
	}

	code, msg := splitStatus(lines[0])
	switch code {
	case CodeOK:
	case CodeBanned, CodeBadAuth, CodeBadTime, CodeFailed:
		return handshakeReply{}, &Error{Code: code, Message: msg}
	default:
		return handshakeReply{}, &Error{Code: CodeFailed, Message: lines[0]}
	}

	if len(lines) < 4 {
		return handshakeReply{}, &Error{Code: CodeMalformed, Message: "handshake response truncated"}
	}
	reply := handshakeReply{
		sessionID:     strings.TrimSpace(lines[1]),
		nowPlayingURL: strings.TrimSpace(lines[2]),
		submitURL:     strings.TrimSpace(lines[3]),
	}
	if reply.sessionID == "" || reply.nowPlayingURL == "" || reply.submitURL == "" {
		return handshakeReply{}, &Error{Code: CodeMalformed, Message: "handshake response missing values"}
	}
	return reply, nil
}

func (s *Session) onHandshake(r Response) {
	s.handshaking = false

	reply, err := parseHandshake(r)
	if err != nil {
		s.state = StateUnauthenticated

		var perr *Error
		if errors.As(err, &perr) && perr.Fatal() {
			s.fatal = perr.Description()
			s.logger.Warnf("audioscrobbler: handshake rejected: %v", err)
			s.onError(true, s.fatal)
			return
		}

		delay := s.delay.Next()
		s.logger.Warnf("audioscrobbler: handshake failed, retrying in %s: %v", delay, err)
		s.retry = s.clock.AfterFunc(delay, func() { s.post(retryDue{}) })
		return
	}

	s.delay.Reset()
	s.fatal = ""
	s.state = StateAuthenticated
	s.sessionID = reply.sessionID
	s.nowPlayingURL = reply.nowPlayingURL
	s.submitURL = reply.submitURL
	s.logger.Debugf("audioscrobbler: authenticated with %s", s.url)

	if s.callbacks.OnAuthenticated != nil {
		s.callbacks.OnAuthenticated()
	}
	s.submit()
}

// invalidate discards the session and handshakes again.
func (s *Session) invalidate(reason string) {
	s.logger.Debugf("audioscrobbler: session invalidated: %s", reason)
	s.sessionID = ""
	s.nowPlayingURL = ""
	s.submitURL = ""
	s.hardFailures = 0
	s.state = StateUnauthenticated
	s.handshake()
}

// responseLines splits a protocol response body, rejecting transport
// failures and bodies without a status line.
func responseLines(r Response) ([]string, error) {
	if r.Err != nil {
		return nil, &Error{Code: CodeTransport, Message: r.Err.Error()}
	}
	if !r.OK() {
		return nil, &Error{Code: CodeTransport, Message: fmt.Sprintf("unexpected status code: %d", r.StatusCode)}
	}

	lines := strings.Split(r.Body, "\n")
	lines[0] = strings.TrimSpace(lines[0])
	if lines[0] == "" {
		return nil, &Error{Code: CodeMalformed, Message: "empty response"}
	}
	return lines, nil
}

// splitStatus splits a status line into its code and message.
func splitStatus(line string) (Code, string) {
	code, msg, _ := strings.Cut(line, " ")
	return Code(code), strings.TrimSpace(msg)
}
