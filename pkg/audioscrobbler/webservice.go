package audioscrobbler

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// Base represents the root XML element of a web-service response.
type Base struct {
	XMLName xml.Name `xml:"lfm"`
	Status  string   `xml:"status,attr"`
	Inner   []byte   `xml:",innerxml"`
}

// APIError represents an error element of a web-service response.
type APIError struct {
	Code    int    `xml:"code,attr"`
	Message string `xml:",chardata"`
}

const (
	apiStatusOK = "ok"

	methodMobileSession = "auth.getMobileSession"
	methodLove          = "track.love"
	methodUnlove        = "track.unlove"
)

func (s *Session) webServiceEnabled() bool {
	return s.apiURL != "" && s.apiKey != "" && s.apiSecret != ""
}

func (s *Session) apiEndpoint() string {
	if strings.Contains(s.apiURL, "?") {
		return s.apiURL + "&"
	}
	return s.apiURL + "?"
}

// wsAuth requests a mobile session key for the configured credentials.
func (s *Session) wsAuth() {
	if !s.webServiceEnabled() || s.authing {
		return
	}

	params := map[string]string{
		"method":    methodMobileSession,
		"username":  s.username,
		"authToken": md5Hex(s.username + s.passwordHash),
		"api_key":   s.apiKey,
	}

	s.authing = true
	s.logger.Debugf("audioscrobbler: requesting web-service session for %q", s.username)
	s.send(Request{URL: s.apiEndpoint() + signedQuery(s.apiSecret, params)}, func(r Response) event {
		return authResult{resp: r}
	})
}

func (s *Session) onAuth(r Response) {
	s.authing = false

	key, err := parseSessionKey(r)
	if err != nil {
		s.apiProblems = true
		s.logger.Warnf("audioscrobbler: web-service authentication failed: %v", err)
		s.onError(false, fmt.Sprintf("web-service authentication failed: %v", err))
		return
	}

	s.sessionKey = key
	s.apiProblems = false
	if s.callbacks.OnSessionKey != nil {
		s.callbacks.OnSessionKey(key)
	}
	s.drainLoves()
}

// drainLoves sends the head of the love queue unless a call is already in
// flight or the web service is failing.
func (s *Session) drainLoves() {
	if !s.webServiceEnabled() || s.sessionKey == "" || s.loving || s.apiProblems {
		return
	}
	head := s.loves.Head(1)
	if len(head) == 0 {
		return
	}
	t := head[0]

	method := methodLove
	if !t.Loved() {
		method = methodUnlove
	}
	params := map[string]string{
		"method":  method,
		"artist":  t.Artist,
		"track":   t.Title,
		"api_key": s.apiKey,
		"sk":      s.sessionKey,
	}

	s.loving = true
	s.logger.Debugf("audioscrobbler: %s %s - %s", method, t.Artist, t.Title)
	s.send(Request{URL: s.apiURL, Body: signedQuery(s.apiSecret, params)}, func(r Response) event {
		return loveResult{resp: r, track: t}
	})
}

func (s *Session) onLove(ev loveResult) {
	s.loving = false

	if _, err := parseWebService(ev.resp); err != nil {
		s.apiProblems = true
		s.logger.Warnf("audioscrobbler: love failed for %s - %s: %v", ev.track.Artist, ev.track.Title, err)
		s.onError(false, fmt.Sprintf("could not love %s - %s: %v", ev.track.Artist, ev.track.Title, err))
		return
	}

	s.loves.Drop(1)
	s.drainLoves()
}

// parseWebService checks the lfm status of a response and returns the
// inner XML.
func parseWebService(r Response) ([]byte, error) {
	if r.Err != nil {
		return nil, &Error{Code: CodeTransport, Message: r.Err.Error()}
	}

	var base Base
	if err := xml.Unmarshal([]byte(r.Body), &base); err != nil {
		if !r.OK() {
			return nil, &Error{Code: CodeTransport, Message: fmt.Sprintf("unexpected status code: %d", r.StatusCode)}
		}
		return nil, &Error{Code: CodeMalformed, Message: fmt.Sprintf("failed to parse XML response: %v", err)}
	}

	if base.Status != apiStatusOK {
		var apiErr APIError
		if err := xml.Unmarshal(base.Inner, &apiErr); err != nil {
			return nil, &Error{Code: CodeFailed, Message: "web service returned status " + base.Status}
		}
		return nil, &Error{Code: CodeFailed, Message: fmt.Sprintf("%d: %s", apiErr.Code, strings.TrimSpace(apiErr.Message))}
	}
	return base.Inner, nil
}

// parseSessionKey extracts the text between <key> and </key>.
func parseSessionKey(r Response) (string, error) {
	if _, err := parseWebService(r); err != nil {
		return "", err
	}

	_, rest, ok := strings.Cut(r.Body, "<key>")
	if !ok {
		return "", &Error{Code: CodeMalformed, Message: "no session key in response"}
	}
	key, _, ok := strings.Cut(rest, "</key>")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", &Error{Code: CodeMalformed, Message: "no session key in response"}
	}
	return key, nil
}
