// Package audioscrobbler implements a client for the Audioscrobbler
// submission protocol v1.2 and the signed web-service calls used for
// loving tracks and obtaining session keys.
//
// # Overview
//
// A Session talks to one remote service (Last.fm, Libre.fm, or any other
// server speaking the protocol). It performs the handshake, submits queued
// tracks in batches, sends now-playing notifications and, when API
// credentials are configured, loves tracks through the web service.
//
// All protocol state is owned by a single goroutine started with Run. HTTP
// completions and timers are delivered to that goroutine as events, so at
// most one handshake and one submission are ever in flight.
//
// # Quick Start
//
//	session, err := audioscrobbler.NewSession(audioscrobbler.Config{
//	    URL:          "http://post.audioscrobbler.com/",
//	    ClientID:     "tst",
//	    ClientVersion: "1.0",
//	    Username:     "rj",
//	    PasswordHash: audioscrobbler.HashPassword("secret"),
//	    Callbacks: audioscrobbler.Callbacks{
//	        OnError: func(fatal bool, msg string) { log.Println(msg) },
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	go session.Run(ctx)
//	session.Handshake()
//
//	session.AddTrack(audioscrobbler.Track{
//	    Artist:    "The Beatles",
//	    Title:     "Yesterday",
//	    Length:    125,
//	    Timestamp: time.Now().Unix(),
//	    Source:    audioscrobbler.SourceUser,
//	})
//
// # Persistence
//
// Pending tracks survive restarts through Store and Load, which use a small
// line oriented text format:
//
//	a: The Beatles
//	t: Yesterday
//	i: 1700000000
//	o: P
//	l: 125
//
// # Protocol Documentation
//
// https://www.last.fm/api/submissions
package audioscrobbler
