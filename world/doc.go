// Package world holds the characters that take part in private messaging:
// the directory they are found in, their presence and rooms, the deny-lists
// that decide who may message whom, and the sweeper that ends idle sessions.
//
// Character implements comms.Actor. Its inbound channel is a core mailbox
// whose goroutine writes each queued line to the session's Outlet.
package world
