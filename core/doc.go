// Package core implements the mailbox actors that carry outbound text to
// connected characters.
//
// Every online character owns one Actor. Senders never write to a
// connection directly: they Send into the recipient's mailbox, which never
// blocks, and the Actor's goroutine writes the line out.
package core
