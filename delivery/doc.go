// Package delivery hands freshly issued one-time codes to an out-of-band
// channel. The Engine calls a Sender after the code is persisted; a failed
// send never rolls the code back.
package delivery
