// Package netinfo reports the addresses a peer can share with the other side:
// the first non-loopback local IPv4 address and the public address as seen
// by an external echo service.
package netinfo
