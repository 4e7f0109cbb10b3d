// Package tlsroots builds client TLS configurations that trust the system
// roots plus an optional private CA, for relay endpoints served with
// self-signed or internal certificates.
package tlsroots
