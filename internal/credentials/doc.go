// Package credentials classifies and bounds every piece of connection input
// before it may reach the transport or the UI.
//
// Nothing here talks to the network or performs SSH cryptography. The
// validators only decide whether a string is acceptable and, for private
// keys, which container format it claims to be.
//
// # Private keys
//
// Key material goes through two phases:
//
//  1. [ValidatePrivateKey] (syntactic): the text must start with one of the
//     recognised PEM headers and end with the matching footer. Anything that
//     looks like a public key (ssh-rsa, ssh-ed25519, ecdsa-sha2) is refused
//     with [ReasonPublicKey] so the user can be told they picked the wrong
//     file.
//  2. [ValidatePrivateKeyDeep] (structural): the base64 body is decoded. An
//     OpenSSH key must begin with the "openssh-key-v1\x00" magic; every DER
//     container (PKCS#8, PKCS#1, EC, DSA) must begin with an ASN.1 SEQUENCE
//     tag (0x30).
//
// A [*KeyError] carries the failing [Phase], so callers can distinguish
// "missing headers" from "structure invalid / corrupted". The detected
// [Format] is informational only.
//
// # Credentials
//
// [Resolve] merges the available [Source] values field by field in the order
// given; the caller decides precedence. [Credentials.Validate] bounds every
// field and [Sanitize] strips material for authentication methods the
// session does not allow.
package credentials
