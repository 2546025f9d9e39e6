package credentials

import (
	"bytes"
	"crypto/x509"
	"encoding/binary"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"
)

// MaxPrivateKeyLength bounds pasted or uploaded key text. A 16384-bit RSA
// key in PEM form is well under this.
const MaxPrivateKeyLength = 32 * 1024

// Format is the container format detected for a private key.
type Format string

const (
	FormatOpenSSH  Format = "OPENSSH"
	FormatPKCS8    Format = "PKCS8"
	FormatPKCS1RSA Format = "PKCS1-RSA"
	FormatEC       Format = "EC"
	FormatDSA      Format = "DSA"
)

// pemTypes maps recognised PEM block types to their format.
var pemTypes = []struct {
	blockType string
	format    Format
}{
	{"OPENSSH PRIVATE KEY", FormatOpenSSH},
	{"RSA PRIVATE KEY", FormatPKCS1RSA},
	{"EC PRIVATE KEY", FormatEC},
	{"DSA PRIVATE KEY", FormatDSA},
	{"PRIVATE KEY", FormatPKCS8},
}

// publicKeyMarkers identify public key text pasted into the private key field.
var publicKeyMarkers = []string{"ssh-rsa", "ssh-ed25519", "ecdsa-sha2"}

// opensshMagic starts every decoded OpenSSH private key.
const opensshMagic = "openssh-key-v1\x00"

// asn1Sequence is the DER tag every PKCS#1/PKCS#8/SEC1/DSA key starts with.
const asn1Sequence = 0x30

// Phase identifies which validation phase rejected a key.
type Phase int

const (
	PhaseSyntax Phase = iota + 1
	PhaseStructure
)

func (p Phase) String() string {
	switch p {
	case PhaseSyntax:
		return "syntax"
	case PhaseStructure:
		return "structure"
	default:
		return "unknown"
	}
}

// KeyErrorReason classifies a rejected key.
type KeyErrorReason string

const (
	ReasonEmpty          KeyErrorReason = "empty"
	ReasonTooLarge       KeyErrorReason = "too_large"
	ReasonPublicKey      KeyErrorReason = "public_key"
	ReasonMissingHeaders KeyErrorReason = "missing_headers"
	ReasonFooterMismatch KeyErrorReason = "footer_mismatch"
	ReasonCorrupted      KeyErrorReason = "corrupted"
	ReasonBadPassphrase  KeyErrorReason = "bad_passphrase"
)

// KeyError is returned for any rejected private key.
type KeyError struct {
	Phase  Phase
	Reason KeyErrorReason
	// Fingerprint is set for ReasonPublicKey when the text parses as an
	// authorized_keys line.
	Fingerprint string
}

func (e *KeyError) Error() string {
	switch e.Reason {
	case ReasonEmpty:
		return "private key is empty"
	case ReasonTooLarge:
		return fmt.Sprintf("private key exceeds %d bytes", MaxPrivateKeyLength)
	case ReasonPublicKey:
		if e.Fingerprint != "" {
			return fmt.Sprintf("this looks like a public key (%s); select the private key file instead", e.Fingerprint)
		}
		return "this looks like a public key; select the private key file instead"
	case ReasonMissingHeaders:
		return "invalid private key format: missing BEGIN/END headers"
	case ReasonFooterMismatch:
		return "invalid private key format: END footer does not match BEGIN header"
	case ReasonCorrupted:
		return "private key structure is invalid or the key is corrupted"
	case ReasonBadPassphrase:
		return "passphrase does not decrypt the private key"
	default:
		return "invalid private key"
	}
}

// KeyInfo describes an accepted private key.
type KeyInfo struct {
	Format Format
	// Encrypted is set for legacy PEM keys with a Proc-Type ENCRYPTED header
	// and for OpenSSH keys whose cipher is not "none".
	Encrypted bool
}

// ValidatePrivateKey performs the syntactic phase and returns the format the
// header claims. It does not decode the body.
func ValidatePrivateKey(key string) (Format, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", &KeyError{Phase: PhaseSyntax, Reason: ReasonEmpty}
	}
	if len(key) > MaxPrivateKeyLength {
		return "", &KeyError{Phase: PhaseSyntax, Reason: ReasonTooLarge}
	}

	for _, marker := range publicKeyMarkers {
		if strings.Contains(key, marker) {
			return "", &KeyError{Phase: PhaseSyntax, Reason: ReasonPublicKey, Fingerprint: publicKeyFingerprint(key)}
		}
	}

	for _, t := range pemTypes {
		if !strings.HasPrefix(key, "-----BEGIN "+t.blockType+"-----") {
			continue
		}
		if !strings.HasSuffix(key, "-----END "+t.blockType+"-----") {
			if strings.Contains(key, "-----END ") {
				return "", &KeyError{Phase: PhaseSyntax, Reason: ReasonFooterMismatch}
			}
			return "", &KeyError{Phase: PhaseSyntax, Reason: ReasonMissingHeaders}
		}
		return t.format, nil
	}
	return "", &KeyError{Phase: PhaseSyntax, Reason: ReasonMissingHeaders}
}

// ValidatePrivateKeyDeep runs both phases. On success it returns the detected
// format; a body that fails to decode or lacks the expected leading bytes
// yields a KeyError with Phase == PhaseStructure.
func ValidatePrivateKeyDeep(key string) (KeyInfo, error) {
	format, err := ValidatePrivateKey(key)
	if err != nil {
		return KeyInfo{}, err
	}

	corrupted := &KeyError{Phase: PhaseStructure, Reason: ReasonCorrupted}

	block, rest := pem.Decode([]byte(strings.TrimSpace(key)))
	if block == nil || len(bytes.TrimSpace(rest)) != 0 || len(block.Bytes) == 0 {
		return KeyInfo{}, corrupted
	}

	if format == FormatOpenSSH {
		encrypted, ok := parseOpenSSHHeader(block.Bytes)
		if !ok {
			return KeyInfo{}, corrupted
		}
		return KeyInfo{Format: format, Encrypted: encrypted}, nil
	}

	// Legacy encrypted PEM: the body is ciphertext and carries no DER tag.
	if strings.Contains(block.Headers["Proc-Type"], "ENCRYPTED") {
		if format == FormatPKCS8 || block.Headers["DEK-Info"] == "" {
			return KeyInfo{}, corrupted
		}
		return KeyInfo{Format: format, Encrypted: true}, nil
	}
	if len(block.Headers) != 0 {
		return KeyInfo{}, corrupted
	}

	if block.Bytes[0] != asn1Sequence {
		return KeyInfo{}, corrupted
	}
	return KeyInfo{Format: format}, nil
}

// parseOpenSSHHeader checks the magic and reads the cipher name that follows.
func parseOpenSSHHeader(b []byte) (encrypted, ok bool) {
	if !bytes.HasPrefix(b, []byte(opensshMagic)) {
		return false, false
	}
	b = b[len(opensshMagic):]
	if len(b) < 4 {
		return false, false
	}
	n := binary.BigEndian.Uint32(b)
	if uint64(n) > uint64(len(b)-4) {
		return false, false
	}
	cipher := string(b[4 : 4+n])
	return cipher != "none", true
}

// publicKeyFingerprint returns the SHA256 fingerprint of an authorized_keys
// style line, or "" when it does not parse.
func publicKeyFingerprint(s string) string {
	pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(s))
	if err != nil {
		return ""
	}
	return ssh.FingerprintSHA256(pub)
}

// CheckPassphrase decrypts key locally to confirm passphrase before it is
// sent. DSA keys are not supported by the parser and are accepted as-is.
func CheckPassphrase(key, passphrase string) error {
	info, err := ValidatePrivateKeyDeep(key)
	if err != nil {
		return err
	}
	if !info.Encrypted || passphrase == "" {
		_, err = ssh.ParseRawPrivateKey([]byte(key))
	} else {
		_, err = ssh.ParseRawPrivateKeyWithPassphrase([]byte(key), []byte(passphrase))
	}
	var missing *ssh.PassphraseMissingError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &missing), errors.Is(err, x509.IncorrectPasswordError):
		return &KeyError{Phase: PhaseStructure, Reason: ReasonBadPassphrase}
	case strings.Contains(err.Error(), "unsupported key type"):
		return nil
	default:
		return &KeyError{Phase: PhaseStructure, Reason: ReasonCorrupted}
	}
}
