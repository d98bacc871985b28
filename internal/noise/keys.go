package noise

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"strings"
)

// Keystore holds the template provider's long-lived static key and the
// certificate an operator has had an authority key sign for it, both
// loaded from disk at startup. Generating the certificate itself is an
// offline, operator-driven step outside the provider's runtime.
type Keystore struct {
	StaticPriv []byte
	StaticX    *big.Int
	Cert       Certificate
}

// LoadKeystore reads a hex-encoded 32-byte static private key from
// keyPath and a hex-encoded SignatureNoiseMessage from certPath.
func LoadKeystore(keyPath, certPath string) (*Keystore, error) {
	priv, err := readHexFile(keyPath, 32)
	if err != nil {
		return nil, fmt.Errorf("noise: load static key: %w", err)
	}
	certBytes, err := readHexFile(certPath, SignatureNoiseMessageSize)
	if err != nil {
		return nil, fmt.Errorf("noise: load certificate: %w", err)
	}
	cert, err := ParseCertificate(certBytes)
	if err != nil {
		return nil, err
	}
	x, err := XOnlyPubKey(priv)
	if err != nil {
		return nil, err
	}
	return &Keystore{StaticPriv: priv, StaticX: x, Cert: cert}, nil
}

func readHexFile(path string, wantLen int) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decoded, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("not valid hex: %w", err)
	}
	if len(decoded) != wantLen {
		return nil, fmt.Errorf("expected %d bytes, got %d", wantLen, len(decoded))
	}
	return decoded, nil
}
