// Package main generates key material for the crypto engine: a versioned
// encryption secret for CRYPTO_KEYS and a lookup secret for
// CRYPTO_HMAC_SECRET.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"os"

	"piivault/internal/crypto"
)

func main() {
	version := flag.String("version", "v1", "Key version tag written into ciphertexts")
	size := flag.Int("bytes", crypto.MinSecretLength, "Secret size in bytes")
	withHMAC := flag.Bool("hmac", true, "Also generate CRYPTO_HMAC_SECRET")
	flag.Parse()

	if *size < crypto.MinSecretLength {
		fmt.Fprintf(os.Stderr, "secrets must be at least %d bytes\n", crypto.MinSecretLength)
		os.Exit(1)
	}

	secret, err := randomSecret(*size)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating key: %v\n", err)
		os.Exit(1)
	}
	keys := []crypto.KeyMaterial{{Version: *version, Secret: secret}}
	hmacSecret, err := randomSecret(*size)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating key: %v\n", err)
		os.Exit(1)
	}
	// reject a version tag the server would refuse
	if _, err := crypto.NewKeyring(*version, keys, hmacSecret); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid key: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("CRYPTO_ACTIVE_KEY=%s\n", *version)
	fmt.Printf("CRYPTO_KEYS=%s:%s\n", *version, base64.StdEncoding.EncodeToString(secret))
	if *withHMAC {
		fmt.Printf("CRYPTO_HMAC_SECRET=%s\n", base64.StdEncoding.EncodeToString(hmacSecret))
	}
}

func randomSecret(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}
