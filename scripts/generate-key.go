// Package main is a development utility for generating a QR signing secret.
// It prints a high-entropy secret plus ready-to-paste environment and YAML
// forms so developers can configure a local server quickly. Do not reuse
// generated secrets across environments; rotating the secret invalidates every
// previously issued QR payload.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
)

func main() {
	// Generate random bytes
	randomBytes := make([]byte, 32)
	_, err := rand.Read(randomBytes)
	if err != nil {
		log.Fatal(err)
	}

	secret := base64.RawURLEncoding.EncodeToString(randomBytes)

	fmt.Println("==========================================================")
	fmt.Println("QR Signing Secret Generated")
	fmt.Println("==========================================================")
	fmt.Printf("\nSecret: %s\n", secret)
	fmt.Println("\n==========================================================")
	fmt.Println("Environment:")
	fmt.Printf("\n  export QR_SIGNING_KEY=%s\n", secret)
	fmt.Println("\nconfig.yaml:")
	fmt.Printf("\n  passcode:\n    qr_signing_key: %s\n", secret)
	fmt.Println("\n==========================================================")
	fmt.Println("All replicas must share the same secret; payloads signed")
	fmt.Println("under one secret do not verify under another.")
	fmt.Println("==========================================================")
}
