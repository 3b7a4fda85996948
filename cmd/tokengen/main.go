// Package main provides a CLI tool for generating caller tokens for the
// piivault API. These tokens use the dev signing key by default and will NOT
// work in production.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	jwttoken "piivault/internal/jwt_token"
	"piivault/internal/pii"
)

const (
	// Dev signing key - matches config.go when JWT_SIGNING_KEY is not set
	devSigningKey = "dev-secret-key-change-in-production"

	// Default values matching config defaults
	defaultIssuer   = "piivault-gateway"
	defaultAudience = "piivault"
	defaultTokenTTL = 15 * time.Minute
)

type tokenOutput struct {
	Token     string            `json:"token"`
	ExpiresIn string            `json:"expires_in"`
	Claims    map[string]any    `json:"claims"`
	Usage     map[string]string `json:"usage"`
}

func main() {
	callerCmd := flag.NewFlagSet("caller", flag.ExitOnError)
	subject := callerCmd.String("sub", "", "Caller subject (the user's reference ID for self-service calls)")
	permission := callerCmd.String("perm", "", "Permission claim: admin, support, analyst, or empty for self-service")
	ttl := callerCmd.Duration("ttl", defaultTokenTTL, "Token time-to-live")
	signingKey := callerCmd.String("key", "", "Signing key. Defaults to JWT_SIGNING_KEY, then the dev key.")
	issuer := callerCmd.String("iss", defaultIssuer, "Issuer claim")
	audience := callerCmd.String("aud", defaultAudience, "Audience claim")
	jsonOutput := callerCmd.Bool("json", false, "Output as JSON")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "caller":
		callerCmd.Parse(os.Args[2:]) //nolint:errcheck // ExitOnError
		generateCallerToken(*subject, *permission, *signingKey, *issuer, *audience, *ttl, *jsonOutput)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`tokengen - Generate caller tokens for the piivault API

WARNING: Without -key or JWT_SIGNING_KEY these tokens use the dev signing key
         and will NOT work in production.

Usage:
  tokengen caller [flags]

Examples:
  # Self-service token for one user
  tokengen caller -sub "auth0|64f1c2"

  # Admin token valid for an hour
  tokengen caller -sub ops-1 -perm admin -ttl 1h

  # Output as JSON
  tokengen caller -sub agent-7 -perm support -json`)
}

func generateCallerToken(subject, permission, signingKey, issuer, audience string, ttl time.Duration, jsonOutput bool) {
	if subject == "" {
		fmt.Fprintln(os.Stderr, "-sub is required")
		os.Exit(1)
	}
	if permission != "" && pii.ParsePermission(permission) == pii.PermissionNone {
		fmt.Fprintf(os.Stderr, "Unknown permission %q\n", permission)
		os.Exit(1)
	}

	keyType := "flag"
	if signingKey == "" {
		signingKey = os.Getenv("JWT_SIGNING_KEY")
		keyType = "env"
	}
	if signingKey == "" {
		signingKey = devSigningKey
		keyType = "dev"
	}

	svc := jwttoken.NewJWTService(signingKey, issuer, audience, ttl)
	token, err := svc.GenerateCallerToken(context.Background(), subject, permission)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating token: %v\n", err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(tokenOutput{
			Token:     token,
			ExpiresIn: ttl.String(),
			Claims: map[string]any{
				"sub":        subject,
				"permission": permission,
				"iss":        issuer,
				"aud":        audience,
			},
			Usage: map[string]string{
				"header":      "Authorization: Bearer <token>",
				"signing_key": keyType,
			},
		})
		return
	}

	fmt.Println("Caller Token (JWT)")
	fmt.Println("==================")
	fmt.Printf("Signing Key: %s\n", keyType)
	fmt.Printf("Expires In:  %s\n", ttl)
	fmt.Printf("Subject:     %s\n", subject)
	if permission != "" {
		fmt.Printf("Permission:  %s\n", permission)
	}
	fmt.Println()
	fmt.Println("Token:")
	fmt.Println(token)
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  curl -H \"Authorization: Bearer <token>\" http://localhost:8080/users/" + subject)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}
