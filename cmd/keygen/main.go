package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/roots-api/internal/auth"
	"github.com/tjfontaine/roots-api/internal/config"
)

func usage() {
	fmt.Println("Usage:")
	fmt.Println("  keygen hash <api-key>")
	fmt.Println("      Prints the SHA-256 hash of an API key for auth.api_keys in config.yaml")
	fmt.Println("  keygen token [-sub subject] [-ttl 1h] [-scope a,b]")
	fmt.Println("      Signs a JWT with the auth.jwt settings from config.yaml and the environment")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "hash":
		if len(os.Args) < 3 {
			usage()
			os.Exit(1)
		}
		hash(os.Args[2])
	case "token":
		if err := token(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "keygen: %v\n", err)
			os.Exit(1)
		}
	default:
		usage()
		os.Exit(1)
	}
}

func hash(apiKey string) {
	keyHash := auth.HashAPIKey(apiKey)

	fmt.Printf("API Key: %s\n", apiKey)
	fmt.Printf("SHA-256 Hash: %s\n", keyHash)
	fmt.Println("\nAdd this to your config.yaml:")
	fmt.Printf("  api_keys:\n")
	fmt.Printf("    - key_hash: \"%s\"\n", keyHash)
	fmt.Printf("      description: \"Generated key\"\n")
}

func token(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("sub", "dev-user", "subject claim")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	scopes := fs.String("scope", "", "comma-separated scopes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	signer, err := auth.NewJWTVerifier(cfg.Auth.JWT.Secret, cfg.Auth.JWT.Issuer, cfg.Auth.JWT.Audience)
	if err != nil {
		return err
	}

	var scopeList []string
	if *scopes != "" {
		scopeList = strings.Split(*scopes, ",")
	}

	signed, err := signer.Sign(*subject, *ttl, scopeList...)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}

	fmt.Println(signed)
	return nil
}
