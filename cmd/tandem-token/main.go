// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// tandem-token manages the credentials tandem-server accepts.
//
//	tandem-token keygen --out signing.key
//	tandem-token mint --key signing.key --user alice --name "Alice" --ttl 12h
//
// keygen writes an Ed25519 private key and its ".pub" companion; point
// the server's auth.public_key_file at the companion. mint prints one
// credential to stdout.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/tandem/lib/authtoken"
	"github.com/bureau-foundation/tandem/lib/version"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, time.Now()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer, now time.Time) error {
	if len(args) == 0 {
		printUsage()
		return errors.New("a subcommand is required")
	}
	switch args[0] {
	case "keygen":
		return runKeygen(args[1:], stdout)
	case "mint":
		return runMint(args[1:], stdout, now)
	case "--version", "version":
		fmt.Fprintf(stdout, "tandem-token %s\n", version.Info())
		return nil
	case "-h", "--help", "help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown subcommand %q", args[0])
	}
}

func runKeygen(args []string, stdout io.Writer) error {
	var out string
	var force bool
	flagSet := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
	flagSet.StringVarP(&out, "out", "o", "signing.key", "private key path; the public key is written to <path>.pub")
	flagSet.BoolVar(&force, "force", false, "overwrite an existing key")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(out); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", out)
		}
	}
	public, private, err := authtoken.GenerateKeypair()
	if err != nil {
		return err
	}
	if err := authtoken.SaveKeypair(out, public, private); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "private key: %s\npublic key:  %s.pub\n", out, out)
	return nil
}

func runMint(args []string, stdout io.Writer, now time.Time) error {
	var (
		keyPath  string
		user     string
		name     string
		audience string
		ttl      time.Duration
	)
	flagSet := pflag.NewFlagSet("mint", pflag.ContinueOnError)
	flagSet.StringVar(&keyPath, "key", "signing.key", "private key written by keygen")
	flagSet.StringVar(&user, "user", "", "user id the credential authenticates (required)")
	flagSet.StringVar(&name, "name", "", "display name (default: the user id)")
	flagSet.StringVar(&audience, "audience", authtoken.DefaultAudience, "audience the server is configured with")
	flagSet.DurationVar(&ttl, "ttl", 24*time.Hour, "credential lifetime")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if user == "" {
		return errors.New("--user is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("--ttl must be positive, got %s", ttl)
	}
	privateKey, err := authtoken.LoadPrivateKey(keyPath)
	if err != nil {
		return err
	}

	credential, err := authtoken.Mint(privateKey, &authtoken.Token{
		Subject:   user,
		Name:      name,
		Audience:  audience,
		ID:        uuid.NewString(),
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, credential)
	return nil
}

func printUsage() {
	fmt.Fprint(os.Stderr, `tandem-token - manage tandem credentials

Usage:
  tandem-token keygen [--out signing.key] [--force]
  tandem-token mint --user <id> [--name <display>] [--ttl 24h] [--key signing.key] [--audience tandem]
  tandem-token --version
`)
}
