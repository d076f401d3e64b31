// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/seedfourtytwo/telegramshell/lib/sealed"
	"github.com/seedfourtytwo/telegramshell/lib/secret"
)

// runKeygen generates a new age keypair and prints it. The public key
// goes to stdout (for seal --recipient); the private key goes to
// stderr, to be stored as credentials.identity_file.
func runKeygen() error {
	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		return fmt.Errorf("generating keypair: %w", err)
	}
	defer keypair.Close()

	fmt.Fprintf(os.Stderr, "# Private key (keep this secret; store it as credentials.identity_file):\n")
	fmt.Fprintf(os.Stderr, "%s\n", keypair.PrivateKey.String())
	fmt.Fprintf(os.Stdout, "%s\n", keypair.PublicKey)
	return nil
}

// runSeal encrypts one credential (bot token, password, or webhook
// secret) to the given recipients, producing the ciphertext the
// gateway unseals at startup.
func runSeal(args []string) error {
	var recipients []string
	var inPath, outPath string

	flagSet := pflag.NewFlagSet("telegramshell seal", pflag.ContinueOnError)
	flagSet.StringArrayVar(&recipients, "recipient", nil, "age public key to encrypt to (repeatable)")
	flagSet.StringVar(&inPath, "in", "-", `plaintext credential file ("-" reads one line from stdin)`)
	flagSet.StringVar(&outPath, "out", "-", `ciphertext destination ("-" writes to stdout)`)
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			printSealHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printSealHelp(flagSet)
		return nil
	}
	if len(recipients) == 0 {
		printSealHelp(flagSet)
		return fmt.Errorf("--recipient is required")
	}

	for _, recipient := range recipients {
		if err := sealed.ParsePublicKey(recipient); err != nil {
			return fmt.Errorf("invalid recipient %q: %w", recipient, err)
		}
	}

	plaintext, err := secret.ReadFromPath(inPath)
	if err != nil {
		return err
	}
	defer plaintext.Close()

	ciphertext, err := sealed.Seal(plaintext.Bytes(), recipients)
	if err != nil {
		return err
	}

	if outPath == "-" {
		fmt.Println(ciphertext)
		return nil
	}
	if err := os.WriteFile(outPath, []byte(ciphertext+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", outPath, err)
	}
	fmt.Fprintf(os.Stderr, "Sealed %s for %d recipients\n", outPath, len(recipients))
	return nil
}

func printSealHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Encrypt a credential for the gateway's age identity.

Reads one plaintext credential (the bot token, the password or its
bcrypt hash, or the webhook secret), encrypts it to the given
recipients, and writes base64 ciphertext. Point the matching
telegramshell.yaml *_file entry at the output and set
credentials.identity_file to the private key from keygen.

Usage:
  telegramshell seal --recipient <age1...> [flags]

Examples:
  # Seal the bot token from stdin
  telegramshell seal --recipient age1... --out token.sealed

  # Seal a hashed password file
  telegramshell hash-password | telegramshell seal --recipient age1... --out password.sealed

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}

// runHashPassword reads a password and prints its bcrypt hash. The
// hash goes in the password file in place of the plaintext; the
// authenticator detects the "$2" prefix and verifies with bcrypt.
func runHashPassword(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("hash-password takes no arguments; the password is read from stdin")
	}

	password, err := readPassword()
	if err != nil {
		return err
	}
	defer password.Close()

	hash, err := bcrypt.GenerateFromPassword(password.Bytes(), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	fmt.Printf("%s\n", hash)
	return nil
}

// readPassword reads the password without echo on a terminal, or one
// line from stdin when piped.
func readPassword() (*secret.Buffer, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return secret.ReadFromPath("-")
	}

	fmt.Fprint(os.Stderr, "Password: ")
	line, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}
	return secret.NewFromBytes(line)
}
