// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

// Telegramshell is a remote command-execution gateway: an allowed,
// password-authenticated Telegram user sends shell commands in a
// private chat, and the gateway runs them on the host and sends the
// output back in chat-sized chunks. Long-running commands (log
// follows, network probes, monitors) stream their output in timed
// batches under a per-command timeout and can be ended early with
// /stop.
//
// The serve subcommand runs the gateway. The remaining subcommands
// manage its credentials: keygen and seal protect the bot token and
// password with an age identity so they are never stored in plain
// text, and hash-password produces a bcrypt hash for the password
// file.
package main

import (
	"fmt"
	"os"

	"github.com/seedfourtytwo/telegramshell/lib/process"
	"github.com/seedfourtytwo/telegramshell/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	if len(os.Args) < 2 {
		printUsage()
		return fmt.Errorf("subcommand required")
	}

	subcommand := os.Args[1]
	switch subcommand {
	case "serve":
		return runServe(os.Args[2:])
	case "keygen":
		return runKeygen()
	case "seal":
		return runSeal(os.Args[2:])
	case "hash-password":
		return runHashPassword(os.Args[2:])
	case "--version":
		version.Print("telegramshell")
		return nil
	case "version":
		fmt.Printf("telegramshell %s\n", version.Full())
		return nil
	case "-h", "--help", "help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown subcommand: %q", subcommand)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: telegramshell <subcommand> [flags]

Subcommands:
  serve          Run the gateway
  keygen         Generate an age keypair for sealed credentials
  seal           Encrypt a credential for the gateway's identity
  hash-password  Print the bcrypt hash of a password
  version        Print version information

Run 'telegramshell <subcommand> --help' for subcommand flags.
`)
}
