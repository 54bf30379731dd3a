// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

// switchboard-credentials manages the Matrix access token file the
// daemon reads at startup.
//
//	seal    encrypt an existing plaintext token with a passphrase
//	show    print the stored token (sealed or plaintext)
//	login   obtain a fresh token with username+password and store it
//	version print version information
//
// Sealed files use age scrypt encryption and carry the .age extension;
// the extension is how the daemon tells the two formats apart. The
// sealing passphrase comes from $SWITCHBOARD_PASSPHRASE when set,
// otherwise from an interactive no-echo prompt.
package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/switchboard-dev/switchboard/lib/credfile"
	"github.com/switchboard-dev/switchboard/lib/process"
	"github.com/switchboard-dev/switchboard/lib/secret"
	"github.com/switchboard-dev/switchboard/lib/version"
	"github.com/switchboard-dev/switchboard/messaging"
)

// passphraseEnv matches the daemon's default homeserver.passphrase_env.
const passphraseEnv = "SWITCHBOARD_PASSPHRASE"

const loginTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	if len(os.Args) < 2 {
		printUsage()
		return errors.New("subcommand required")
	}

	switch os.Args[1] {
	case "seal":
		return runSeal(os.Args[2:])
	case "show":
		return runShow(os.Args[2:])
	case "login":
		return runLogin(os.Args[2:])
	case "version", "--version":
		version.Print("switchboard-credentials")
		return nil
	case "-h", "--help", "help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown subcommand: %q", os.Args[1])
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: switchboard-credentials <subcommand> [flags]

Subcommands:
  seal      Encrypt a plaintext access token file with a passphrase
  show      Print the stored access token
  login     Log in with username+password and store the token
  version   Print version information

Run 'switchboard-credentials <subcommand> --help' for subcommand flags.
`)
}

func runSeal(args []string) error {
	var input, output string
	flagSet := pflag.NewFlagSet("switchboard-credentials seal", pflag.ContinueOnError)
	flagSet.StringVar(&input, "input", "", "plaintext token file, or - for stdin (required)")
	flagSet.StringVar(&output, "output", "", "sealed file to write (default: <input>"+credfile.Extension+")")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if input == "" {
		return errors.New("--input is required (a plaintext token file, or - for stdin)")
	}
	if output == "" {
		if input == "-" {
			return errors.New("--output is required when the token comes from stdin")
		}
		output = input + credfile.Extension
	}
	if !credfile.IsSealed(output) {
		return fmt.Errorf("sealed files must end in %s so the daemon recognizes them, got %s",
			credfile.Extension, output)
	}

	token, err := secret.ReadFromPath(input)
	if err != nil {
		return fmt.Errorf("reading token: %w", err)
	}
	defer token.Close()

	passphrase, err := readPassphrase(true)
	if err != nil {
		return err
	}
	defer passphrase.Close()

	if err := credfile.Seal(output, token, passphrase); err != nil {
		return err
	}
	fmt.Printf("sealed token written to %s\n", output)
	if input != "-" {
		fmt.Printf("the plaintext at %s is now redundant; remove it once the daemon starts cleanly\n", input)
	}
	return nil
}

func runShow(args []string) error {
	var tokenFile string
	flagSet := pflag.NewFlagSet("switchboard-credentials show", pflag.ContinueOnError)
	flagSet.StringVar(&tokenFile, "token-file", "", "token file to read (required)")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if tokenFile == "" {
		return errors.New("--token-file is required")
	}

	token, err := loadToken(tokenFile)
	if err != nil {
		return err
	}
	defer token.Close()

	fmt.Println(token.String())
	return nil
}

func runLogin(args []string) error {
	var (
		homeserver string
		user       string
		tokenFile  string
		plaintext  bool
	)
	flagSet := pflag.NewFlagSet("switchboard-credentials login", pflag.ContinueOnError)
	flagSet.StringVar(&homeserver, "homeserver", "", "homeserver base URL (required)")
	flagSet.StringVar(&user, "user", "", "Matrix username, localpart or full @id (required)")
	flagSet.StringVar(&tokenFile, "token-file", "", "where to store the obtained token (required)")
	flagSet.BoolVar(&plaintext, "plaintext", false, "store the token unencrypted (mode 0600) instead of sealing")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	switch {
	case homeserver == "":
		return errors.New("--homeserver is required")
	case user == "":
		return errors.New("--user is required")
	case tokenFile == "":
		return errors.New("--token-file is required")
	case plaintext && credfile.IsSealed(tokenFile):
		return fmt.Errorf("--plaintext output must not end in %s", credfile.Extension)
	case !plaintext && !credfile.IsSealed(tokenFile):
		return fmt.Errorf("sealed output must end in %s (or pass --plaintext)", credfile.Extension)
	}

	password, err := promptSecret("Password", false)
	if err != nil {
		return err
	}
	defer password.Close()

	client, err := messaging.NewClient(messaging.ClientConfig{HomeserverURL: homeserver})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), loginTimeout)
	defer cancel()
	chatSession, err := client.Login(ctx, user, password)
	if err != nil {
		return fmt.Errorf("logging in: %w", err)
	}
	defer chatSession.Close()

	token, err := secret.NewFromBytes([]byte(chatSession.AccessToken()))
	if err != nil {
		return fmt.Errorf("protecting token: %w", err)
	}
	defer token.Close()

	if plaintext {
		content := make([]byte, 0, token.Len()+1)
		content = append(content, token.Bytes()...)
		content = append(content, '\n')
		defer secret.Zero(content)
		if err := os.WriteFile(tokenFile, content, 0o600); err != nil {
			return fmt.Errorf("writing token file: %w", err)
		}
	} else {
		passphrase, err := readPassphrase(true)
		if err != nil {
			return err
		}
		defer passphrase.Close()
		if err := credfile.Seal(tokenFile, token, passphrase); err != nil {
			return err
		}
	}

	fmt.Printf("logged in as %s; token stored in %s\n", chatSession.UserID(), tokenFile)
	return nil
}

// loadToken reads either format; unlike the daemon's startup path it
// may prompt for the passphrase interactively.
func loadToken(path string) (*secret.Buffer, error) {
	if !credfile.IsSealed(path) {
		return secret.ReadFromPath(path)
	}
	passphrase, err := readPassphrase(false)
	if err != nil {
		return nil, err
	}
	defer passphrase.Close()
	return credfile.Open(path, passphrase)
}

// readPassphrase resolves the sealing passphrase: the environment
// variable when set, an interactive prompt otherwise. confirm adds the
// repeat prompt used when choosing a new passphrase.
func readPassphrase(confirm bool) (*secret.Buffer, error) {
	if value := os.Getenv(passphraseEnv); value != "" {
		return secret.NewFromBytes([]byte(value))
	}
	return promptSecret("Passphrase", confirm)
}

// promptSecret reads a secret without echo from an interactive
// terminal, or a single line from piped stdin.
func promptSecret(label string, confirm bool) (*secret.Buffer, error) {
	stdinFd := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFd) {
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return nil, fmt.Errorf("reading stdin: %w", err)
			}
			return nil, fmt.Errorf("%s is empty", strings.ToLower(label))
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			return nil, fmt.Errorf("%s is empty", strings.ToLower(label))
		}
		return secret.NewFromBytes(line)
	}

	fmt.Fprintf(os.Stderr, "%s: ", label)
	first, err := term.ReadPassword(stdinFd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", strings.ToLower(label), err)
	}
	if len(first) == 0 {
		return nil, fmt.Errorf("%s is empty", strings.ToLower(label))
	}

	if confirm {
		fmt.Fprintf(os.Stderr, "Confirm %s: ", strings.ToLower(label))
		second, err := term.ReadPassword(stdinFd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			secret.Zero(first)
			return nil, fmt.Errorf("reading confirmation: %w", err)
		}
		match := bytes.Equal(first, second)
		secret.Zero(second)
		if !match {
			secret.Zero(first)
			return nil, errors.New("passphrases do not match")
		}
	}
	return secret.NewFromBytes(first)
}
