// Package unlock is the console contract for operator unlock described
// in spec.md §6: the core asks for an unlock material and gets back
// either a passphrase or an identity key, never touching the terminal
// itself beyond this one prompt. It is the out-of-core collaborator the
// lifecycle controller calls into during the unlocking state (spec.md
// §4.9), built the way cmd/wt/egg.go in the teacher repo drives the
// terminal with golang.org/x/term.
package unlock

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
	"golang.org/x/term"
)

// ErrNoTerminal is returned when a passphrase prompt is attempted on a
// non-interactive stdin (a service manager with no controlling tty).
// Callers should surface this as the human-readable reason spec.md §6
// requires and remain cold rather than block forever.
var ErrNoTerminal = fmt.Errorf("unlock: stdin is not a terminal")

// PromptPassphrase asks the operator for a bunker passphrase on stdin
// and turns it into an age.Identity via age's scrypt-based symmetric
// recipient. Returns ErrNoTerminal if stdin isn't a tty.
func PromptPassphrase(prompt string) (age.Identity, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, ErrNoTerminal
	}

	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("unlock: reading passphrase: %w", err)
	}

	identity, err := age.NewScryptIdentity(string(raw))
	if err != nil {
		return nil, fmt.Errorf("unlock: building scrypt identity: %w", err)
	}
	return identity, nil
}

// PromptIdentityFile reads an age X25519 identity (the
// "AGE-SECRET-KEY-1..." text format) from r — typically an operator
// pasting or piping in a recovery key file — instead of a passphrase.
func PromptIdentityFile(r io.Reader) (age.Identity, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		id, err := age.ParseX25519Identity(line)
		if err != nil {
			return nil, fmt.Errorf("unlock: parsing identity: %w", err)
		}
		return id, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("unlock: reading identity: %w", err)
	}
	return nil, fmt.Errorf("unlock: no identity line found in input")
}
