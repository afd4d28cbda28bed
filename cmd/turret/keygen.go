package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"
)

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "generate an Ed25519 keypair for a new agent or repeater principal",
		Long:  "Prints the base64 public key to paste into the bunker document's agents/repeaters table,\nand the base64 private key for the principal to keep and sign requests with. Turret never sees the private key again.",
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return fmt.Errorf("generating keypair: %w", err)
			}

			fmt.Printf("ed25519_pubkey_b64: %s\n", base64.StdEncoding.EncodeToString(pub))
			fmt.Fprintf(cmd.ErrOrStderr(), "private key (keep this, turret never stores it): %s\n",
				base64.StdEncoding.EncodeToString(priv))
			return nil
		},
	}
}
