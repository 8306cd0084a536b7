package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/target/portal-api/internal/bootstrap"
	"github.com/target/portal-api/internal/data/cryptoutil"
)

const (
	defaultSecretBytes = 32
	minSecretBytes     = 16
	// maxTokenInput bounds the stdin read for decrypt-token.
	maxTokenInput = 64 << 10
)

type genSecretOptions struct {
	Bytes int
}

func parseGenSecretFlags(args []string, stderr io.Writer) (genSecretOptions, error) {
	fs := flag.NewFlagSet("gen-secret", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := genSecretOptions{Bytes: defaultSecretBytes}
	fs.IntVar(&opts.Bytes, "bytes", defaultSecretBytes, "Number of random bytes before encoding")

	if err := fs.Parse(args); err != nil {
		return genSecretOptions{}, err
	}
	if opts.Bytes < minSecretBytes {
		return genSecretOptions{}, fmt.Errorf("--bytes must be at least %d", minSecretBytes)
	}
	return opts, nil
}

func runGenSecret(cmdCtx *commandContext, args []string) error {
	opts, err := parseGenSecretFlags(args, cmdCtx.Stderr)
	if err != nil {
		return err
	}
	secret, err := bootstrap.GenerateSecret(opts.Bytes)
	if err != nil {
		return err
	}
	return writeln(cmdCtx.Stdout, secret)
}

func runDecryptToken(cmdCtx *commandContext, args []string) error {
	if len(args) > 0 {
		return errors.New("decrypt-token takes no arguments; pipe the encrypted value on stdin")
	}
	key := cmdCtx.Config.Session.TokenEncryptionKey
	if key == "" {
		return errors.New("SESSION_TOKEN_ENCRYPTION_KEY is not set")
	}

	encoded, err := readToken(cmdCtx.Stdin)
	if err != nil {
		return err
	}
	plaintext, err := cryptoutil.Decrypt(encoded, key)
	if err != nil {
		return err
	}
	return writeln(cmdCtx.Stdout, plaintext)
}

func readToken(r io.Reader) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(bufio.NewReader(r), maxTokenInput))
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", errors.New("no encrypted token on stdin")
	}
	return token, nil
}
