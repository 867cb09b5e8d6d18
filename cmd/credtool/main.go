// credtool готовит секреты для .env сервера.
//
//	credtool hash-password [-cost 12]   пароль из stdin -> DEBUG_PASSWORD_HASH
//	credtool encrypt [-key ...]         значение из stdin -> enc:... для OKX_*
//
// Ключ encrypt по умолчанию берется из CREDENTIALS_KEY (окружение или .env).
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"signaltrader/pkg/crypto"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
	}
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}

	var (
		out string
		err error
	)
	switch args[0] {
	case "hash-password":
		out, err = hashPassword(args[1:], stdin, stderr)
	case "encrypt":
		out, err = encrypt(args[1:], stdin, stderr)
	case "-h", "--help", "help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		usage(stderr)
		return 2
	}

	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", args[0], err)
		return 1
	}
	fmt.Fprintln(stdout, out)
	return 0
}

func hashPassword(args []string, stdin io.Reader, stderr io.Writer) (string, error) {
	fs := flag.NewFlagSet("hash-password", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cost := fs.Int("cost", crypto.DefaultCost, "bcrypt cost")
	if err := fs.Parse(args); err != nil {
		return "", err
	}

	password, err := readSecret(stdin)
	if err != nil {
		return "", err
	}
	if *cost == crypto.DefaultCost {
		return crypto.HashPassword(password)
	}
	return crypto.HashPasswordWithCost(password, *cost)
}

func encrypt(args []string, stdin io.Reader, stderr io.Writer) (string, error) {
	fs := flag.NewFlagSet("encrypt", flag.ContinueOnError)
	fs.SetOutput(stderr)
	key := fs.String("key", os.Getenv("CREDENTIALS_KEY"), "AES-256 key, 32 bytes")
	if err := fs.Parse(args); err != nil {
		return "", err
	}

	value, err := readSecret(stdin)
	if err != nil {
		return "", err
	}
	return crypto.EncryptCredential(value, *key)
}

// readSecret читает первую строку без перевода строки
func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty input on stdin")
	}
	return line, nil
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage:")
	fmt.Fprintln(w, "  credtool hash-password [-cost N]  < password")
	fmt.Fprintln(w, "  credtool encrypt [-key KEY]        < value")
}
