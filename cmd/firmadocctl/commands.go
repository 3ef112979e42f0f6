package main

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"

	"firmadoc/internal/infra/crypto"
	"firmadoc/internal/infra/storage"
)

func runDigest(args []string) int {
	fs := flag.NewFlagSet("digest", flag.ContinueOnError)
	in := fs.String("in", "", "input file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *in == "" {
		fmt.Fprintln(os.Stderr, "digest requires --in")
		return 1
	}

	content, err := os.ReadFile(*in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read input: %v\n", err)
		return 1
	}

	sum512 := sha512.Sum512(content)
	sum256 := sha256.Sum256(content)
	fmt.Printf("sha512=%s\n", hex.EncodeToString(sum512[:]))
	fmt.Printf("sha256=%s\n", hex.EncodeToString(sum256[:]))
	fmt.Printf("size=%d\n", len(content))
	return 0
}

func runKeygen(args []string) int {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	outPublic := fs.String("out-public", "public.pem", "public key output path")
	outPrivate := fs.String("out-private", "private.pem", "private key output path")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	pair, err := crypto.GenerateRSAKeyPair()
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate key pair: %v\n", err)
		return 1
	}
	defer crypto.Zero(pair.PrivateKeyPEM)

	if err := os.WriteFile(*outPublic, []byte(pair.PublicKeyPEM), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write public key: %v\n", err)
		return 1
	}
	if err := os.WriteFile(*outPrivate, pair.PrivateKeyPEM, 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "write private key: %v\n", err)
		return 1
	}

	fmt.Printf("key_id=%s\n", crypto.KeyIDFromPublicKey(pair.PublicKeyPEM))
	return 0
}

func runVerify(args []string) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	pubkeyPath := fs.String("pubkey", "", "public key PEM file")
	payloadPath := fs.String("payload", "", "payload file")
	signaturePath := fs.String("signature", "", "file holding the base64 signature")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *pubkeyPath == "" || *payloadPath == "" || *signaturePath == "" {
		fmt.Fprintln(os.Stderr, "verify requires --pubkey, --payload and --signature")
		return 1
	}

	pubkey, err := os.ReadFile(*pubkeyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read public key: %v\n", err)
		return 1
	}
	payload, err := os.ReadFile(*payloadPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read payload: %v\n", err)
		return 1
	}
	signature, err := os.ReadFile(*signaturePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read signature: %v\n", err)
		return 1
	}

	result := crypto.VerifySHA512(string(pubkey), payload, strings.TrimSpace(string(signature)))
	if result.IsValid {
		fmt.Println("status=valid")
		return 0
	}
	fmt.Printf("status=invalid reason=%s\n", result.Reason)
	return 1
}

func runCompress(args []string) int {
	fs := flag.NewFlagSet("compress", flag.ContinueOnError)
	in := fs.String("in", "", "input file")
	out := fs.String("out", "", "output file")
	algorithm := fs.String("algorithm", storage.AlgorithmBrotli, "compression algorithm")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *in == "" || *out == "" {
		fmt.Fprintln(os.Stderr, "compress requires --in and --out")
		return 1
	}

	content, err := os.ReadFile(*in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read input: %v\n", err)
		return 1
	}

	// One-byte threshold so even small files compress from the CLI.
	compressor := storage.NewCompressor(1)
	result, err := compressor.Compress(content, *algorithm)
	if err != nil {
		fmt.Fprintf(os.Stderr, "compress: %v\n", err)
		return 1
	}
	if err := os.WriteFile(*out, result.Compressed, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}

	fmt.Printf("algorithm=%s original=%d compressed=%d ratio=%.2f\n",
		result.Info.Algorithm, result.Info.OriginalSize, result.Info.CompressedSize, result.Info.Ratio)
	return 0
}

func runDecompress(args []string) int {
	fs := flag.NewFlagSet("decompress", flag.ContinueOnError)
	in := fs.String("in", "", "input file")
	out := fs.String("out", "", "output file")
	algorithm := fs.String("algorithm", "", "algorithm the input was compressed with")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *in == "" || *out == "" || *algorithm == "" {
		fmt.Fprintln(os.Stderr, "decompress requires --in, --out and --algorithm")
		return 1
	}

	content, err := os.ReadFile(*in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read input: %v\n", err)
		return 1
	}

	compressor := storage.NewCompressor(0)
	plain, err := compressor.Decompress(content, *algorithm)
	if err != nil {
		fmt.Fprintf(os.Stderr, "decompress: %v\n", err)
		return 1
	}
	if err := os.WriteFile(*out, plain, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}

	fmt.Printf("original=%d decompressed=%d\n", len(content), len(plain))
	return 0
}
