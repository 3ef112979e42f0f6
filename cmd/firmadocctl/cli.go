package main

import (
	"fmt"
	"os"
	"path/filepath"
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	if len(args) < 2 {
		usage(args)
		return 1
	}

	switch args[1] {
	case "digest":
		return runDigest(args[2:])
	case "keygen":
		return runKeygen(args[2:])
	case "verify":
		return runVerify(args[2:])
	case "compress":
		return runCompress(args[2:])
	case "decompress":
		return runDecompress(args[2:])
	}

	usage(args)
	return 1
}

func usage(args []string) {
	name := "firmadocctl"
	if len(args) > 0 && args[0] != "" {
		name = filepath.Base(args[0])
	}
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "  %s digest --in <file>\n", name)
	fmt.Fprintf(os.Stderr, "  %s keygen [--out-public <file>] [--out-private <file>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s verify --pubkey <pem> --payload <file> --signature <b64-file>\n", name)
	fmt.Fprintf(os.Stderr, "  %s compress --in <file> --out <file> [--algorithm brotli|gzip]\n", name)
	fmt.Fprintf(os.Stderr, "  %s decompress --in <file> --out <file> --algorithm <brotli|gzip|none>\n", name)
}
