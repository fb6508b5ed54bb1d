// Quick tool to generate a bcrypt hash for the ADMIN_PASSWORD variable.
// Usage: go run ./cmd/hash-password -cost 12 'my-password'
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	cost := flag.Int("cost", bcrypt.DefaultCost, "bcrypt cost factor (4-31)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: hash-password [-cost N] <password>")
		os.Exit(2)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(flag.Arg(0)), *cost)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}
	fmt.Println(string(hash))
}
