// outpost-hash-password generates the argon2id hash expected by the
// auth.admin_password_hash setting in config.yaml.
//
// Usage:
//
//	outpost-hash-password "your password"
package main

import (
	"fmt"
	"os"

	"github.com/nerrad567/outpost-core/internal/auth"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: outpost-hash-password <password>")
		os.Exit(2)
	}

	hash, err := auth.HashPassword(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "hashing password: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(hash)
}
