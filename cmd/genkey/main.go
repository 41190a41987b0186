// Command genkey prints a new ClawHub API key and the hash stored for it.
// Operators use it to provision agents directly in the catalog database.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/clawhub-core/clawhub/internal/crypto"
)

func main() {
	hashOnly := flag.String("hash", "", "print the stored hash of an existing key instead")
	flag.Parse()

	if *hashOnly != "" {
		if err := crypto.ValidateAPIKey(*hashOnly); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(crypto.HashAPIKey(*hashOnly))
		return
	}

	key, hash, err := crypto.GenerateAPIKey()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Printf("API key: %s\n", key)
	fmt.Printf("Hash:    %s\n", hash)
}
