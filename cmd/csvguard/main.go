package main

import (
	"os"

	"github.com/JonMunkholm/csvguard/cmd/csvguard/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
