package cmd

import (
	"flag"
	"log"

	"github.com/joho/godotenv"
)

// LoadEnvFile reads an optional env file named by the -env flag into the
// process environment before config parsing. It calls flag.Parse, so any
// binary-specific flags must be registered before it runs.
func LoadEnvFile() {
	envPath := flag.String("env", "", "path to an env file to load")
	flag.Parse()

	if *envPath == "" {
		return
	}

	log.Printf("loading environment from %s", *envPath)
	if err := godotenv.Load(*envPath); err != nil {
		log.Fatalf("error loading env file %s: %v", *envPath, err)
	}
}
