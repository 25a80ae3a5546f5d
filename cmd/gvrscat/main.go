package main

import (
	"fmt"
	"log"
	"os"

	"github.com/gwlucastrig/gvrs-go/internal/raster"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: gvrscat <file.gvrs>\n")
		os.Exit(1)
	}

	r, err := raster.Open(os.Args[1], "r")
	if err != nil {
		log.Fatalf("Opening %s: %v", os.Args[1], err)
	}
	defer r.Close()

	fmt.Print(r.Report())
}
