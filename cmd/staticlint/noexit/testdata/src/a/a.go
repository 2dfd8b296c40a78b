package main

import (
	"log"
	"os"
	sys "os"
)

func helper() {
	os.Exit(2)
}

func main() {
	defer helper()

	os.Exit(1)       // want "вызов os.Exit в функции main запрещён"
	sys.Exit(3)      // want "вызов os.Exit в функции main запрещён"
	log.Fatal("boom") // want "вызов log.Fatal в функции main запрещён"
	log.Fatalf("%d", 1) // want "вызов log.Fatalf в функции main запрещён"
	log.Println("fine")

	go func() {
		os.Exit(4)
	}()
}
