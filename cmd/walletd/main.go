package main

import (
	"log"

	"walletledger/services/walletd"
)

func main() {
	if err := walletd.Main(); err != nil {
		log.Fatal(err)
	}
}
