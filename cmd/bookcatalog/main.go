package main

import "github.com/miguel-loureiro/BookCatalog/cmd/bookcatalog/cmd"

func main() {
	cmd.Execute()
}
