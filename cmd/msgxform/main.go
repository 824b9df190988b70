// Package main is the entry point for the msgxform service.
package main

func main() {
	Execute()
}
