package main

// main runs the langnotes command; the build-time variables live in root.go.
func main() {
	Execute()
}
