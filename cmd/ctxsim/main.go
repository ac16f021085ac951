// Package main provides the ctxsim command, which runs draw context switch
// scenarios on a simulated a2xx GPU.
package main

func main() {
	Execute()
}
