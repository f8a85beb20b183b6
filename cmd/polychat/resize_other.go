//go:build !unix

package main

import "os"

// notifyResize does nothing: there is no resize signal.
func notifyResize(ch chan<- os.Signal) {}
