//go:build !unix

package supervisor

func ignoreTerminate() {}
