// Package main is the entry point for fwdboot, the deployment bootstrapper
// for the forwarder service. `fwdboot build` prepares the runtime environment
// once per deploy artifact; `fwdboot start` applies pending migrations
// best-effort and replaces itself with the application server.
package main

func main() {
	Execute()
}
