// Command nexus coordinates runs of the remote agent swarm.
package main

func main() {
	Execute()
}
