// Command swarmpool runs the task-claiming coordinator: seed a pool of
// tasks, run worker agents against it, sweep expired leases and inspect
// progress.
package main

func main() {
	Execute()
}
