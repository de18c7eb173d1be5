// Command ranchctl is the ranch administrator's tool: fee previews, stall
// maps, ranch settings, contract uploads and database migration.
package main

func main() {
	Execute()
}
