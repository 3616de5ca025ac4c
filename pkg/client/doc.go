// Package client is a small hand-rolled Go client for the admin
// introspection surface: controller/task snapshots, queue depths, and the
// live dispatch event feed. There is no job-submission API in this system
// to generate a client for — tasks come from a configured task generator,
// not from HTTP callers — so this client is read-only by construction.
//
// # Basic usage
//
//	c := client.New("http://localhost:6555")
//
//	status, err := c.Status(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("distribution=%v tasks=%d\n", status.Distribution, status.TaskCount)
//
// # Live event feed
//
//	events, closeFeed, err := c.Feed(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer closeFeed()
//
//	for e := range events {
//	    fmt.Printf("event: %s\n", e.Type)
//	}
//
// # Configuration
//
//	c := client.New("http://localhost:6555",
//	    client.WithAPIKey("your-jwt"),
//	    client.WithTimeout(10*time.Second),
//	)
package client
