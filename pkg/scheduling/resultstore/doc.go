/*
Package resultstore records worker pool task outcomes in Redis so several
application instances can inspect each other's results.

Each instance writes under its own namespace:

	{<prefix>:<instance>}:task:<id>   hash of one task's outcome
	{<prefix>:<instance>}:stats       hash of completed/failed counters

The braces are a Redis Cluster hash tag, so a store works with single node
and cluster clients alike. Keys expire after Config.TTL. Wire a store into a pool with Hook:

	store, err := resultstore.New(resultstore.Config{
		Redis:  redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
		Prefix: "reports",
	})
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	pool, err := workerpool.NewWithConfig(workerpool.Config{
		WorkerCount:    8,
		OnTaskComplete: store.Hook(),
	})

Hook records on the worker that ran the task, bounded by Config.Timeout.
Recording failures are logged and never affect the task's Future.
*/
package resultstore
