// Package semlock provides a counting semaphore shared by worker processes
// through a PostgreSQL database. Workers with no network path to each other
// coordinate bounded concurrency purely through the database: the semaphore
// catalog holds the slot pool, queued waiters are woken with LISTEN/NOTIFY,
// and every acquisition leaves an auditable request/grant/release trail in
// the seminfo table.
//
// Setup:
//
// Before using semlock, set up the required tables and register at least one
// semaphore:
//
//	pool, err := pgxpool.New(ctx, databaseURL)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer pool.Close()
//
//	if err := semlock.Setup(ctx, pool); err != nil {
//		log.Fatal(err)
//	}
//	if err := semlock.NewManager(pool).Register(ctx, "scratch-disk", 4); err != nil {
//		log.Fatal(err)
//	}
//
// Basic usage:
//
//	client, err := semlock.New(semlock.Config{Pool: pool})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	handle, err := client.Acquire(ctx, "scratch-disk", taskID)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer handle.Close()
//
//	// Use the slot
//	fmt.Printf("holding slot %d\n", handle.Slot())
//
// Or scoped, with the release guaranteed on every exit path:
//
//	err = client.WithSlot(ctx, "scratch-disk", taskID, func(ctx context.Context, slot int) error {
//		return doWork(ctx, slot)
//	})
//
// Acquisition survives transient database faults: the client reconnects,
// clears its stale wait-queue entry, and retries the wait a bounded number
// of times before giving up. Releasing never fails the caller; problems on
// the release path are logged and swallowed because a stuck shutdown is
// worse than a missing audit timestamp.
package semlock
