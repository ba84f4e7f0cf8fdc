// Package notifier delivers notifications to users across realtime,
// mobile-push, SMS, and email channels.
//
// Producers call CreateNotification with either a concrete recipient or a
// set of target roles. Role-targeted notifications are templates: the
// service expands them into one persisted copy per matching active user,
// all sharing a batch ID. Each copy is then routed: connected in-app
// recipients get a synchronous realtime push, everyone else goes through
// the priority-ordered delivery queue where workers dispatch to the
// channel transports with exponential-backoff retries.
//
// The service is assembled from the packages under pkg/: notification
// (persisted model and status state machine), queue (three-lane delivery
// queue and worker), device (push token registry), realtime (per-user
// pub/sub hub), router (channel policy), sender (channel transports), and
// scheduler (periodic maintenance).
//
// Minimal wiring:
//
//	store := notification.NewMemoryStore()
//	q, _ := queue.New(queue.NewMemoryStorage(), store)
//	registry, _ := device.NewRegistry(device.NewMemoryStorage())
//	hub := realtime.NewHub()
//
//	svc, _ := notifier.New(store, q, registry, hub, directory,
//		notifier.WithPushSender(fcm),
//		notifier.WithSMSSender(sms))
//
//	worker, _ := queue.NewWorker(q, svc.Dispatcher())
//	sched := scheduler.New()
//	_ = svc.RegisterMaintenanceJobs(sched)
//
//	eg, ctx := errgroup.WithContext(ctx)
//	eg.Go(worker.Run(ctx))
//	eg.Go(sched.Run(ctx))
package notifier
