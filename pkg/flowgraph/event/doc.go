// Package event distributes application lifecycle events.
//
// The deployment manager publishes an event whenever an application is
// deployed, undeployed, paused or resumed, and when a deploy attempt
// fails. Consumers such as the admin surface subscribe to invalidate
// cached state:
//
//	bus := event.NewBus(event.DefaultBusConfig)
//	defer bus.Close()
//
//	sub := bus.Subscribe([]string{event.TypeDeployed, event.TypeUndeployed},
//	    event.TypedHandler(func(ctx context.Context, l event.Lifecycle, meta event.Metadata) error {
//	        cache.Delete(l.Identity)
//	        return nil
//	    }))
//	defer sub.Unsubscribe()
//
// Each subscription processes events on its own goroutine, in publish
// order. Handler errors are reported to BusConfig.OnError.
package event
