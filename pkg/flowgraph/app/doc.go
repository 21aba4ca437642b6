// Package app deploys configured applications and routes runs to them.
//
// An Application is one deployed version of an application source. The
// Manager owns every live application, keyed by identity, and serializes
// all deployment work on a single worker goroutine:
//
//	mgr, err := app.NewManager(
//	    app.WithDataDir("/var/lib/flowhost"),
//	    app.WithRegistry(reg),
//	)
//	if err != nil {
//	    return err
//	}
//	defer mgr.Close(ctx)
//
//	src, err := app.FileSource("shop.yaml")
//	...
//	a, err := mgr.Deploy(ctx, "shop", src)
//
// Redeploying pauses the live version, builds the new one and, on
// success, installs it and undeploys the old version. Runs that were
// waiting on the paused version move to the new one. If the build fails
// the old version resumes and nothing else changes.
//
// Every deploy attempt that passes validation takes the next version
// number for its identity, whether or not the build succeeds. Numbers are
// never reused, even after an undeploy.
package app
