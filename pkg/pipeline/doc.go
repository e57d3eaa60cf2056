// ABOUTME: Start/stop control over the receive loop
// ABOUTME: Collaborator surface used by the application shell
// Package pipeline owns at most one running receiver at a time.
//
//	c, err := pipeline.New(pipeline.Config{Backend: backend})
//	c.Start()
//	st := c.Status()
//	c.Stop()
//	c.Wait()
package pipeline
