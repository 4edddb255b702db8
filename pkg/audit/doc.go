// Package audit records every mutation the engine commits or rejects.
//
// Events carry the actor (from WithActor), the resource touched, the store
// revision the commit produced, and before/after details. Loggers write JSON
// lines to rotating files (FileLogger) or rows in PostgreSQL (DBLogger);
// MultiLogger fans out to several.
//
//	ctx = audit.WithActor(ctx, "ops@example.com")
//	event := audit.NewEvent(ctx, audit.EventTypePlanExecute, audit.ResourceTypePlan, plan.ID)
//	event.Revision = rev
//	_ = logger.Log(ctx, event)
package audit
