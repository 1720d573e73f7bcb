// Package service provides the tool registry behind the HTTP surface.
//
// Providers register a Service definition; tools are addressed as
// "<service>.<tool>" and dispatched to the owning provider.
//
// Example Usage:
//
//	registry := service.NewRegistry()
//	registry.Register(mailboxProvider)
//	services := registry.Discover("read mailbox", 5)
//	result, err := registry.Execute(ctx, "mailbox.read", params, appCtx)
package service
