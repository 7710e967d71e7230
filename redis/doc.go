// Package redis wraps go-redis with structured logging, configuration
// defaults and component lifecycle support.
//
// Client adds batch helpers (MGet, SetMany) on top of the usual single-key
// commands. TypedStore layers JSON encoding over them so that a tier can
// read a whole id batch with one MGET and write it back in one pipeline:
//
//	store := redis.NewTypedStore[Profile](client, "profiles")
//	hits, err := store.LoadMany(ctx, []string{"1", "2"})
//	err = store.SaveMany(ctx, map[string]Profile{"3": p}, time.Hour)
//
// Component registers the client with a component.Registry:
//
//	c := redis.NewComponent(redis.Config{Enabled: true, Addr: "localhost:6379"}, log)
//	registry.Register(c)
package redis
