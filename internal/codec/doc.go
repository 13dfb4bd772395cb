// Package codec maps rows, tables, diffs, snapshots and log items to tree
// documents and back, and through tree to their JSON text.
//
// Field names written here are read by log consumers and by older stored
// snapshots, so they never change:
//
//	diff      {"added":[...], "removed":[...]}
//	snapshot  {"name", "epoch", "unixTime", "digest", "results":[...]}
//	log item  {"name", "hostIdentifier", "calendarTime", "unixTime",
//	           "diffResults" | "snapshot"}
//
// Every decoder either returns a complete value or a *tree.MalformedError.
package codec
