/*
Package broadcaster fans out graph change events to subscribers with a
total, strictly increasing sequence order and a bounded replay window.

Publish is the only sequence-id source in the process; GetEventsSince lets a
reconnecting subscriber catch up on everything still in the history ring,
or learn it must fall back to a full snapshot refresh when too much time
has passed.
*/
package broadcaster
