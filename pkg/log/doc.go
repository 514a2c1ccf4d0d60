/*
Package log provides structured logging for graphkeep using zerolog.

Init sets the global Logger once at process start from a Config; components
log through that global Logger directly, without passing a logger through
every function signature. WithComponent, WithEntity, WithEventID, and
WithSequenceID derive child loggers that carry a correlating field (a
component name, a graph entity, or an event-log or broadcast position).
*/
package log
