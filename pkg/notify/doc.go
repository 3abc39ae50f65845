/*
Package notify implements the accepted/delta/documents/delete
notification broker that request handlers in pkg/shadow publish to.

Uses the same buffered-channel, non-blocking-broadcast-with-default-skip
shape as this codebase's other pub-sub broker, retargeted to carry
types.Notification instead of a generic cluster event. Subscribers
filter by notification kind only; every subscriber of a kind receives
that kind's notifications for all shadows.
*/
package notify
