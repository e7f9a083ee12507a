/*
	Project: Presence - press-to-open attendance for tutoring centers.

	A long press on a course card opens its attendance modal. The roster is prefetched while the
	press charges, the teacher report is auto-submitted once the draft settles and attendance
	summaries are batched into a single notification.

	Binaries:
		apps/api   - HTTP API (echo) driving the attendance controller
		apps/admin - migrations, API tokens, journal history and notifier checks
*/
package presence
